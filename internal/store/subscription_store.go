package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"windalert/internal/domain"
)

const uniqueViolation = "23505"

// Subscribe inserts a new subscription for the user and returns it with the
// store-assigned id. Returns domain.ErrDuplicateSubscription if the user
// already holds one; the unique index serializes concurrent calls for the
// same user.
func (s *PostgresStore) Subscribe(ctx context.Context, userID int64) (*domain.Subscription, error) {
	if userID < 0 {
		return nil, domain.ErrInvalidUserID
	}

	var sub domain.Subscription
	err := s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (user_id, created_at)
		VALUES ($1, $2)
		RETURNING id, user_id, created_at
	`, userID, time.Now().Unix()).Scan(&sub.ID, &sub.UserID, &sub.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrDuplicateSubscription
		}
		return nil, fmt.Errorf("inserting subscription: %w", err)
	}

	return &sub, nil
}

// Unsubscribe hard-deletes the user's subscription. Returns
// domain.ErrSubscriptionNotFound if none exists. Deliveries already
// enqueued for this user still proceed; the ledger carries its own copy of
// the user id.
func (s *PostgresStore) Unsubscribe(ctx context.Context, userID int64) error {
	result, err := s.pool.Exec(ctx, `
		DELETE FROM subscriptions WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// ListActive returns a snapshot of all subscriptions ordered by id
// ascending. A single statement reads at one MVCC snapshot, so the result
// never contains a torn insert or a row deleted before the call.
func (s *PostgresStore) ListActive(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, created_at
		FROM subscriptions
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, sub)
	}

	if subs == nil {
		subs = []domain.Subscription{}
	}

	return subs, rows.Err()
}
