package store

import (
	"context"
	"fmt"
	"time"

	"windalert/internal/domain"
)

// InsertPending creates a pending ledger entry for each subscription that
// does not already have one for this event. Existing entries, terminal or
// not, are left untouched, so a crashed fan-out can be resumed without
// duplicating work. Returns the number of rows actually inserted.
func (s *PostgresStore) InsertPending(ctx context.Context, eventKey string, subs []domain.Subscription) (int, error) {
	inserted := 0
	for _, sub := range subs {
		result, err := s.pool.Exec(ctx, `
			INSERT INTO delivery_ledger (event_key, subscription_id, user_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (event_key, subscription_id) DO NOTHING
		`, eventKey, sub.ID, sub.UserID)
		if err != nil {
			return inserted, fmt.Errorf("inserting ledger entry for subscription %d: %w", sub.ID, err)
		}
		inserted += int(result.RowsAffected())
	}
	return inserted, nil
}

// EventFullyProcessed reports whether the event has at least one ledger
// entry and every entry reached a terminal state. Dispatching such an
// event again enqueues nothing.
func (s *PostgresStore) EventFullyProcessed(ctx context.Context, eventKey string) (bool, error) {
	var total, open int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE state NOT IN ('sent', 'abandoned'))
		FROM delivery_ledger
		WHERE event_key = $1
	`, eventKey).Scan(&total, &open)
	if err != nil {
		return false, fmt.Errorf("querying ledger completion: %w", err)
	}
	return total > 0 && open == 0, nil
}

// ScanDue returns work items ready for delivery: non-terminal entries whose
// retry time has passed and whose lease, if any, has expired. Ordered by
// creation time so events drain FIFO. The payload is joined in from the
// events table.
func (s *PostgresStore) ScanDue(ctx context.Context, limit int) ([]domain.Delivery, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT l.event_key, l.subscription_id, l.user_id, l.state, l.retry_count,
		       l.claimed_by, l.lease_expires_at, l.next_retry_at, l.last_error,
		       l.created_at, l.updated_at, e.payload
		FROM delivery_ledger l
		JOIN events e ON e.event_key = l.event_key
		WHERE l.state IN ('pending', 'failed')
		  AND l.next_retry_at <= NOW()
		  AND (l.claimed_by IS NULL OR l.lease_expires_at < NOW())
		ORDER BY l.created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("scanning due deliveries: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Delivery
	for rows.Next() {
		var d domain.Delivery
		var payload string
		err := rows.Scan(
			&d.EventKey, &d.SubscriptionID, &d.UserID, &d.State, &d.RetryCount,
			&d.ClaimedBy, &d.LeaseExpiresAt, &d.NextRetryAt, &d.LastError,
			&d.CreatedAt, &d.UpdatedAt, &payload,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		d.Payload = []byte(payload)
		tasks = append(tasks, d)
	}

	return tasks, rows.Err()
}

// Claim takes an exclusive lease on a task. The compare-and-set update
// succeeds only when the entry is non-terminal and either unclaimed or
// held under an expired lease, so no two workers can deliver the same
// (event, subscription) pair concurrently. Returns false when another
// worker won the race.
func (s *PostgresStore) Claim(ctx context.Context, eventKey string, subscriptionID int64, workerID string, leaseTTL time.Duration) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE delivery_ledger
		SET claimed_by = $1,
		    lease_expires_at = NOW() + $2,
		    updated_at = NOW()
		WHERE event_key = $3
		  AND subscription_id = $4
		  AND state IN ('pending', 'failed')
		  AND (claimed_by IS NULL OR lease_expires_at < NOW())
	`, workerID, leaseTTL, eventKey, subscriptionID)
	if err != nil {
		return false, fmt.Errorf("claiming delivery: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// Release gives up a claim without recording an attempt, deferring the task
// by delay. Used when the send was gated before touching the channel (rate
// limit, open circuit).
func (s *PostgresStore) Release(ctx context.Context, eventKey string, subscriptionID int64, workerID string, delay time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE delivery_ledger
		SET claimed_by = NULL,
		    lease_expires_at = NULL,
		    next_retry_at = NOW() + $1,
		    updated_at = NOW()
		WHERE event_key = $2 AND subscription_id = $3 AND claimed_by = $4
	`, delay, eventKey, subscriptionID, workerID)
	if err != nil {
		return fmt.Errorf("releasing delivery claim: %w", err)
	}
	return nil
}

// MarkSent records successful delivery. The update requires a live lease
// held by this worker; domain.ErrLeaseExpired otherwise. The external send
// already happened at this point, so a lost lease means a possible
// duplicate on retry, which is the accepted at-least-once window.
func (s *PostgresStore) MarkSent(ctx context.Context, eventKey string, subscriptionID int64, workerID string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE delivery_ledger
		SET state = 'sent',
		    claimed_by = NULL,
		    lease_expires_at = NULL,
		    last_error = NULL,
		    updated_at = NOW()
		WHERE event_key = $1
		  AND subscription_id = $2
		  AND claimed_by = $3
		  AND lease_expires_at >= NOW()
	`, eventKey, subscriptionID, workerID)
	if err != nil {
		return fmt.Errorf("marking delivery sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrLeaseExpired
	}
	return nil
}

// MarkFailed records a transient failure: the retry counter is incremented
// and the task is scheduled for nextRetryAt. Returns the new retry count.
func (s *PostgresStore) MarkFailed(ctx context.Context, eventKey string, subscriptionID int64, workerID, cause string, nextRetryAt time.Time) (int, error) {
	var retryCount int
	err := s.pool.QueryRow(ctx, `
		UPDATE delivery_ledger
		SET state = 'failed',
		    retry_count = retry_count + 1,
		    claimed_by = NULL,
		    lease_expires_at = NULL,
		    next_retry_at = $1,
		    last_error = $2,
		    updated_at = NOW()
		WHERE event_key = $3
		  AND subscription_id = $4
		  AND claimed_by = $5
		  AND lease_expires_at >= NOW()
		RETURNING retry_count
	`, nextRetryAt, cause, eventKey, subscriptionID, workerID).Scan(&retryCount)
	if err != nil {
		if isNoRows(err) {
			return 0, domain.ErrLeaseExpired
		}
		return 0, fmt.Errorf("marking delivery failed: %w", err)
	}
	return retryCount, nil
}

// MarkAbandoned moves the entry to its terminal give-up state, either after
// exhausting retries or on a permanent channel error.
func (s *PostgresStore) MarkAbandoned(ctx context.Context, eventKey string, subscriptionID int64, cause string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE delivery_ledger
		SET state = 'abandoned',
		    claimed_by = NULL,
		    lease_expires_at = NULL,
		    last_error = $1,
		    updated_at = NOW()
		WHERE event_key = $2
		  AND subscription_id = $3
		  AND state NOT IN ('sent', 'abandoned')
	`, cause, eventKey, subscriptionID)
	if err != nil {
		return fmt.Errorf("marking delivery abandoned: %w", err)
	}
	return nil
}

// ListDeliveries returns ledger entries with optional filtering, newest
// first.
func (s *PostgresStore) ListDeliveries(ctx context.Context, eventKey, state string, limit int) ([]domain.Delivery, error) {
	query := `SELECT event_key, subscription_id, user_id, state, retry_count,
	                 claimed_by, lease_expires_at, next_retry_at, last_error,
	                 created_at, updated_at
	          FROM delivery_ledger`
	args := []interface{}{}
	argIdx := 1
	conditions := []string{}

	if eventKey != "" {
		conditions = append(conditions, fmt.Sprintf("event_key = $%d", argIdx))
		args = append(args, eventKey)
		argIdx++
	}
	if state != "" {
		conditions = append(conditions, fmt.Sprintf("state = $%d", argIdx))
		args = append(args, state)
		argIdx++
	}

	if len(conditions) > 0 {
		query += " WHERE "
		for i, c := range conditions {
			if i > 0 {
				query += " AND "
			}
			query += c
		}
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []domain.Delivery
	for rows.Next() {
		var d domain.Delivery
		err := rows.Scan(
			&d.EventKey, &d.SubscriptionID, &d.UserID, &d.State, &d.RetryCount,
			&d.ClaimedBy, &d.LeaseExpiresAt, &d.NextRetryAt, &d.LastError,
			&d.CreatedAt, &d.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}

	if deliveries == nil {
		deliveries = []domain.Delivery{}
	}

	return deliveries, rows.Err()
}
