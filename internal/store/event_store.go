package store

import (
	"context"
	"fmt"

	"windalert/internal/domain"
)

// SaveEvent persists an event. Inserting an already-known key is a no-op,
// which makes event dispatch replay-safe.
func (s *PostgresStore) SaveEvent(ctx context.Context, ev domain.Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO events (event_key, payload)
		VALUES ($1, $2)
		ON CONFLICT (event_key) DO NOTHING
	`, ev.Key, string(ev.Payload))
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// GetEvent returns the event for a key, or nil if unknown.
func (s *PostgresStore) GetEvent(ctx context.Context, key string) (*domain.Event, error) {
	var ev domain.Event
	var payload string
	err := s.pool.QueryRow(ctx, `
		SELECT event_key, payload, created_at
		FROM events WHERE event_key = $1
	`, key).Scan(&ev.Key, &payload, &ev.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying event: %w", err)
	}
	ev.Payload = []byte(payload)
	return &ev, nil
}

// ListEvents returns the most recent events, newest first.
func (s *PostgresStore) ListEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT event_key, payload, created_at
		FROM events
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		var payload string
		if err := rows.Scan(&ev.Key, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.Payload = []byte(payload)
		events = append(events, ev)
	}

	if events == nil {
		events = []domain.Event{}
	}

	return events, rows.Err()
}
