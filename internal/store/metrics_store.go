package store

import (
	"context"
	"fmt"
)

// LedgerMetrics holds aggregated delivery statistics.
type LedgerMetrics struct {
	TotalDeliveries     int     `json:"total_deliveries"`
	SentCount           int     `json:"sent_count"`
	FailedCount         int     `json:"failed_count"`
	AbandonedCount      int     `json:"abandoned_count"`
	PendingCount        int     `json:"pending_count"`
	SuccessRate         float64 `json:"success_rate"`
	ActiveSubscriptions int     `json:"active_subscriptions"`
	TotalEvents         int     `json:"total_events"`
}

// GetLedgerMetrics returns aggregated delivery statistics from the database.
func (s *PostgresStore) GetLedgerMetrics(ctx context.Context) (*LedgerMetrics, error) {
	var m LedgerMetrics

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE state = 'sent') AS sent,
			COUNT(*) FILTER (WHERE state = 'failed') AS failed,
			COUNT(*) FILTER (WHERE state = 'abandoned') AS abandoned,
			COUNT(*) FILTER (WHERE state = 'pending') AS pending
		FROM delivery_ledger
	`).Scan(&m.TotalDeliveries, &m.SentCount, &m.FailedCount, &m.AbandonedCount, &m.PendingCount)
	if err != nil {
		return nil, fmt.Errorf("querying ledger metrics: %w", err)
	}

	if m.TotalDeliveries > 0 {
		m.SuccessRate = float64(m.SentCount) / float64(m.TotalDeliveries) * 100
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM subscriptions
	`).Scan(&m.ActiveSubscriptions)
	if err != nil {
		return nil, fmt.Errorf("querying active subscriptions: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM events
	`).Scan(&m.TotalEvents)
	if err != nil {
		return nil, fmt.Errorf("querying total events: %w", err)
	}

	return &m, nil
}
