package engine

import (
	"context"
	"fmt"
	"log/slog"

	"windalert/internal/domain"
)

// SubscriptionSource is the scheduler's read-only view of the
// subscription store.
type SubscriptionSource interface {
	ListActive(ctx context.Context) ([]domain.Subscription, error)
}

// Ledger is the slice of the delivery ledger the scheduler needs for
// fan-out.
type Ledger interface {
	EventFullyProcessed(ctx context.Context, eventKey string) (bool, error)
	InsertPending(ctx context.Context, eventKey string, subs []domain.Subscription) (int, error)
}

// EventStore persists events so pending ledger rows can be recovered with
// their payload after a restart.
type EventStore interface {
	SaveEvent(ctx context.Context, ev domain.Event) error
}

// OpsAlerter is the optional operator side channel notified on every
// fired event.
type OpsAlerter interface {
	Alert(subject, body string) error
}

// Scheduler computes the fan-out for each event and writes pending ledger
// rows, which double as the durable work queue. It runs as a single actor:
// one caller at a time drives OnEvent, so no fan-out races with itself.
type Scheduler struct {
	subs   SubscriptionSource
	ledger Ledger
	events EventStore
	ops    OpsAlerter
	logger *slog.Logger
}

func NewScheduler(subs SubscriptionSource, ledger Ledger, events EventStore, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		subs:   subs,
		ledger: ledger,
		events: events,
		logger: logger,
	}
}

// WithOpsAlerter attaches the operator email side channel.
func (s *Scheduler) WithOpsAlerter(ops OpsAlerter) *Scheduler {
	s.ops = ops
	return s
}

// OnEvent dispatches one event and returns the number of deliveries
// queued. It is idempotent: re-dispatching a fully processed key queues
// nothing, and re-dispatching a partially processed key (crash during a
// previous fan-out) only fills the gaps.
func (s *Scheduler) OnEvent(ctx context.Context, ev domain.Event) (int, error) {
	done, err := s.ledger.EventFullyProcessed(ctx, ev.Key)
	if err != nil {
		return 0, fmt.Errorf("checking event completion: %w", err)
	}
	if done {
		s.logger.Info("event already fully processed, skipping", "event_key", ev.Key)
		return 0, nil
	}

	if err := s.events.SaveEvent(ctx, ev); err != nil {
		return 0, fmt.Errorf("saving event: %w", err)
	}

	subs, err := s.subs.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing active subscriptions: %w", err)
	}

	queued, err := s.ledger.InsertPending(ctx, ev.Key, subs)
	if err != nil {
		return queued, fmt.Errorf("queuing deliveries: %w", err)
	}

	s.logger.Info("fan-out complete",
		"event_key", ev.Key,
		"subscribers", len(subs),
		"deliveries_queued", queued,
	)

	if s.ops != nil {
		if err := s.ops.Alert("windalert: event fired", ev.Message()); err != nil {
			s.logger.Warn("operator alert failed", "error", err, "event_key", ev.Key)
		}
	}

	return queued, nil
}
