package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"windalert/internal/channel"
	"windalert/internal/domain"
	"windalert/internal/engine"
	ws "windalert/internal/websocket"
)

// DeliveryLedger is the ledger surface a worker needs to record outcomes.
type DeliveryLedger interface {
	MarkSent(ctx context.Context, eventKey string, subscriptionID int64, workerID string) error
	MarkFailed(ctx context.Context, eventKey string, subscriptionID int64, workerID, cause string, nextRetryAt time.Time) (int, error)
	MarkAbandoned(ctx context.Context, eventKey string, subscriptionID int64, cause string) error
	Release(ctx context.Context, eventKey string, subscriptionID int64, workerID string, delay time.Duration) error
}

// Unsubscriber removes a subscription whose channel endpoint is dead.
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, userID int64) error
}

// Deliverer executes one claimed ledger task against the delivery channel
// and records the outcome. Delivery errors never escape: they end as a
// ledger transition, not as a returned error.
type Deliverer struct {
	ledger          DeliveryLedger
	ch              channel.Channel
	subs            Unsubscriber
	circuitBreaker  *engine.CircuitBreaker
	rateLimiter     *engine.RateLimiter
	hub             *ws.Hub
	logger          *slog.Logger
	workerID        string
	maxRetries      int
	backoffBase     time.Duration
	backoffCap      time.Duration
	ratePerChat     int
	autoUnsubscribe bool
}

type DelivererConfig struct {
	WorkerID        string
	MaxRetries      int
	BackoffBase     time.Duration
	BackoffCap      time.Duration
	RatePerChat     int
	AutoUnsubscribe bool
}

func NewDeliverer(ledger DeliveryLedger, ch channel.Channel, subs Unsubscriber, cb *engine.CircuitBreaker, rl *engine.RateLimiter, hub *ws.Hub, logger *slog.Logger, cfg DelivererConfig) *Deliverer {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 5 * time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 5 * time.Minute
	}
	return &Deliverer{
		ledger:          ledger,
		ch:              ch,
		subs:            subs,
		circuitBreaker:  cb,
		rateLimiter:     rl,
		hub:             hub,
		logger:          logger,
		workerID:        cfg.WorkerID,
		maxRetries:      cfg.MaxRetries,
		backoffBase:     cfg.BackoffBase,
		backoffCap:      cfg.BackoffCap,
		ratePerChat:     cfg.RatePerChat,
		autoUnsubscribe: cfg.AutoUnsubscribe,
	}
}

// Deliver sends one notification. The caller holds the lease; every exit
// path either records an outcome or releases the claim.
func (d *Deliverer) Deliver(ctx context.Context, task domain.Delivery) {
	if d.circuitBreaker != nil {
		if _, ok := d.circuitBreaker.AllowRequest(ctx, d.ch.Name()); !ok {
			d.release(ctx, task, 5*time.Second)
			return
		}
	}

	if d.rateLimiter != nil && !d.rateLimiter.Allow(ctx, task.UserID, d.ratePerChat) {
		d.release(ctx, task, time.Second)
		return
	}

	attempt := task.RetryCount + 1
	err := d.ch.Send(ctx, task.UserID, payloadMessage(task.Payload))

	switch {
	case err == nil:
		d.recordSent(ctx, task, attempt)
	case channel.IsPermanent(err):
		d.recordPermanentFailure(ctx, task, attempt, err)
	default:
		d.recordTransientFailure(ctx, task, attempt, err)
	}
}

func (d *Deliverer) recordSent(ctx context.Context, task domain.Delivery, attempt int) {
	if d.circuitBreaker != nil {
		d.circuitBreaker.RecordSuccess(ctx, d.ch.Name())
	}

	err := d.ledger.MarkSent(ctx, task.EventKey, task.SubscriptionID, d.workerID)
	if errors.Is(err, domain.ErrLeaseExpired) {
		// The send went out but the lease lapsed before the mark: the
		// task stays claimable and the user may get a duplicate. This is
		// the accepted at-least-once window.
		d.logger.Warn("lease expired after successful send, possible duplicate",
			"event_key", task.EventKey,
			"subscription_id", task.SubscriptionID,
		)
		return
	}
	if err != nil {
		d.logger.Error("failed to record sent delivery",
			"error", err,
			"event_key", task.EventKey,
			"subscription_id", task.SubscriptionID,
		)
		return
	}

	d.logger.Info("delivery sent",
		"event_key", task.EventKey,
		"subscription_id", task.SubscriptionID,
		"user_id", task.UserID,
		"attempt", attempt,
	)
	d.broadcast("delivery_sent", task, attempt, "")
}

func (d *Deliverer) recordPermanentFailure(ctx context.Context, task domain.Delivery, attempt int, sendErr error) {
	// A blocked bot or deleted chat says nothing about channel health, so
	// the circuit breaker is not touched here.
	if err := d.ledger.MarkAbandoned(ctx, task.EventKey, task.SubscriptionID, sendErr.Error()); err != nil {
		d.logger.Error("failed to record abandoned delivery",
			"error", err,
			"event_key", task.EventKey,
			"subscription_id", task.SubscriptionID,
		)
		return
	}

	d.logger.Warn("delivery abandoned, recipient unreachable",
		"event_key", task.EventKey,
		"subscription_id", task.SubscriptionID,
		"user_id", task.UserID,
		"error", sendErr,
	)
	d.broadcast("delivery_abandoned", task, attempt, sendErr.Error())

	if d.autoUnsubscribe && d.subs != nil {
		err := d.subs.Unsubscribe(ctx, task.UserID)
		if err != nil && !errors.Is(err, domain.ErrSubscriptionNotFound) {
			d.logger.Error("failed to auto-unsubscribe dead recipient",
				"error", err,
				"user_id", task.UserID,
			)
		} else if err == nil {
			d.logger.Info("auto-unsubscribed dead recipient", "user_id", task.UserID)
		}
	}
}

func (d *Deliverer) recordTransientFailure(ctx context.Context, task domain.Delivery, attempt int, sendErr error) {
	if d.circuitBreaker != nil {
		d.circuitBreaker.RecordFailure(ctx, d.ch.Name())
	}

	retries, err := d.ledger.MarkFailed(ctx, task.EventKey, task.SubscriptionID, d.workerID,
		sendErr.Error(), time.Now().Add(d.backoff(attempt)))
	if errors.Is(err, domain.ErrLeaseExpired) {
		d.logger.Warn("lease expired before failure was recorded",
			"event_key", task.EventKey,
			"subscription_id", task.SubscriptionID,
		)
		return
	}
	if err != nil {
		d.logger.Error("failed to record failed delivery",
			"error", err,
			"event_key", task.EventKey,
			"subscription_id", task.SubscriptionID,
		)
		return
	}

	if retries >= d.maxRetries {
		cause := "retries exhausted: " + sendErr.Error()
		if err := d.ledger.MarkAbandoned(ctx, task.EventKey, task.SubscriptionID, cause); err != nil {
			d.logger.Error("failed to abandon exhausted delivery",
				"error", err,
				"event_key", task.EventKey,
				"subscription_id", task.SubscriptionID,
			)
			return
		}
		d.logger.Warn("delivery abandoned after max retries",
			"event_key", task.EventKey,
			"subscription_id", task.SubscriptionID,
			"user_id", task.UserID,
			"retries", retries,
		)
		d.broadcast("delivery_abandoned", task, attempt, cause)
		return
	}

	d.logger.Warn("delivery failed, will retry",
		"event_key", task.EventKey,
		"subscription_id", task.SubscriptionID,
		"user_id", task.UserID,
		"attempt", attempt,
		"error", sendErr,
	)
	d.broadcast("delivery_retrying", task, attempt, sendErr.Error())
}

func (d *Deliverer) release(ctx context.Context, task domain.Delivery, delay time.Duration) {
	if err := d.ledger.Release(ctx, task.EventKey, task.SubscriptionID, d.workerID, delay); err != nil {
		d.logger.Error("failed to release delivery claim",
			"error", err,
			"event_key", task.EventKey,
			"subscription_id", task.SubscriptionID,
		)
	}
}

// backoff returns the delay before retry n (1-based): base doubled per
// attempt, capped.
func (d *Deliverer) backoff(n int) time.Duration {
	delay := d.backoffBase
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= d.backoffCap {
			return d.backoffCap
		}
	}
	if delay > d.backoffCap {
		return d.backoffCap
	}
	return delay
}

func (d *Deliverer) broadcast(eventType string, task domain.Delivery, attempt int, errMsg string) {
	if d.hub == nil {
		return
	}
	d.hub.Broadcast(ws.DeliveryEvent{
		Type:           eventType,
		EventKey:       task.EventKey,
		SubscriptionID: task.SubscriptionID,
		UserID:         task.UserID,
		Attempt:        attempt,
		Error:          errMsg,
		Timestamp:      time.Now(),
	})
}

func payloadMessage(payload []byte) string {
	var p domain.EventPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Message == "" {
		return string(payload)
	}
	return p.Message
}
