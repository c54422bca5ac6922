package worker

import (
	"context"
	"log/slog"
	"time"

	"windalert/internal/domain"
)

// WorkSource is the ledger surface the dispatcher pulls tasks from.
type WorkSource interface {
	ScanDue(ctx context.Context, limit int) ([]domain.Delivery, error)
	Claim(ctx context.Context, eventKey string, subscriptionID int64, workerID string, leaseTTL time.Duration) (bool, error)
}

// Dispatcher polls the ledger for due work and feeds the pool. Pending
// rows are the queue, so the first poll after startup is also the crash
// recovery pass: tasks left pending by a dead process come back with no
// extra bookkeeping.
type Dispatcher struct {
	source       WorkSource
	pool         *Pool
	workerID     string
	leaseTTL     time.Duration
	pollInterval time.Duration
	batchSize    int
	logger       *slog.Logger
	done         chan struct{}
}

func NewDispatcher(source WorkSource, pool *Pool, workerID string, leaseTTL time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		source:       source,
		pool:         pool,
		workerID:     workerID,
		leaseTTL:     leaseTTL,
		pollInterval: 500 * time.Millisecond,
		batchSize:    25,
		logger:       logger,
		done:         make(chan struct{}),
	}
}

// Start polls until the context is cancelled. The first scan runs
// immediately to resume work left over from before a restart.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.done)

	d.logger.Info("dispatcher started", "worker_id", d.workerID)

	d.poll(ctx)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

// Wait blocks until Start has returned. Shutdown must join the dispatcher
// before stopping the pool; a poll caught between Claim and Submit would
// otherwise send on a closed channel.
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) poll(ctx context.Context) {
	tasks, err := d.source.ScanDue(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("failed to scan for due deliveries", "error", err)
		return
	}

	for _, task := range tasks {
		// Atomic claim; losing the race to another dispatcher instance
		// is normal and just skipped.
		claimed, err := d.source.Claim(ctx, task.EventKey, task.SubscriptionID, d.workerID, d.leaseTTL)
		if err != nil {
			d.logger.Error("failed to claim delivery",
				"error", err,
				"event_key", task.EventKey,
				"subscription_id", task.SubscriptionID,
			)
			continue
		}
		if !claimed {
			continue
		}

		d.pool.Submit(task)
	}
}
