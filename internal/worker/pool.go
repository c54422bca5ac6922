package worker

import (
	"context"
	"log/slog"
	"sync"

	"windalert/internal/domain"
)

// Pool runs a fixed number of goroutines delivering claimed ledger tasks.
type Pool struct {
	numWorkers int
	tasks      chan domain.Delivery
	deliverer  *Deliverer
	logger     *slog.Logger
	wg         sync.WaitGroup
}

func NewPool(numWorkers int, deliverer *Deliverer, logger *slog.Logger) *Pool {
	return &Pool{
		numWorkers: numWorkers,
		tasks:      make(chan domain.Delivery, numWorkers*2),
		deliverer:  deliverer,
		logger:     logger,
	}
}

// Start launches the workers. They drain the task channel until it is
// closed or the context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers)
}

// Submit hands a claimed task to the pool. Blocks when all workers are
// busy and the buffer is full, which throttles the dispatcher naturally.
func (p *Pool) Submit(task domain.Delivery) {
	p.tasks <- task
}

// Stop closes the task channel and waits for in-flight deliveries to
// finish.
func (p *Pool) Stop() {
	close(p.tasks)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	// Drain until the channel closes. Returning early on ctx would strand
	// a dispatcher blocked in Submit; cancellation reaches the delivery
	// through ctx instead.
	for task := range p.tasks {
		p.deliverer.Deliver(ctx, task)
	}
}
