package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"windalert/internal/domain"
)

type fakeWorkSource struct {
	due     []domain.Delivery
	claimed map[string]bool
	deny    map[string]bool
}

func taskID(eventKey string, subscriptionID int64) string {
	return fmt.Sprintf("%s/%d", eventKey, subscriptionID)
}

func (f *fakeWorkSource) ScanDue(ctx context.Context, limit int) ([]domain.Delivery, error) {
	if len(f.due) > limit {
		return f.due[:limit], nil
	}
	return f.due, nil
}

func (f *fakeWorkSource) Claim(ctx context.Context, eventKey string, subscriptionID int64, workerID string, leaseTTL time.Duration) (bool, error) {
	id := taskID(eventKey, subscriptionID)
	if f.deny[id] {
		return false, nil
	}
	if f.claimed == nil {
		f.claimed = make(map[string]bool)
	}
	f.claimed[id] = true
	return true, nil
}

func newIdlePool(t *testing.T) (*Pool, *countingChannel) {
	t.Helper()
	ch := &countingChannel{}
	d := NewDeliverer(&syncLedger{}, ch, nil, nil, nil, nil, discardLogger(), DelivererConfig{
		WorkerID:   "test-worker",
		MaxRetries: 3,
	})
	pool := NewPool(2, d, discardLogger())
	pool.Start(context.Background())
	return pool, ch
}

func TestDispatcher_ClaimsAndSubmitsDueWork(t *testing.T) {
	source := &fakeWorkSource{due: []domain.Delivery{
		{EventKey: "wind:1", SubscriptionID: 1, UserID: 100, Payload: []byte("a")},
		{EventKey: "wind:1", SubscriptionID: 2, UserID: 200, Payload: []byte("b")},
	}}
	pool, ch := newIdlePool(t)

	d := NewDispatcher(source, pool, "test-worker", 30*time.Second, discardLogger())
	d.poll(context.Background())
	pool.Stop()

	if len(source.claimed) != 2 {
		t.Errorf("claimed %d tasks, want 2", len(source.claimed))
	}
	if got := ch.sends.Load(); got != 2 {
		t.Errorf("delivered %d tasks, want 2", got)
	}
}

func TestDispatcher_SkipsLostClaimRace(t *testing.T) {
	source := &fakeWorkSource{
		due: []domain.Delivery{
			{EventKey: "wind:1", SubscriptionID: 1, UserID: 100, Payload: []byte("a")},
			{EventKey: "wind:1", SubscriptionID: 2, UserID: 200, Payload: []byte("b")},
		},
		deny: map[string]bool{taskID("wind:1", 1): true},
	}
	pool, ch := newIdlePool(t)

	d := NewDispatcher(source, pool, "test-worker", 30*time.Second, discardLogger())
	d.poll(context.Background())
	pool.Stop()

	if got := ch.sends.Load(); got != 1 {
		t.Errorf("delivered %d tasks, want 1 (lost race skipped)", got)
	}
}

func TestDispatcher_StopsOnContextCancel(t *testing.T) {
	source := &fakeWorkSource{}
	pool, _ := newIdlePool(t)
	defer pool.Stop()

	d := NewDispatcher(source, pool, "test-worker", 30*time.Second, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go d.Start(ctx)

	cancel()
	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

func TestDispatcher_ShutdownJoinsBeforePoolStop(t *testing.T) {
	source := &fakeWorkSource{due: []domain.Delivery{
		{EventKey: "wind:1", SubscriptionID: 1, UserID: 100, Payload: []byte("a")},
		{EventKey: "wind:1", SubscriptionID: 2, UserID: 200, Payload: []byte("b")},
	}}
	pool, ch := newIdlePool(t)

	d := NewDispatcher(source, pool, "test-worker", 30*time.Second, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go d.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()

	// shutdown order: join the dispatcher, then close the pool; must not
	// panic on a submit to a closed channel and must not hang
	done := make(chan struct{})
	go func() {
		d.Wait()
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	if ch.sends.Load() == 0 {
		t.Error("claimed work submitted before shutdown should still be delivered")
	}
}
