package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"windalert/internal/domain"
)

// setupTestStore connects to the database named by TEST_DATABASE_URL and
// resets the tables. Skipped when the variable is unset.
func setupTestStore(t *testing.T) (*PostgresStore, context.Context) {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database tests")
	}

	ctx := context.Background()
	s, err := NewPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}
	t.Cleanup(s.Close)

	if err := s.RunMigrations(ctx, "../../migrations"); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	_, err = s.pool.Exec(ctx, `TRUNCATE delivery_ledger, events, subscriptions RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("resetting tables: %v", err)
	}

	return s, ctx
}

// seedPending creates one subscription per user id, one event, and a
// pending ledger row for each pairing.
func seedPending(t *testing.T, s *PostgresStore, ctx context.Context, userIDs ...int64) (string, []domain.Subscription) {
	t.Helper()

	var subs []domain.Subscription
	for _, id := range userIDs {
		sub, err := s.Subscribe(ctx, id)
		if err != nil {
			t.Fatalf("subscribing user %d: %v", id, err)
		}
		subs = append(subs, *sub)
	}

	const eventKey = "wind:1667054700"
	err := s.SaveEvent(ctx, domain.Event{Key: eventKey, Payload: []byte(`{"message":"Wind is growing up"}`)})
	if err != nil {
		t.Fatalf("saving event: %v", err)
	}

	n, err := s.InsertPending(ctx, eventKey, subs)
	if err != nil {
		t.Fatalf("inserting pending rows: %v", err)
	}
	if n != len(subs) {
		t.Fatalf("inserted %d rows, want %d", n, len(subs))
	}

	return eventKey, subs
}

func TestClaim_SingleClaimant(t *testing.T) {
	s, ctx := setupTestStore(t)
	eventKey, subs := seedPending(t, s, ctx, 100)

	claimed, err := s.Claim(ctx, eventKey, subs[0].ID, "worker-a", 30*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !claimed {
		t.Fatal("first claim on a pending row should succeed")
	}

	claimed, err = s.Claim(ctx, eventKey, subs[0].ID, "worker-b", 30*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claimed {
		t.Error("second claim under a live lease should lose")
	}
}

func TestClaim_ExpiredLeaseIsReclaimable(t *testing.T) {
	s, ctx := setupTestStore(t)
	eventKey, subs := seedPending(t, s, ctx, 100)

	if claimed, err := s.Claim(ctx, eventKey, subs[0].ID, "worker-a", 20*time.Millisecond); err != nil || !claimed {
		t.Fatalf("claim = %v, %v", claimed, err)
	}

	time.Sleep(60 * time.Millisecond)

	claimed, err := s.Claim(ctx, eventKey, subs[0].ID, "worker-b", 30*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !claimed {
		t.Error("a row under an expired lease should be claimable again")
	}
}

func TestScanDue_ExcludesLiveLeases(t *testing.T) {
	s, ctx := setupTestStore(t)
	eventKey, subs := seedPending(t, s, ctx, 100, 200)

	if claimed, err := s.Claim(ctx, eventKey, subs[0].ID, "worker-a", 30*time.Second); err != nil || !claimed {
		t.Fatalf("claim = %v, %v", claimed, err)
	}

	due, err := s.ScanDue(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("due = %d rows, want 1 (the unclaimed one)", len(due))
	}
	if due[0].SubscriptionID != subs[1].ID {
		t.Errorf("due row is subscription %d, want %d", due[0].SubscriptionID, subs[1].ID)
	}
	if len(due[0].Payload) == 0 {
		t.Error("work item should carry the event payload")
	}
}

func TestScanDue_ResumesExpiredLeases(t *testing.T) {
	s, ctx := setupTestStore(t)
	eventKey, subs := seedPending(t, s, ctx, 100)

	// a worker claimed the row and died
	if claimed, err := s.Claim(ctx, eventKey, subs[0].ID, "worker-dead", 20*time.Millisecond); err != nil || !claimed {
		t.Fatalf("claim = %v, %v", claimed, err)
	}

	time.Sleep(60 * time.Millisecond)

	due, err := s.ScanDue(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("due = %d rows, want 1 (lease expired)", len(due))
	}
	if due[0].SubscriptionID != subs[0].ID {
		t.Errorf("due row is subscription %d, want %d", due[0].SubscriptionID, subs[0].ID)
	}
}

func TestMarkSent_RequiresLiveLease(t *testing.T) {
	s, ctx := setupTestStore(t)
	eventKey, subs := seedPending(t, s, ctx, 100)

	if claimed, err := s.Claim(ctx, eventKey, subs[0].ID, "worker-a", 20*time.Millisecond); err != nil || !claimed {
		t.Fatalf("claim = %v, %v", claimed, err)
	}

	time.Sleep(60 * time.Millisecond)

	err := s.MarkSent(ctx, eventKey, subs[0].ID, "worker-a")
	if !errors.Is(err, domain.ErrLeaseExpired) {
		t.Fatalf("MarkSent after lease expiry = %v, want ErrLeaseExpired", err)
	}

	// the row is still claimable and a fresh lease can complete it
	if claimed, err := s.Claim(ctx, eventKey, subs[0].ID, "worker-b", 30*time.Second); err != nil || !claimed {
		t.Fatalf("reclaim = %v, %v", claimed, err)
	}
	if err := s.MarkSent(ctx, eventKey, subs[0].ID, "worker-b"); err != nil {
		t.Fatalf("MarkSent under a live lease: %v", err)
	}

	done, err := s.EventFullyProcessed(ctx, eventKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !done {
		t.Error("event with its only row sent should be fully processed")
	}
}

func TestMarkSent_RequiresOwningWorker(t *testing.T) {
	s, ctx := setupTestStore(t)
	eventKey, subs := seedPending(t, s, ctx, 100)

	if claimed, err := s.Claim(ctx, eventKey, subs[0].ID, "worker-a", 30*time.Second); err != nil || !claimed {
		t.Fatalf("claim = %v, %v", claimed, err)
	}

	err := s.MarkSent(ctx, eventKey, subs[0].ID, "worker-b")
	if !errors.Is(err, domain.ErrLeaseExpired) {
		t.Fatalf("MarkSent by a non-owner = %v, want ErrLeaseExpired", err)
	}
}

func TestMarkFailed_IncrementsAndReschedules(t *testing.T) {
	s, ctx := setupTestStore(t)
	eventKey, subs := seedPending(t, s, ctx, 100)

	past := time.Now().Add(-time.Second)

	if claimed, err := s.Claim(ctx, eventKey, subs[0].ID, "worker-a", 30*time.Second); err != nil || !claimed {
		t.Fatalf("claim = %v, %v", claimed, err)
	}
	retries, err := s.MarkFailed(ctx, eventKey, subs[0].ID, "worker-a", "status 500", past)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retries != 1 {
		t.Errorf("retries = %d, want 1", retries)
	}

	// the failed row is due again and carries its error
	due, err := s.ScanDue(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 1 || due[0].State != domain.StateFailed {
		t.Fatalf("due = %+v, want one failed row", due)
	}
	if due[0].LastError == nil || *due[0].LastError != "status 500" {
		t.Errorf("last_error = %v, want recorded cause", due[0].LastError)
	}

	if claimed, err := s.Claim(ctx, eventKey, subs[0].ID, "worker-a", 30*time.Second); err != nil || !claimed {
		t.Fatalf("reclaim = %v, %v", claimed, err)
	}
	retries, err = s.MarkFailed(ctx, eventKey, subs[0].ID, "worker-a", "status 500", past)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retries != 2 {
		t.Errorf("retries = %d, want 2", retries)
	}

	if err := s.MarkAbandoned(ctx, eventKey, subs[0].ID, "retries exhausted: status 500"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	due, err = s.ScanDue(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("abandoned row should never come back as due, got %d", len(due))
	}
	done, err := s.EventFullyProcessed(ctx, eventKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !done {
		t.Error("event with its only row abandoned should be fully processed")
	}
}

func TestRelease_DefersWithoutRetryCost(t *testing.T) {
	s, ctx := setupTestStore(t)
	eventKey, subs := seedPending(t, s, ctx, 100)

	if claimed, err := s.Claim(ctx, eventKey, subs[0].ID, "worker-a", 30*time.Second); err != nil || !claimed {
		t.Fatalf("claim = %v, %v", claimed, err)
	}
	if err := s.Release(ctx, eventKey, subs[0].ID, "worker-a", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// deferred an hour out, so not due now, but claimable by nobody else
	// holding a stale lease
	due, err := s.ScanDue(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("released row deferred into the future should not be due, got %d", len(due))
	}

	var retryCount int
	var state string
	err = s.pool.QueryRow(ctx, `
		SELECT retry_count, state FROM delivery_ledger
		WHERE event_key = $1 AND subscription_id = $2
	`, eventKey, subs[0].ID).Scan(&retryCount, &state)
	if err != nil {
		t.Fatalf("reading row back: %v", err)
	}
	if retryCount != 0 {
		t.Errorf("retry_count = %d, release must not count as an attempt", retryCount)
	}
	if state != domain.StatePending {
		t.Errorf("state = %q, want %q", state, domain.StatePending)
	}
}
