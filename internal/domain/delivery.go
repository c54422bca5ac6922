package domain

import (
	"errors"
	"time"
)

// Delivery states. A (event_key, subscription_id) pair moves
// pending → sent, or pending → failed → ... → abandoned. Sent and
// abandoned are terminal; rows are never deleted.
const (
	StatePending   = "pending"
	StateSent      = "sent"
	StateFailed    = "failed"
	StateAbandoned = "abandoned"
)

// ErrLeaseExpired is returned when a worker tries to record an outcome for
// a task whose lease it no longer holds. The task is reclaimable by another
// worker.
var ErrLeaseExpired = errors.New("delivery lease expired")

// Delivery is one ledger entry: a single (event, subscription) pairing
// tracked through the delivery state machine.
type Delivery struct {
	EventKey       string     `json:"event_key"`
	SubscriptionID int64      `json:"subscription_id"`
	UserID         int64      `json:"user_id"`
	State          string     `json:"state"`
	RetryCount     int        `json:"retry_count"`
	ClaimedBy      *string    `json:"claimed_by,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
	NextRetryAt    time.Time  `json:"next_retry_at"`
	LastError      *string    `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Payload is joined in from the events table when the row is scanned
	// as a work item; it is not a ledger column.
	Payload []byte `json:"-"`
}

// Terminal reports whether the delivery reached a final state.
func (d Delivery) Terminal() bool {
	return d.State == StateSent || d.State == StateAbandoned
}
