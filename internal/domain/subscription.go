package domain

import "errors"

var (
	// ErrDuplicateSubscription is returned when a user already holds an
	// active subscription.
	ErrDuplicateSubscription = errors.New("subscription already exists for user")

	// ErrSubscriptionNotFound is returned when unsubscribing a user with
	// no active subscription.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrInvalidUserID is returned for negative user ids.
	ErrInvalidUserID = errors.New("user_id must be non-negative")
)

// Subscription is a single user's registration for wind alerts.
// IDs are assigned by the store and increase monotonically; created_at is
// epoch seconds set at insert time. Rows are immutable; unsubscribe is a
// hard delete and re-subscribing allocates a fresh id.
type Subscription struct {
	ID        int64 `json:"id"`
	UserID    int64 `json:"user_id"`
	CreatedAt int64 `json:"created_at"`
}
