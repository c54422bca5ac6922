// Package channel holds the outbound delivery boundary. A Channel is the
// only component with externally visible side effects; everything behind
// it classifies failures as retryable or not and leaves retry policy to
// the worker pool.
package channel

import (
	"context"
	"errors"
	"fmt"
)

// Channel delivers one notification to one user.
type Channel interface {
	// Name identifies the channel in logs and circuit breaker state.
	Name() string
	// Send delivers the message. Errors are either *TransientError or
	// *PermanentError; anything else is treated as transient.
	Send(ctx context.Context, userID int64, text string) error
}

// TransientError marks a failure worth retrying: the channel was
// unavailable, timed out, or asked us to back off.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient delivery error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that no retry can fix, such as a
// recipient that blocked the bot. The delivery should be abandoned.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent delivery error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err means the recipient is unreachable for
// good.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
