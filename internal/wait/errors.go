package wait

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("wait timed out")
	// ErrNotReady is returned by a Check that wants to be polled again.
	ErrNotReady = errors.New("condition not yet satisfied")
)

// TimeoutError reports a condition that never held within its budget.
type TimeoutError struct {
	Condition string
	Timeout   time.Duration
	Polls     int
	// Last is the most recent transient failure, if any.
	Last error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s waiting for %s (%d polls)", e.Timeout, e.Condition, e.Polls)
	if e.Last != nil {
		msg += ": last: " + e.Last.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrTimeout) hold.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

func (e *TimeoutError) Unwrap() error {
	return e.Last
}

// IsTimeout reports whether err is, or wraps, a wait timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func notReady(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotReady}, args...)...)
}
