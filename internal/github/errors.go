package github

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates a repo, user, or resource that does not exist (or is
// not visible with the current token). Not retried.
var ErrNotFound = errors.New("github: not found")

// RateLimitedError is returned when the API reports exhausted rate-limit
// capacity. ResetAt is when capacity returns; callers decide whether to wait.
type RateLimitedError struct {
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("github: rate limited until %s", e.ResetAt.UTC().Format(time.RFC3339))
}

// TransientError wraps failures worth retrying: network errors and 5xx
// responses.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("github: transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is a rate-limit response and returns the
// reset time when it is.
func IsRateLimited(err error) (time.Time, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.ResetAt, true
	}
	return time.Time{}, false
}
