package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lkraemer/gitscout/internal/github"
)

// SourceUnavailableError marks a repository whose source calls kept
// failing after the bounded retry budget. It isolates that repository's
// failure; the rest of the sweep continues.
type SourceUnavailableError struct {
	Repo string
	Err  error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source unavailable for %s: %v", e.Repo, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

const transientBackoff = 2 * time.Second

// withRetry runs fn, retrying rate-limit responses after the
// adapter-reported reset (capped at maxWait) and transient failures
// after a fixed backoff. After maxRetries additional attempts the last
// error surfaces as SourceUnavailableError. NotFound and other
// permanent errors are never retried.
func withRetry(ctx context.Context, repo string, maxRetries int, maxWait time.Duration,
	sleep func(time.Duration), fn func() error) error {

	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, github.ErrNotFound) {
			return err
		}
		if attempt >= maxRetries {
			break
		}

		var wait time.Duration
		if resetAt, ok := github.IsRateLimited(err); ok {
			wait = time.Until(resetAt)
			if wait > maxWait {
				wait = maxWait
			}
			if wait < 0 {
				wait = 0
			}
			log.Printf("Rate limited polling %s, waiting %s (attempt %d/%d)",
				repo, wait.Round(time.Second), attempt+1, maxRetries)
		} else {
			var te *github.TransientError
			if !errors.As(err, &te) {
				return err
			}
			wait = transientBackoff
			log.Printf("Transient error polling %s: %v (attempt %d/%d)",
				repo, err, attempt+1, maxRetries)
		}

		sleep(wait)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return &SourceUnavailableError{Repo: repo, Err: err}
}
