package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lkraemer/gitscout/internal/github"
)

func TestWithRetryNotFoundIsPermanent(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "r", 3, time.Minute, func(time.Duration) {},
		func() error {
			calls++
			return github.ErrNotFound
		})
	if !errors.Is(err, github.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if calls != 1 {
		t.Errorf("not found must not be retried, got %d calls", calls)
	}
}

func TestWithRetryTransientRecovers(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "r", 3, time.Minute, func(time.Duration) {},
		func() error {
			calls++
			if calls < 3 {
				return &github.TransientError{Err: errors.New("flaky")}
			}
			return nil
		})
	if err != nil {
		t.Errorf("expected recovery, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetryRateLimitWaitCapped(t *testing.T) {
	var waits []time.Duration
	err := withRetry(context.Background(), "r", 1, 10*time.Second,
		func(d time.Duration) { waits = append(waits, d) },
		func() error {
			return &github.RateLimitedError{ResetAt: time.Now().Add(time.Hour)}
		})

	var su *SourceUnavailableError
	if !errors.As(err, &su) {
		t.Fatalf("expected SourceUnavailableError, got %v", err)
	}
	if len(waits) != 1 || waits[0] != 10*time.Second {
		t.Errorf("expected one capped wait, got %v", waits)
	}
}

func TestWithRetryUnknownErrorNotRetried(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := withRetry(context.Background(), "r", 3, time.Minute, func(time.Duration) {},
		func() error {
			calls++
			return boom
		})
	if !errors.Is(err, boom) {
		t.Errorf("expected original error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("unknown errors must not be retried, got %d calls", calls)
	}
}
