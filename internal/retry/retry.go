// Package retry applies a bounded exponential-backoff policy to any call.
package retry

import (
	"context"
	"time"
)

// DefaultMaxAttempts matches the config store's default max_retries.
const DefaultMaxAttempts = 3

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy describes how often and how long to retry.
type Policy struct {
	MaxAttempts int
	// Unit is the base backoff; the wait after failed attempt n (0-based) is Unit * 2^n.
	Unit time.Duration
	// Retryable decides whether an error is worth another attempt.
	Retryable func(error) bool
	// Sleep defaults to a context-aware timer.
	Sleep Sleeper
	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Backoff returns the wait after failed attempt n (0-based).
func (p Policy) Backoff(n int) time.Duration {
	unit := p.Unit
	if unit <= 0 {
		unit = time.Second
	}
	return unit * time.Duration(1<<uint(n))
}

// Do calls op until it succeeds, fails with a non-retryable error, or
// MaxAttempts is reached. It returns the last error seen.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) || attempt == attempts-1 {
			return err
		}
		wait := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, wait, err)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return serr
		}
	}
	return err
}

// SleepContext waits for d, returning early with ctx.Err() on cancelation.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
