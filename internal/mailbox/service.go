// Package mailbox holds the provider-neutral side of talking to a remote
// mailbox: the service contract, its error taxonomy, query construction, and
// the retrying fetch and mutation loops built on top of it.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/G2mcab/Email-extractor/internal/model"
	"github.com/G2mcab/Email-extractor/internal/retry"
)

// Service declares the remote capabilities a run depends on. The Gmail
// adapter implements it; tests use in-memory fakes.
type Service interface {
	List(ctx context.Context, query string) ([]model.MessageRef, error)
	Get(ctx context.Context, id string) (*model.Message, error)
	Trash(ctx context.Context, id string) error
	Archive(ctx context.Context, id string) error
}

// TransientError is a provider failure expected to succeed on retry
// (rate limited or temporarily unavailable).
type TransientError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient provider error (status %d): %v", e.Op, e.Status, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is any other provider failure.
type PermanentError struct {
	Op     string
	Status int
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: provider error (status %d): %v", e.Op, e.Status, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or anything it wraps) is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// StatusOf extracts the provider status code carried by err, or 0.
func StatusOf(err error) int {
	var te *TransientError
	if errors.As(err, &te) {
		return te.Status
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return pe.Status
	}
	return 0
}

// Options configure the retry behavior shared by Fetcher and Mutator.
type Options struct {
	MaxRetries  int
	BackoffUnit time.Duration
	Sleep       retry.Sleeper
	Logger      *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o Options) policy(logger *slog.Logger) retry.Policy {
	return retry.Policy{
		MaxAttempts: o.MaxRetries,
		Unit:        o.BackoffUnit,
		Retryable:   IsTransient,
		Sleep:       o.Sleep,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			logger.Warn("provider error, retrying", "attempt", attempt, "wait", wait, "status", StatusOf(err), "err", err)
		},
	}
}
