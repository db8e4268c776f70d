package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBusy = errors.New("busy")

type recorder struct {
	waits []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestDo_AlwaysTransientStopsAtMaxAttempts(t *testing.T) {
	rec := &recorder{}
	calls := 0
	p := Policy{
		MaxAttempts: 3,
		Unit:        time.Second,
		Retryable:   func(err error) bool { return errors.Is(err, errBusy) },
		Sleep:       rec.sleep,
	}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errBusy
	})
	if !errors.Is(err, errBusy) {
		t.Fatalf("err = %v; want errBusy", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d; want 3", calls)
	}
	var total time.Duration
	for _, w := range rec.waits {
		total += w
	}
	if len(rec.waits) != 2 || rec.waits[0] != time.Second || rec.waits[1] != 2*time.Second {
		t.Fatalf("waits = %v; want [1s 2s]", rec.waits)
	}
	if total != 3*time.Second {
		t.Fatalf("total wait = %v; want 3s", total)
	}
}

func TestDo_PermanentErrorIsNotRetried(t *testing.T) {
	rec := &recorder{}
	calls := 0
	perm := errors.New("forbidden")
	p := Policy{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return errors.Is(err, errBusy) },
		Sleep:       rec.sleep,
	}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return perm
	})
	if !errors.Is(err, perm) {
		t.Fatalf("err = %v; want %v", err, perm)
	}
	if calls != 1 || len(rec.waits) != 0 {
		t.Fatalf("calls=%d waits=%v; want 1 call, no waits", calls, rec.waits)
	}
}

func TestDo_SucceedsAfterTransient(t *testing.T) {
	rec := &recorder{}
	calls := 0
	var retried []int
	p := Policy{
		MaxAttempts: 3,
		Unit:        time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, errBusy) },
		Sleep:       rec.sleep,
		OnRetry:     func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) },
	}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errBusy
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 2 || len(rec.waits) != 1 || rec.waits[0] != time.Millisecond {
		t.Fatalf("calls=%d waits=%v", calls, rec.waits)
	}
	if len(retried) != 1 || retried[0] != 1 {
		t.Fatalf("OnRetry attempts = %v; want [1]", retried)
	}
}

func TestBackoff_DefaultUnit(t *testing.T) {
	p := Policy{}
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
	}
	for _, tc := range tests {
		if got := p.Backoff(tc.n); got != tc.want {
			t.Errorf("Backoff(%d) = %v; want %v", tc.n, got, tc.want)
		}
	}
}

func TestSleepContext_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v; want context.Canceled", err)
	}
}
