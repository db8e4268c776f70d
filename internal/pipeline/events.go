package pipeline

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/G2mcab/Email-extractor/internal/model"
)

// EventQueue is an unbounded FIFO of progress events. Push never blocks; the
// presentation layer drains it on its own schedule.
type EventQueue struct {
	mu     sync.Mutex
	events []model.ProgressEvent
}

func NewEventQueue() *EventQueue {
	return &EventQueue{}
}

func (q *EventQueue) Push(ev model.ProgressEvent) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
}

// Drain removes and returns everything queued so far, in push order.
func (q *EventQueue) Drain() []model.ProgressEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// RunContext is owned by a single run: its id, logger and event queue.
// It is discarded once the run completes.
type RunContext struct {
	ID     string
	Logger *slog.Logger
	Events *EventQueue

	done    chan struct{}
	release func()
}

func NewRunContext(logger *slog.Logger) *RunContext {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &RunContext{
		ID:     id,
		Logger: logger.With("run_id", id),
		Events: NewEventQueue(),
		done:   make(chan struct{}),
	}
}

// Done is closed after the run's complete event has been queued.
func (rc *RunContext) Done() <-chan struct{} {
	return rc.done
}

func (rc *RunContext) status(msg string) {
	rc.Logger.Info(msg)
	rc.Events.Push(model.ProgressEvent{Kind: model.EventStatus, Message: msg})
}

func (rc *RunContext) progress(percent float64, msg string) {
	rc.Events.Push(model.ProgressEvent{Kind: model.EventProgress, Percent: percent, Message: msg})
}

// complete frees the run slot, then queues the final event. Only the first
// call has any effect.
func (rc *RunContext) complete(sev model.Severity, msg string) {
	select {
	case <-rc.done:
		return
	default:
	}
	if rc.release != nil {
		rc.release()
	}
	switch sev {
	case model.SeverityError:
		rc.Logger.Error(msg)
	default:
		rc.Logger.Info(msg)
	}
	rc.Events.Push(model.ProgressEvent{Kind: model.EventComplete, Percent: 100, Message: msg, Severity: sev})
	close(rc.done)
}
