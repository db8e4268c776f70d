package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/G2mcab/Email-extractor/internal/model"
)

// ErrRunInProgress is returned by Start while another run is still going.
var ErrRunInProgress = errors.New("a run is already in progress")

// Runner executes orchestrator runs on a background goroutine, one at a time.
// There is no cancellation: a started run proceeds until it completes.
type Runner struct {
	orch   *Orchestrator
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

func NewRunner(orch *Orchestrator, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{orch: orch, logger: logger}
}

// Running reports whether a run is in flight.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Start launches req and returns its run context. The caller polls
// rc.Events until a complete event arrives; the runner is free again by then.
func (r *Runner) Start(ctx context.Context, req model.RunRequest) (*RunContext, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrRunInProgress
	}
	r.running = true
	r.mu.Unlock()

	rc := NewRunContext(r.logger)
	var once sync.Once
	rc.release = func() {
		once.Do(func() {
			r.mu.Lock()
			r.running = false
			r.mu.Unlock()
		})
	}

	rc.Logger.Info("run started", "sender", req.Sender, "action", string(req.Action), "mode", string(req.Mode))
	go func() {
		defer rc.release()
		r.orch.Run(context.WithoutCancel(ctx), rc, req)
	}()
	return rc, nil
}
