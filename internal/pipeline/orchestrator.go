// Package pipeline sequences one extraction run: authenticate, query, fetch
// the new messages, export them and optionally delete or archive the matches.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/G2mcab/Email-extractor/internal/export"
	"github.com/G2mcab/Email-extractor/internal/extract"
	"github.com/G2mcab/Email-extractor/internal/mailbox"
	"github.com/G2mcab/Email-extractor/internal/model"
	"github.com/G2mcab/Email-extractor/internal/retry"
)

type State int32

const (
	StateIdle State = iota
	StateAuthenticating
	StateFetching
	StateResolving
	StateExporting
	StateMutating
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateFetching:
		return "fetching"
	case StateResolving:
		return "resolving"
	case StateExporting:
		return "exporting"
	case StateMutating:
		return "mutating"
	case StateComplete:
		return "complete"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Connector authenticates and returns the mailbox to operate on.
type Connector func(ctx context.Context) (mailbox.Service, error)

// Recorder keeps a history of finished runs.
type Recorder interface {
	Record(ctx context.Context, sum model.RunSummary) error
}

type Config struct {
	OutputDir   string
	MaxRetries  int
	BackoffUnit time.Duration
	Sleep       retry.Sleeper
}

type Orchestrator struct {
	connect  Connector
	cfg      Config
	recorder Recorder
	now      func() time.Time
	state    atomic.Int32
}

type Option func(*Orchestrator)

// WithRecorder stores a summary of every run.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithClock overrides time.Now for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(connect Connector, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{connect: connect, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) enter(rc *RunContext, s State, msg string) {
	o.state.Store(int32(s))
	rc.Logger.Debug("state", "state", s.String())
	if msg != "" {
		rc.status(msg)
	}
}

// Run executes req to completion. It always queues exactly one complete event
// on rc and returns the run summary.
func (o *Orchestrator) Run(ctx context.Context, rc *RunContext, req model.RunRequest) model.RunSummary {
	sum := model.RunSummary{
		ID:        rc.ID,
		Sender:    req.Sender,
		Mode:      req.Mode,
		Action:    req.Action,
		StartedAt: o.now(),
	}
	finish := func(sev model.Severity, msg string) model.RunSummary {
		o.enter(rc, StateComplete, "")
		sum.Outcome = sev
		sum.Message = msg
		sum.FinishedAt = o.now()
		if o.recorder != nil {
			if err := o.recorder.Record(ctx, sum); err != nil {
				rc.Logger.Error("failed to record run", "err", err)
			}
		}
		// Idle before complete: complete frees the runner slot.
		o.state.Store(int32(StateIdle))
		rc.complete(sev, msg)
		return sum
	}

	query, err := mailbox.BuildQuery(req.Sender, req.Start, req.End)
	if err != nil {
		return finish(model.SeverityError, err.Error())
	}
	sum.Query = query

	o.enter(rc, StateAuthenticating, "Authenticating...")
	svc, err := o.connect(ctx)
	if err != nil {
		return finish(model.SeverityError, fmt.Sprintf("Authentication failed: %v", err))
	}

	opts := mailbox.Options{
		MaxRetries:  o.cfg.MaxRetries,
		BackoffUnit: o.cfg.BackoffUnit,
		Sleep:       o.cfg.Sleep,
		Logger:      rc.Logger,
	}
	fetcher := mailbox.NewFetcher(svc, opts)

	o.enter(rc, StateFetching, fmt.Sprintf("Fetching emails from %s...", req.Sender))
	refs := fetcher.ListMessages(ctx, query)
	sum.Matched = len(refs)
	if len(refs) == 0 {
		if err := fetcher.LastErr(); err != nil {
			return finish(model.SeverityError, fmt.Sprintf("Failed to fetch emails from %s: %v", req.Sender, err))
		}
		return finish(model.SeverityInfo, fmt.Sprintf("No emails found from %s", req.Sender))
	}

	target := export.TargetFor(o.cfg.OutputDir, req.Sender, req.Mode)
	sum.Target = target.CSV
	ledger := export.LoadLedger(target.CSV, rc.Logger)
	fresh := ledger.Filter(refs)
	rc.Logger.Info("computed delta", "matched", len(refs), "already_exported", len(refs)-len(fresh), "new", len(fresh))

	records := o.resolve(ctx, rc, fetcher, fresh, req.Mode == model.ModeFull)

	var exported string
	if len(records) == 0 {
		o.enter(rc, StateExporting, "No new emails found")
	} else {
		o.enter(rc, StateExporting, fmt.Sprintf("Exporting %d new emails...", len(records)))
		exp := export.New(rc.Logger)
		if req.Mode == model.ModeFull {
			err = exp.WriteBundle(target, req.Sender, records, rc.progress)
			exported = target.Dir
		} else {
			err = exp.AppendCSV(target.CSV, req.Sender, records, rc.progress)
			exported = target.CSV
		}
		if err != nil {
			// Nothing is mutated when the export did not land.
			return finish(model.SeverityError, fmt.Sprintf("Export failed: %v", err))
		}
		sum.Exported = len(records)
	}

	var mutated string
	if req.Action.Mutates() {
		verb := "Deleting"
		if req.Action == model.ActionArchive {
			verb = "Archiving"
		}
		o.enter(rc, StateMutating, fmt.Sprintf("%s %d emails...", verb, len(refs)))
		res, err := mailbox.NewMutator(svc, opts).Apply(ctx, req.Action, refs, func(done, total int) {
			rc.progress(float64(done)/float64(total)*100, fmt.Sprintf("%s %d/%d emails", verb, done, total))
		})
		if err != nil {
			return finish(model.SeverityError, err.Error())
		}
		sum.Mutated = len(res.Succeeded)
		sum.Failed = len(res.Failed)
		mutated = fmt.Sprintf("%s %d/%d emails", pastTense(req.Action), len(res.Succeeded), res.Attempted)
	}

	var parts []string
	if exported != "" {
		parts = append(parts, fmt.Sprintf("Exported %d new emails to %s", sum.Exported, exported))
	} else {
		parts = append(parts, "No new emails to export")
	}
	if mutated != "" {
		parts = append(parts, mutated)
	}
	sev := model.SeveritySuccess
	if exported == "" && mutated == "" {
		sev = model.SeverityInfo
	}
	return finish(sev, strings.Join(parts, "; "))
}

// resolve fetches and resolves each new ref. Messages that cannot be fetched
// are skipped.
func (o *Orchestrator) resolve(ctx context.Context, rc *RunContext, fetcher *mailbox.Fetcher, refs []model.MessageRef, full bool) []model.EmailRecord {
	if len(refs) == 0 {
		return nil
	}
	o.enter(rc, StateResolving, fmt.Sprintf("Fetching %d new emails...", len(refs)))
	resolver := extract.NewResolver(rc.Logger)
	records := make([]model.EmailRecord, 0, len(refs))
	for i, ref := range refs {
		if msg := fetcher.GetMessage(ctx, ref.ID); msg != nil {
			records = append(records, resolver.Resolve(msg, full))
		}
		rc.progress(float64(i+1)/float64(len(refs))*100, fmt.Sprintf("Fetched %d/%d emails", i+1, len(refs)))
	}
	if skipped := len(refs) - len(records); skipped > 0 {
		rc.Logger.Warn("skipped emails that could not be fetched", "count", skipped)
	}
	return records
}

func pastTense(a model.Action) string {
	if a == model.ActionArchive {
		return "Archived"
	}
	return "Deleted"
}
