package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/G2mcab/Email-extractor/internal/export"
	"github.com/G2mcab/Email-extractor/internal/mailbox"
	"github.com/G2mcab/Email-extractor/internal/mailbox/mailboxtest"
	"github.com/G2mcab/Email-extractor/internal/model"
)

const sender = "news@example.com"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noSleep(context.Context, time.Duration) error { return nil }

func connectTo(svc mailbox.Service) Connector {
	return func(context.Context) (mailbox.Service, error) { return svc, nil }
}

func newOrch(t *testing.T, svc mailbox.Service, opts ...Option) (*Orchestrator, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "emails")
	return New(connectTo(svc), Config{OutputDir: dir, MaxRetries: 3, Sleep: noSleep}, opts...), dir
}

func run(t *testing.T, o *Orchestrator, req model.RunRequest) (model.RunSummary, []model.ProgressEvent) {
	t.Helper()
	rc := NewRunContext(quietLogger())
	sum := o.Run(context.Background(), rc, req)
	select {
	case <-rc.Done():
	default:
		t.Fatalf("run returned without closing Done")
	}
	return sum, rc.Events.Drain()
}

func completes(events []model.ProgressEvent) []model.ProgressEvent {
	var out []model.ProgressEvent
	for _, ev := range events {
		if ev.Kind == model.EventComplete {
			out = append(out, ev)
		}
	}
	return out
}

func lastComplete(t *testing.T, events []model.ProgressEvent) model.ProgressEvent {
	t.Helper()
	c := completes(events)
	if len(c) != 1 {
		t.Fatalf("complete events = %d; want exactly 1 (%v)", len(c), events)
	}
	if events[len(events)-1].Kind != model.EventComplete {
		t.Fatalf("complete is not the last event: %v", events)
	}
	return c[0]
}

func inbox() *mailboxtest.Service {
	return mailboxtest.New(
		mailboxtest.TextMessage("a1", "News <news@example.com>", "one", "Mon, 02 Jan 2006 10:00:00 +0000", "first"),
		mailboxtest.TextMessage("b1", "other@example.com", "nope", "Mon, 02 Jan 2006 11:00:00 +0000", "x"),
		mailboxtest.TextMessage("a2", "news@example.com", "two", "Tue, 03 Jan 2006 10:00:00 +0000", "second"),
		mailboxtest.TextMessage("a3", "news@example.com", "three", "Wed, 04 Jan 2006 10:00:00 +0000", "third"),
	)
}

func simpleReq(action model.Action) model.RunRequest {
	return model.RunRequest{Sender: sender, Action: action, Mode: model.ModeSimple}
}

func TestRun_EmptyResultShortCircuits(t *testing.T) {
	svc := mailboxtest.New(mailboxtest.TextMessage("x", "someone@else.com", "s", "", "b"))
	o, dir := newOrch(t, svc)

	sum, events := run(t, o, simpleReq(model.ActionDelete))

	c := lastComplete(t, events)
	if c.Severity != model.SeverityInfo || !strings.Contains(c.Message, "No emails found") {
		t.Fatalf("complete = %+v", c)
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("output dir should not exist, stat err = %v", err)
	}
	if len(svc.GetCalls) != 0 || len(svc.Trashed) != 0 {
		t.Fatalf("unexpected calls: get=%v trashed=%v", svc.GetCalls, svc.Trashed)
	}
	if sum.Matched != 0 || sum.Outcome != model.SeverityInfo {
		t.Fatalf("summary = %+v", sum)
	}
	if o.State() != StateIdle {
		t.Fatalf("state = %v after run", o.State())
	}
}

func TestRun_SecondRunAppendsNothing(t *testing.T) {
	svc := inbox()
	o, dir := newOrch(t, svc)
	csvPath := export.TargetFor(dir, sender, model.ModeSimple).CSV

	sum, events := run(t, o, simpleReq(model.ActionExport))
	if c := lastComplete(t, events); c.Severity != model.SeveritySuccess {
		t.Fatalf("first run complete = %+v", c)
	}
	if sum.Matched != 3 || sum.Exported != 3 {
		t.Fatalf("first summary = %+v", sum)
	}
	before, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}

	svc.GetCalls = nil
	sum, events = run(t, o, simpleReq(model.ActionExport))
	after, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("second run changed the csv:\n%s\n---\n%s", before, after)
	}
	if len(svc.GetCalls) != 0 {
		t.Fatalf("ledger ids re-fetched: %v", svc.GetCalls)
	}
	if c := lastComplete(t, events); c.Severity != model.SeverityInfo {
		t.Fatalf("second run complete = %+v", c)
	}
	if sum.Exported != 0 {
		t.Fatalf("second summary = %+v", sum)
	}
}

func TestRun_OnlyDeltaIsFetched(t *testing.T) {
	svc := inbox()
	o, _ := newOrch(t, svc)
	run(t, o, simpleReq(model.ActionExport))

	svc.Add(mailboxtest.TextMessage("a4", "news@example.com", "four", "Thu, 05 Jan 2006 10:00:00 +0000", "fourth"))
	svc.GetCalls = nil
	sum, _ := run(t, o, simpleReq(model.ActionExport))

	if got := svc.Fetched(); len(got) != 1 || got[0] != "a4" {
		t.Fatalf("fetched %v; want only the new id", got)
	}
	if sum.Exported != 1 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestRun_MutationTargetsFullResult(t *testing.T) {
	svc := inbox()
	o, _ := newOrch(t, svc)
	run(t, o, simpleReq(model.ActionExport))

	svc.Add(mailboxtest.TextMessage("a4", "news@example.com", "four", "", "fourth"))
	sum, events := run(t, o, simpleReq(model.ActionDelete))

	if sum.Exported != 1 {
		t.Fatalf("exported = %d; want 1", sum.Exported)
	}
	if len(svc.Trashed) != 4 || sum.Mutated != 4 {
		t.Fatalf("trashed = %v; want all 4 matches", svc.Trashed)
	}
	if c := lastComplete(t, events); c.Severity != model.SeveritySuccess || !strings.Contains(c.Message, "Deleted 4/4") {
		t.Fatalf("complete = %+v", c)
	}
}

func TestRun_MutatesEvenWithEmptyDelta(t *testing.T) {
	svc := inbox()
	o, _ := newOrch(t, svc)
	run(t, o, simpleReq(model.ActionExport))

	sum, events := run(t, o, simpleReq(model.ActionArchive))
	if len(svc.Archived) != 3 || sum.Mutated != 3 {
		t.Fatalf("archived = %v", svc.Archived)
	}
	if c := lastComplete(t, events); c.Severity != model.SeveritySuccess {
		t.Fatalf("complete = %+v", c)
	}
}

func TestRun_MutationFailuresAreCounted(t *testing.T) {
	svc := inbox()
	svc.TrashErr = func(id string, _ int) error {
		if id == "a2" {
			return mailboxtest.Permanent("trash", 400)
		}
		return nil
	}
	o, _ := newOrch(t, svc)
	sum, _ := run(t, o, simpleReq(model.ActionDelete))
	if sum.Mutated != 2 || sum.Failed != 1 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestRun_SkipsUnfetchableMessages(t *testing.T) {
	svc := inbox()
	svc.GetErr = func(id string) error {
		if id == "a2" {
			return mailboxtest.Transient("get", 503)
		}
		return nil
	}
	o, dir := newOrch(t, svc)
	sum, _ := run(t, o, simpleReq(model.ActionExport))
	if sum.Exported != 2 {
		t.Fatalf("exported = %d; want 2", sum.Exported)
	}
	l := export.LoadLedger(export.TargetFor(dir, sender, model.ModeSimple).CSV, quietLogger())
	if l.Has("a2") || !l.Has("a1") || !l.Has("a3") {
		t.Fatalf("ledger = %v", l)
	}
}

func TestRun_AuthFailure(t *testing.T) {
	o := New(func(context.Context) (mailbox.Service, error) {
		return nil, errors.New("no credentials")
	}, Config{OutputDir: t.TempDir()})

	_, events := run(t, o, simpleReq(model.ActionExport))
	c := lastComplete(t, events)
	if c.Severity != model.SeverityError || !strings.Contains(c.Message, "no credentials") {
		t.Fatalf("complete = %+v", c)
	}
}

func TestRun_InvalidSenderNeverConnects(t *testing.T) {
	connected := false
	o := New(func(context.Context) (mailbox.Service, error) {
		connected = true
		return mailboxtest.New(), nil
	}, Config{OutputDir: t.TempDir()})

	_, events := run(t, o, model.RunRequest{Sender: " "})
	if connected {
		t.Fatalf("connector called for invalid input")
	}
	if c := lastComplete(t, events); c.Severity != model.SeverityError {
		t.Fatalf("complete = %+v", c)
	}
}

func TestRun_ListFailureIsReported(t *testing.T) {
	svc := inbox()
	svc.ListErr = func(int) error { return mailboxtest.Permanent("list", 403) }
	o, _ := newOrch(t, svc)
	_, events := run(t, o, simpleReq(model.ActionExport))
	if c := lastComplete(t, events); c.Severity != model.SeverityError {
		t.Fatalf("complete = %+v", c)
	}
}

func TestRun_FullModeWritesBundle(t *testing.T) {
	svc := inbox()
	o, dir := newOrch(t, svc)
	req := model.RunRequest{Sender: sender, Action: model.ActionExport, Mode: model.ModeFull}

	_, events := run(t, o, req)
	if c := lastComplete(t, events); c.Severity != model.SeveritySuccess {
		t.Fatalf("complete = %+v", c)
	}
	target := export.TargetFor(dir, sender, model.ModeFull)
	for _, name := range []string{filepath.Base(target.CSV), "emails.html", "emails.json"} {
		if _, err := os.Stat(filepath.Join(target.Dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestRun_StatusPrecedesWork(t *testing.T) {
	o, _ := newOrch(t, inbox())
	_, events := run(t, o, simpleReq(model.ActionExport))
	if len(events) == 0 || events[0].Kind != model.EventStatus || !strings.Contains(events[0].Message, "Authenticating") {
		t.Fatalf("first event = %+v", events)
	}
}

type memRecorder struct {
	mu   sync.Mutex
	runs []model.RunSummary
}

func (m *memRecorder) Record(_ context.Context, s model.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, s)
	return nil
}

func TestRun_RecordsSummary(t *testing.T) {
	rec := &memRecorder{}
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	o, _ := newOrch(t, inbox(), WithRecorder(rec), WithClock(func() time.Time { return clock }))

	run(t, o, simpleReq(model.ActionExport))
	if len(rec.runs) != 1 {
		t.Fatalf("recorded %d runs", len(rec.runs))
	}
	got := rec.runs[0]
	if got.Query != "from:"+sender || got.Matched != 3 || got.Exported != 3 || !got.StartedAt.Equal(clock) || got.ID == "" {
		t.Fatalf("summary = %+v", got)
	}
}

func TestRunner_SingleRunInFlight(t *testing.T) {
	gate := make(chan struct{})
	svc := inbox()
	o := New(func(context.Context) (mailbox.Service, error) {
		<-gate
		return svc, nil
	}, Config{OutputDir: t.TempDir(), Sleep: noSleep})
	r := NewRunner(o, quietLogger())

	rc, err := r.Start(context.Background(), simpleReq(model.ActionExport))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !r.Running() {
		t.Fatalf("runner should report a run in flight")
	}
	if _, err := r.Start(context.Background(), simpleReq(model.ActionExport)); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("second Start err = %v; want ErrRunInProgress", err)
	}

	close(gate)
	select {
	case <-rc.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not finish")
	}
	if r.Running() {
		t.Fatalf("runner still busy after complete")
	}
	lastComplete(t, rc.Events.Drain())

	rc2, err := r.Start(context.Background(), simpleReq(model.ActionExport))
	if err != nil {
		t.Fatalf("Start after completion: %v", err)
	}
	<-rc2.Done()
}

func TestRunner_IdleBeforeSlotFrees(t *testing.T) {
	entered := make(chan struct{}, 1)
	gate := make(chan struct{})
	calls := 0
	o := New(func(context.Context) (mailbox.Service, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("no credentials")
		}
		entered <- struct{}{}
		<-gate
		return nil, errors.New("no credentials")
	}, Config{OutputDir: t.TempDir(), Sleep: noSleep})
	r := NewRunner(o, quietLogger())

	rc, err := r.Start(context.Background(), simpleReq(model.ActionExport))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-rc.Done()
	if got := o.State(); got != StateIdle {
		t.Fatalf("state after complete = %v; want idle", got)
	}

	// The first run's goroutine may still hold the slot until its deferred release.
	var rc2 *RunContext
	deadline := time.Now().Add(5 * time.Second)
	for {
		rc2, err = r.Start(context.Background(), simpleReq(model.ActionExport))
		if err == nil {
			break
		}
		if !errors.Is(err, ErrRunInProgress) || time.Now().After(deadline) {
			t.Fatalf("second Start: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	<-entered
	if got := o.State(); got != StateAuthenticating {
		t.Fatalf("state during second run = %v; want authenticating", got)
	}
	close(gate)
	<-rc2.Done()
	if got := o.State(); got != StateIdle {
		t.Fatalf("state after second run = %v; want idle", got)
	}
}

func TestEventQueue_FIFO(t *testing.T) {
	q := NewEventQueue()
	for i := 0; i < 3; i++ {
		q.Push(model.ProgressEvent{Kind: model.EventProgress, Percent: float64(i)})
	}
	got := q.Drain()
	if len(got) != 3 || got[0].Percent != 0 || got[2].Percent != 2 {
		t.Fatalf("drain = %v", got)
	}
	if q.Len() != 0 || q.Drain() != nil {
		t.Fatalf("queue not empty after drain")
	}
}
