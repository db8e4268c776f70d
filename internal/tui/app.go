package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/G2mcab/Email-extractor/internal/model"
	"github.com/G2mcab/Email-extractor/internal/pipeline"
	"github.com/G2mcab/Email-extractor/internal/store"
)

// pollInterval is how often a running job's event queue is drained.
const pollInterval = 100 * time.Millisecond

type viewState int

const (
	viewForm    viewState = iota // run request form
	viewRunning                  // progress of the active run
	viewAuth                     // waiting for a pasted auth code
	viewResult                   // outcome of the last run
	viewHistory                  // past runs
)

// Starter launches runs; *pipeline.Runner satisfies it.
type Starter interface {
	Start(ctx context.Context, req model.RunRequest) (*pipeline.RunContext, error)
}

// History lists past runs; *store.SQLiteStore satisfies it.
type History interface {
	ListRuns(ctx context.Context, f store.Filter) ([]model.RunSummary, error)
}

type Options struct {
	Runner        Starter
	History       History // optional
	DefaultAction model.Action

	// AuthURLs delivers consent URLs from the OAuth flow; AuthCodes takes
	// the code the user pastes back. Both may be nil when auth never prompts.
	AuthURLs  <-chan string
	AuthCodes chan<- string

	Logger *slog.Logger
}

type AppModel struct {
	opts   Options
	logger *slog.Logger
	Err    error
	status string

	view viewState

	// Request form
	form *huh.Form
	fb   *formBindings

	// Active run
	run      *pipeline.RunContext
	percent  float64
	activity string
	log      []string
	result   *model.ProgressEvent

	// Auth flow
	authURL   string
	textInput textinput.Model

	// Sub-models
	spinner     spinner.Model
	bar         progress.Model
	historyList list.Model

	width, height int
}

func NewAppModel(opts Options) AppModel {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultAction == "" {
		opts.DefaultAction = model.ActionExport
	}

	ti := textinput.New()
	ti.Placeholder = "Paste auth code or redirect URL here"

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = accentStyle

	hl := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	hl.Title = "Run history"
	hl.KeyMap.Quit.SetKeys("q")

	m := AppModel{
		opts:        opts,
		logger:      opts.Logger.With("component", "tui"),
		view:        viewForm,
		fb:          newFormBindings(opts.DefaultAction),
		textInput:   ti,
		spinner:     sp,
		bar:         progress.New(progress.WithDefaultGradient()),
		historyList: hl,
	}
	m.form = m.fb.buildForm(m.formWidth())
	return m
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.form.Init(), waitForAuthURL(m.opts.AuthURLs))
}

// waitForAuthURL blocks until the OAuth flow publishes a consent URL.
func waitForAuthURL(urls <-chan string) tea.Cmd {
	if urls == nil {
		return nil
	}
	return func() tea.Msg {
		u, ok := <-urls
		if !ok {
			return nil
		}
		return authURLMsg(u)
	}
}

func pollEvents() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return pollMsg{} })
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.historyList.SetSize(msg.Width, msg.Height-4)
		m.bar.Width = min(msg.Width-4, 80)
		if m.form != nil {
			m.form = m.form.WithWidth(m.formWidth())
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case pollMsg:
		if m.run == nil {
			return m, nil
		}
		m.applyEvents(m.run.Events.Drain())
		if m.run == nil {
			return m, nil
		}
		return m, pollEvents()

	case authURLMsg:
		// Everything queued so far predates the consent prompt.
		if m.run != nil {
			m.applyEvents(m.run.Events.Drain())
		}
		m.authURL = string(msg)
		m.textInput.Reset()
		m.textInput.Focus()
		m.view = viewAuth
		return m, tea.Batch(textinput.Blink, waitForAuthURL(m.opts.AuthURLs))

	case historyLoadedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Failed to load history: %v", msg.err)
			return m, clearStatusAfter(2 * time.Second)
		}
		m.historyList.SetItems(runsToItems(msg.runs))
		m.historyList.Title = fmt.Sprintf("Run history (%d)", len(msg.runs))
		m.view = viewHistory
		return m, nil

	case statusMsg:
		if string(msg) == "" {
			m.status = ""
		}
		return m, nil

	case spinner.TickMsg:
		if m.run == nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	// Delegate to active sub-model
	var cmd tea.Cmd
	switch m.view {
	case viewForm:
		return m.updateForm(msg)
	case viewAuth:
		m.textInput, cmd = m.textInput.Update(msg)
	case viewHistory:
		m.historyList, cmd = m.historyList.Update(msg)
	}
	return m, cmd
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Global keys
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.view {
	case viewForm:
		if key == "esc" {
			return m, tea.Quit
		}
		return m.updateForm(msg)

	case viewAuth:
		if key == "enter" {
			return m.submitAuthCode()
		}
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd

	case viewRunning:
		if key == "q" {
			m.status = "A run is in progress; wait for it to complete"
			return m, clearStatusAfter(2 * time.Second)
		}
		return m, nil

	case viewResult:
		switch key {
		case "q":
			return m, tea.Quit
		case "n", "enter":
			return m, m.newForm()
		case "h":
			return m, m.loadHistoryCmd()
		}
		return m, nil

	case viewHistory:
		if m.historyList.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.historyList, cmd = m.historyList.Update(msg)
			return m, cmd
		}
		switch key {
		case "q":
			return m, tea.Quit
		case "esc":
			if m.result != nil {
				m.view = viewResult
				return m, nil
			}
			return m, m.newForm()
		}
		var cmd tea.Cmd
		m.historyList, cmd = m.historyList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *AppModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}
	switch m.form.State {
	case huh.StateCompleted:
		req, err := m.fb.request()
		if err != nil {
			m.status = err.Error()
			return m, tea.Batch(m.newForm(), clearStatusAfter(3*time.Second))
		}
		return m, m.startRun(req)
	case huh.StateAborted:
		return m, tea.Quit
	}
	return m, cmd
}

// newForm resets the request form, keeping the previous answers.
func (m *AppModel) newForm() tea.Cmd {
	m.form = m.fb.buildForm(m.formWidth())
	m.view = viewForm
	return m.form.Init()
}

func (m *AppModel) startRun(req model.RunRequest) tea.Cmd {
	rc, err := m.opts.Runner.Start(context.Background(), req)
	if err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			m.status = "A run is already in progress"
		} else {
			m.status = fmt.Sprintf("Cannot start run: %v", err)
		}
		return tea.Batch(m.newForm(), clearStatusAfter(2*time.Second))
	}
	m.logger.Info("run submitted", "run_id", rc.ID, "sender", req.Sender)
	m.run = rc
	m.percent = 0
	m.activity = "Starting..."
	m.log = nil
	m.result = nil
	m.view = viewRunning
	return tea.Batch(pollEvents(), m.spinner.Tick)
}

func (m *AppModel) applyEvents(events []model.ProgressEvent) {
	for _, ev := range events {
		if m.view == viewAuth {
			m.view = viewRunning
		}
		switch ev.Kind {
		case model.EventStatus:
			m.activity = ev.Message
			m.percent = 0
			m.log = append(m.log, ev.Message)
		case model.EventProgress:
			m.percent = ev.Percent
			m.activity = ev.Message
		case model.EventComplete:
			m.result = &ev
			m.percent = 100
			m.run = nil
			m.view = viewResult
		}
	}
}

func (m *AppModel) submitAuthCode() (tea.Model, tea.Cmd) {
	val := strings.TrimSpace(m.textInput.Value())
	if val == "" {
		return m, nil
	}
	m.textInput.Reset()
	m.textInput.Blur()
	m.view = viewRunning
	codes := m.opts.AuthCodes
	if codes == nil {
		return m, nil
	}
	return m, func() tea.Msg {
		codes <- val
		return nil
	}
}

func (m *AppModel) loadHistoryCmd() tea.Cmd {
	h := m.opts.History
	if h == nil {
		m.status = "Run history is not available"
		return clearStatusAfter(2 * time.Second)
	}
	return func() tea.Msg {
		runs, err := h.ListRuns(context.Background(), store.Filter{Limit: 50})
		return historyLoadedMsg{runs: runs, err: err}
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusMsg("")
	})
}

func (m *AppModel) formWidth() int {
	if m.width == 0 {
		return 60
	}
	return min(m.width-4, 80)
}

// View renders the appropriate view based on current state.
func (m *AppModel) View() string {
	if m.Err != nil {
		return "Error: " + m.Err.Error() + "\n"
	}

	var b strings.Builder
	switch m.view {
	case viewForm:
		b.WriteString(titleStyle.Render("Email Extractor"))
		b.WriteString("\n")
		b.WriteString(m.form.View())
		b.WriteString("\n")
		b.WriteString(formFooter())
	case viewRunning:
		b.WriteString(m.runningView())
	case viewAuth:
		b.WriteString(authView(m.authURL, m.textInput.View()))
	case viewResult:
		b.WriteString(m.resultView())
	case viewHistory:
		b.WriteString(m.historyList.View())
		b.WriteString("\n")
		b.WriteString(historyFooter())
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(statusStyle.Render(m.status))
	}
	return b.String()
}
