package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidInput marks caller input rejected before any network activity.
var ErrInvalidInput = errors.New("invalid input")

// MessageRef is the provider-assigned handle returned by a list call.
type MessageRef struct {
	ID string
}

// Header is a single message header as returned by the provider.
type Header struct {
	Name  string
	Value string
}

// Message is the full payload of one remote message.
type Message struct {
	ID      string
	Headers []Header
	Payload Payload
}

// Header returns the first header value matching name (case-insensitive).
func (m *Message) Header(name string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Payload is one node of a message body tree: a *Leaf or a *Container.
type Payload interface {
	payloadNode()
}

// Leaf is a body part with inline content.
// Data holds the provider's base64url encoding; empty means no inline data.
type Leaf struct {
	MIMEType string
	Filename string
	Charset  string
	Data     string
}

// Container is a multipart node with ordered children.
type Container struct {
	MIMEType string
	Parts    []Payload
}

func (*Leaf) payloadNode()      {}
func (*Container) payloadNode() {}

// AttachmentRecord is one attachment extracted from a message.
type AttachmentRecord struct {
	Filename string
	MIMEType string
	Data     []byte
	Path     string // set once written to disk
}

// EmailRecord is the resolved, export-ready form of a message.
type EmailRecord struct {
	ID          string
	Date        string // raw Date header
	From        string
	Subject     string
	Body        string
	HTMLBody    string
	Attachments []AttachmentRecord
}

type Action string

const (
	ActionExport  Action = "export"
	ActionDelete  Action = "delete"
	ActionArchive Action = "archive"
)

// ParseAction accepts the action names used by the config store and CLI.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionExport, "":
		return ActionExport, nil
	case ActionDelete:
		return ActionDelete, nil
	case ActionArchive:
		return ActionArchive, nil
	}
	return "", fmt.Errorf("unknown action %q (want export, delete or archive)", s)
}

// Mutates reports whether the action deletes or archives after export.
func (a Action) Mutates() bool {
	return a == ActionDelete || a == ActionArchive
}

type Mode string

const (
	ModeSimple Mode = "simple"
	ModeFull   Mode = "full"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSimple, "":
		return ModeSimple, nil
	case ModeFull:
		return ModeFull, nil
	}
	return "", fmt.Errorf("unknown mode %q (want simple or full)", s)
}

// RunRequest is the single "start run" command a presentation layer issues.
type RunRequest struct {
	Sender string
	Start  *time.Time
	End    *time.Time
	Action Action
	Mode   Mode
}

// ParseDate parses an optional YYYY-MM-DD calendar date. Empty input yields nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidInput, s)
	}
	return &t, nil
}

type EventKind string

const (
	EventProgress EventKind = "progress"
	EventStatus   EventKind = "status"
	EventComplete EventKind = "complete"
)

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityError   Severity = "error"
)

// ProgressEvent is sent from a run to the presentation layer.
// Severity is only set on EventComplete.
type ProgressEvent struct {
	Kind     EventKind
	Percent  float64
	Message  string
	Severity Severity
}

// RunSummary is the outcome of one run, kept in the run history.
type RunSummary struct {
	ID         string
	Sender     string
	Query      string
	Mode       Mode
	Action     Action
	Target     string
	Matched    int
	Exported   int
	Mutated    int
	Failed     int
	Outcome    Severity
	Message    string
	StartedAt  time.Time
	FinishedAt time.Time
}
