// Package mailboxtest provides an in-memory mailbox.Service for tests.
package mailboxtest

import (
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/G2mcab/Email-extractor/internal/mailbox"
	"github.com/G2mcab/Email-extractor/internal/model"
)

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("message not found")

// Service is a fake mailbox. Messages are matched by the query's from: term
// against their From header. Hooks override behavior per call.
type Service struct {
	mu       sync.Mutex
	messages map[string]*model.Message
	order    []string

	ListErr    func(attempt int) error
	GetErr     func(id string) error
	TrashErr   func(id string, attempt int) error
	ArchiveErr func(id string, attempt int) error

	ListCalls    int
	GetCalls     []string
	TrashCalls   map[string]int
	ArchiveCalls map[string]int
	Trashed      []string
	Archived     []string
}

func New(msgs ...*model.Message) *Service {
	s := &Service{
		messages:     make(map[string]*model.Message),
		TrashCalls:   make(map[string]int),
		ArchiveCalls: make(map[string]int),
	}
	for _, m := range msgs {
		s.Add(m)
	}
	return s
}

func (s *Service) Add(m *model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[m.ID]; !ok {
		s.order = append(s.order, m.ID)
	}
	s.messages[m.ID] = m
}

func (s *Service) List(_ context.Context, query string) ([]model.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListCalls++
	if s.ListErr != nil {
		if err := s.ListErr(s.ListCalls); err != nil {
			return nil, err
		}
	}
	sender := fromTerm(query)
	var refs []model.MessageRef
	for _, id := range s.order {
		m := s.messages[id]
		if sender == "" || strings.Contains(strings.ToLower(m.Header("From")), strings.ToLower(sender)) {
			refs = append(refs, model.MessageRef{ID: id})
		}
	}
	return refs, nil
}

func (s *Service) Get(_ context.Context, id string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetCalls = append(s.GetCalls, id)
	if s.GetErr != nil {
		if err := s.GetErr(id); err != nil {
			return nil, err
		}
	}
	m, ok := s.messages[id]
	if !ok {
		return nil, &mailbox.PermanentError{Op: "get", Status: 404, Err: ErrNotFound}
	}
	return m, nil
}

func (s *Service) Trash(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TrashCalls[id]++
	if s.TrashErr != nil {
		if err := s.TrashErr(id, s.TrashCalls[id]); err != nil {
			return err
		}
	}
	s.Trashed = append(s.Trashed, id)
	return nil
}

func (s *Service) Archive(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ArchiveCalls[id]++
	if s.ArchiveErr != nil {
		if err := s.ArchiveErr(id, s.ArchiveCalls[id]); err != nil {
			return err
		}
	}
	s.Archived = append(s.Archived, id)
	return nil
}

// Fetched returns the distinct ids passed to Get, sorted.
func (s *Service) Fetched() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	for _, id := range s.GetCalls {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func fromTerm(query string) string {
	for _, f := range strings.Fields(query) {
		if strings.HasPrefix(f, "from:") {
			return strings.TrimPrefix(f, "from:")
		}
	}
	return ""
}

// Transient builds a retryable error with the given status.
func Transient(op string, status int) error {
	return &mailbox.TransientError{Op: op, Status: status, Err: errors.New("backend busy")}
}

// Permanent builds a non-retryable error with the given status.
func Permanent(op string, status int) error {
	return &mailbox.PermanentError{Op: op, Status: status, Err: errors.New("request rejected")}
}

// TextMessage builds a single-leaf text/plain message with base64url body.
func TextMessage(id, from, subject, date, body string) *model.Message {
	return &model.Message{
		ID: id,
		Headers: []model.Header{
			{Name: "From", Value: from},
			{Name: "Subject", Value: subject},
			{Name: "Date", Value: date},
		},
		Payload: &model.Leaf{MIMEType: "text/plain", Data: Encode(body)},
	}
}

// Encode returns s in the provider's base64url body encoding.
func Encode(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}
