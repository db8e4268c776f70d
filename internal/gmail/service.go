// Package gmail adapts the Gmail REST API to mailbox.Service and handles the
// OAuth flow that authorizes it.
package gmail

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/G2mcab/Email-extractor/internal/mailbox"
	"github.com/G2mcab/Email-extractor/internal/model"
)

const (
	me       = "me"
	pageSize = 500
)

var _ mailbox.Service = (*Service)(nil)

// Service implements mailbox.Service over the Gmail API.
type Service struct {
	api    *gmailv1.Service
	logger *slog.Logger
}

func NewService(api *gmailv1.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, logger: logger.With("component", "gmail")}
}

// List pages through every message matching query. One call returns the
// complete listing or the first error.
func (s *Service) List(ctx context.Context, query string) ([]model.MessageRef, error) {
	call := s.api.Users.Messages.List(me).Q(query).MaxResults(pageSize)

	var refs []model.MessageRef
	pageToken := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, classify("list", err)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, classify("list", err)
		}
		for _, m := range resp.Messages {
			refs = append(refs, model.MessageRef{ID: m.Id})
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return refs, nil
}

// Get fetches the full message. Attachment bodies the API returns by
// reference are downloaded first; a failed download leaves that part empty.
func (s *Service) Get(ctx context.Context, id string) (*model.Message, error) {
	msg, err := s.api.Users.Messages.Get(me, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, classify("get", err)
	}
	s.hydrate(ctx, id, msg.Payload)
	return convertMessage(msg), nil
}

func (s *Service) hydrate(ctx context.Context, id string, part *gmailv1.MessagePart) {
	if part == nil {
		return
	}
	if b := part.Body; b != nil && b.AttachmentId != "" && b.Data == "" {
		att, err := s.api.Users.Messages.Attachments.Get(me, id, b.AttachmentId).Context(ctx).Do()
		if err != nil {
			s.logger.Warn("failed to download attachment", "id", id, "filename", part.Filename, "err", classify("attachment", err))
		} else {
			b.Data = att.Data
		}
	}
	for _, sub := range part.Parts {
		s.hydrate(ctx, id, sub)
	}
}

// Trash moves the message to the trash.
func (s *Service) Trash(ctx context.Context, id string) error {
	if _, err := s.api.Users.Messages.Trash(me, id).Context(ctx).Do(); err != nil {
		return classify("trash", err)
	}
	return nil
}

// Archive removes the INBOX label.
func (s *Service) Archive(ctx context.Context, id string) error {
	req := &gmailv1.ModifyMessageRequest{RemoveLabelIds: []string{"INBOX"}}
	if _, err := s.api.Users.Messages.Modify(me, id, req).Context(ctx).Do(); err != nil {
		return classify("archive", err)
	}
	return nil
}

// classify maps API errors onto the mailbox error taxonomy: rate limiting and
// unavailability are transient, everything else is permanent.
func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return &mailbox.TransientError{Op: op, Status: apiErr.Code, Err: err}
		}
		return &mailbox.PermanentError{Op: op, Status: apiErr.Code, Err: err}
	}
	return &mailbox.PermanentError{Op: op, Err: err}
}
