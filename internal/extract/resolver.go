// Package extract turns a fetched message payload tree into an export record.
package extract

import (
	"log/slog"
	"strings"

	"github.com/G2mcab/Email-extractor/internal/model"
)

// Resolver walks payload trees. A bad part is logged and contributes nothing;
// resolution never fails as a whole.
type Resolver struct {
	logger *slog.Logger
}

func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger.With("component", "resolver")}
}

// PlainText concatenates the decoded text of every text/plain leaf in
// traversal order.
func (r *Resolver) PlainText(p model.Payload) string {
	var b strings.Builder
	walk(p, func(leaf *model.Leaf) bool {
		if isType(leaf.MIMEType, "text/plain") {
			b.WriteString(r.text(leaf))
		}
		return true
	})
	return b.String()
}

// HTML returns the decoded text of the first text/html leaf, or "".
func (r *Resolver) HTML(p model.Payload) string {
	var html string
	walk(p, func(leaf *model.Leaf) bool {
		if isType(leaf.MIMEType, "text/html") {
			html = r.text(leaf)
			return false
		}
		return true
	})
	return html
}

// Attachments collects every leaf that carries a filename.
func (r *Resolver) Attachments(p model.Payload) []model.AttachmentRecord {
	var out []model.AttachmentRecord
	walk(p, func(leaf *model.Leaf) bool {
		if leaf.Filename == "" {
			return true
		}
		out = append(out, model.AttachmentRecord{
			Filename: leaf.Filename,
			MIMEType: leaf.MIMEType,
			Data:     r.bytes(leaf),
		})
		return true
	})
	return out
}

// Resolve builds the export record for msg. HTML body and attachments are
// only filled when full is set.
func (r *Resolver) Resolve(msg *model.Message, full bool) model.EmailRecord {
	rec := model.EmailRecord{
		ID:      msg.ID,
		Date:    msg.Header("Date"),
		From:    msg.Header("From"),
		Subject: msg.Header("Subject"),
	}
	if msg.Payload == nil {
		return rec
	}
	rec.Body = r.PlainText(msg.Payload)
	if full {
		rec.HTMLBody = r.HTML(msg.Payload)
		rec.Attachments = r.Attachments(msg.Payload)
	}
	return rec
}

func (r *Resolver) bytes(leaf *model.Leaf) []byte {
	if leaf.Data == "" {
		return []byte{}
	}
	b, err := decodeBase64URL(leaf.Data)
	if err != nil {
		r.logger.Error("error decoding part", "mime_type", leaf.MIMEType, "filename", leaf.Filename, "err", err)
		return []byte{}
	}
	return b
}

func (r *Resolver) text(leaf *model.Leaf) string {
	if leaf.Data == "" {
		return ""
	}
	b, err := decodeBase64URL(leaf.Data)
	if err != nil {
		r.logger.Error("error decoding part", "mime_type", leaf.MIMEType, "err", err)
		return ""
	}
	s, err := toUTF8(b, leaf.Charset)
	if err != nil {
		r.logger.Warn("charset conversion failed, keeping raw text", "mime_type", leaf.MIMEType, "err", err)
	}
	return strings.ToValidUTF8(s, "")
}

// walk visits leaves depth-first in part order until fn returns false.
func walk(p model.Payload, fn func(*model.Leaf) bool) bool {
	switch n := p.(type) {
	case *model.Leaf:
		if n == nil {
			return true
		}
		return fn(n)
	case *model.Container:
		if n == nil {
			return true
		}
		for _, child := range n.Parts {
			if !walk(child, fn) {
				return false
			}
		}
	}
	return true
}

func isType(mimeType, want string) bool {
	return strings.EqualFold(strings.TrimSpace(mimeType), want)
}
