package gmail

import (
	"mime"
	"strings"

	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/G2mcab/Email-extractor/internal/model"
)

func convertMessage(m *gmailv1.Message) *model.Message {
	out := &model.Message{ID: m.Id}
	if m.Payload == nil {
		return out
	}
	for _, h := range m.Payload.Headers {
		out.Headers = append(out.Headers, model.Header{Name: h.Name, Value: h.Value})
	}
	out.Payload = convertPart(m.Payload)
	return out
}

// convertPart maps the API's part tree onto the payload variant. A part with
// children, or any multipart/* part, is a container.
func convertPart(p *gmailv1.MessagePart) model.Payload {
	mimeType := strings.ToLower(p.MimeType)
	if len(p.Parts) > 0 || strings.HasPrefix(mimeType, "multipart/") {
		c := &model.Container{MIMEType: p.MimeType}
		for _, sub := range p.Parts {
			if sub != nil {
				c.Parts = append(c.Parts, convertPart(sub))
			}
		}
		return c
	}
	leaf := &model.Leaf{
		MIMEType: p.MimeType,
		Filename: p.Filename,
		Charset:  partCharset(p.Headers),
	}
	if p.Body != nil {
		leaf.Data = p.Body.Data
	}
	return leaf
}

func partCharset(headers []*gmailv1.MessagePartHeader) string {
	for _, h := range headers {
		if !strings.EqualFold(h.Name, "Content-Type") {
			continue
		}
		_, params, err := mime.ParseMediaType(h.Value)
		if err != nil {
			return ""
		}
		return params["charset"]
	}
	return ""
}
