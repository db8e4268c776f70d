package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/G2mcab/Email-extractor/internal/mailbox"
	"github.com/G2mcab/Email-extractor/internal/model"
)

// fakeAPI serves the handful of Gmail endpoints the adapter calls.
type fakeAPI struct {
	t *testing.T

	mu       sync.Mutex
	queries  []string
	modified map[string][]string
	trashed  []string
	status   map[string]int // path suffix -> forced status
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/")
	for suffix, code := range f.status {
		if strings.HasSuffix(path, suffix) {
			w.WriteHeader(code)
			fmt.Fprintf(w, `{"error":{"code":%d,"message":"forced"}}`, code)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	switch {
	case path == "messages" && r.Method == http.MethodGet:
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		if r.URL.Query().Get("pageToken") == "p2" {
			_, _ = io.WriteString(w, `{"messages":[{"id":"m3"}]}`)
			return
		}
		_, _ = io.WriteString(w, `{"messages":[{"id":"m1"},{"id":"m2"}],"nextPageToken":"p2"}`)
	case path == "messages/m1" && r.Method == http.MethodGet:
		if got := r.URL.Query().Get("format"); got != "full" {
			f.t.Errorf("format = %q; want full", got)
		}
		_, _ = io.WriteString(w, `{
			"id": "m1",
			"payload": {
				"mimeType": "multipart/mixed",
				"headers": [
					{"name": "From", "value": "News <news@example.com>"},
					{"name": "Subject", "value": "Hi"},
					{"name": "Date", "value": "Mon, 02 Jan 2006 15:04:05 -0700"}
				],
				"parts": [
					{"mimeType": "text/plain",
					 "headers": [{"name": "Content-Type", "value": "text/plain; charset=\"ISO-8859-1\""}],
					 "body": {"data": "aGk"}},
					{"mimeType": "application/pdf", "filename": "r.pdf",
					 "body": {"attachmentId": "att1", "size": 4}}
				]
			}
		}`)
	case path == "messages/m1/attachments/att1":
		_, _ = io.WriteString(w, `{"data":"JVBERg=="}`)
	case path == "messages/m1/trash" && r.Method == http.MethodPost:
		f.trashed = append(f.trashed, "m1")
		_, _ = io.WriteString(w, `{"id":"m1"}`)
	case path == "messages/m1/modify" && r.Method == http.MethodPost:
		var req gmailv1.ModifyMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("decode modify: %v", err)
		}
		if f.modified == nil {
			f.modified = map[string][]string{}
		}
		f.modified["m1"] = req.RemoveLabelIds
		_, _ = io.WriteString(w, `{"id":"m1"}`)
	default:
		http.NotFound(w, r)
	}
}

func newTestService(t *testing.T, api *fakeAPI) *Service {
	t.Helper()
	api.t = t
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	gs, err := gmailv1.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return NewService(gs, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestService_ListFollowsPages(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(t, api)

	refs, err := svc.List(context.Background(), "from:news@example.com")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(refs) != 3 || refs[0].ID != "m1" || refs[2].ID != "m3" {
		t.Fatalf("refs = %v", refs)
	}
	if len(api.queries) != 2 || api.queries[0] != "from:news@example.com" {
		t.Fatalf("queries = %v", api.queries)
	}
}

func TestService_GetConvertsAndHydrates(t *testing.T) {
	svc := newTestService(t, &fakeAPI{})

	msg, err := svc.Get(context.Background(), "m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if msg.Header("subject") != "Hi" {
		t.Fatalf("headers = %v", msg.Headers)
	}
	root, ok := msg.Payload.(*model.Container)
	if !ok || len(root.Parts) != 2 {
		t.Fatalf("payload = %#v", msg.Payload)
	}
	text := root.Parts[0].(*model.Leaf)
	if text.Charset != "ISO-8859-1" || text.Data != "aGk" {
		t.Fatalf("text leaf = %+v", text)
	}
	att := root.Parts[1].(*model.Leaf)
	if att.Filename != "r.pdf" || att.Data != "JVBERg==" {
		t.Fatalf("attachment leaf = %+v", att)
	}
}

func TestService_TrashAndArchive(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(t, api)

	if err := svc.Trash(context.Background(), "m1"); err != nil {
		t.Fatalf("Trash: %v", err)
	}
	if err := svc.Archive(context.Background(), "m1"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if len(api.trashed) != 1 {
		t.Fatalf("trashed = %v", api.trashed)
	}
	if got := api.modified["m1"]; len(got) != 1 || got[0] != "INBOX" {
		t.Fatalf("modify removed %v; want [INBOX]", got)
	}
}

func TestService_ErrorClassification(t *testing.T) {
	tests := []struct {
		code      int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusForbidden, false},
		{http.StatusInternalServerError, false},
	}
	for _, tc := range tests {
		api := &fakeAPI{status: map[string]int{"messages/m1/trash": tc.code}}
		svc := newTestService(t, api)
		err := svc.Trash(context.Background(), "m1")
		if err == nil {
			t.Fatalf("%d: expected error", tc.code)
		}
		if mailbox.IsTransient(err) != tc.transient {
			t.Errorf("%d: transient = %v; want %v (%v)", tc.code, !tc.transient, tc.transient, err)
		}
		if got := mailbox.StatusOf(err); got != tc.code {
			t.Errorf("%d: status = %d", tc.code, got)
		}
	}
}

func TestService_GetNotFoundIsPermanent(t *testing.T) {
	svc := newTestService(t, &fakeAPI{})
	_, err := svc.Get(context.Background(), "missing")
	if err == nil || mailbox.IsTransient(err) || mailbox.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("err = %v", err)
	}
}

func TestConvertPart_EmptyMultipartIsContainer(t *testing.T) {
	p := convertPart(&gmailv1.MessagePart{MimeType: "multipart/alternative"})
	if _, ok := p.(*model.Container); !ok {
		t.Fatalf("payload = %#v", p)
	}
	leaf := convertPart(&gmailv1.MessagePart{MimeType: "text/plain"}).(*model.Leaf)
	if leaf.Data != "" || leaf.Charset != "" {
		t.Fatalf("leaf = %+v", leaf)
	}
}
