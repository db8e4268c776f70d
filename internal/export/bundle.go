package export

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/G2mcab/Email-extractor/internal/model"
)

// dateLayouts are tried when net/mail cannot parse the Date header.
var dateLayouts = []string{
	"Mon, 02 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	time.RFC1123Z,
	time.RFC1123,
	"02 Jan 2006 15:04:05 -0700",
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.RFC3339,
}

func parseHeaderDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if t, err := mail.ParseDate(s); err == nil {
		return t, true
	}
	// drop a trailing comment such as "(UTC)"
	if i := strings.Index(s, " ("); i > 0 && strings.HasSuffix(s, ")") {
		s = s[:i]
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DateKey is the calendar date (YYYY-MM-DD, in the header's own offset) used
// to group a record. Unparsable headers fall back to their first
// whitespace-delimited token.
func DateKey(raw string) string {
	if t, ok := parseHeaderDate(raw); ok {
		return t.Format(time.DateOnly)
	}
	if f := strings.Fields(raw); len(f) > 0 {
		return f[0]
	}
	return "unknown"
}

// WriteBundle writes the full extraction for records into t.Dir: the extended
// CSV, one file per attachment, emails.html and emails.json. Attachment paths
// are recorded on records in place. A failed attachment write is logged and
// skipped; any other file failure is returned as a *LocalIOError.
func (e *Exporter) WriteBundle(t Target, sender string, records []model.EmailRecord, progress ProgressFunc) error {
	if err := os.MkdirAll(t.Dir, 0o755); err != nil {
		return &LocalIOError{Op: "mkdir", Path: t.Dir, Err: err}
	}
	total := len(records)

	rows := make([][]string, 0, total)
	for _, r := range records {
		rows = append(rows, []string{r.ID, r.Date, r.From, r.Subject, r.Body, r.HTMLBody, formatFilenames(r.Attachments)})
	}
	err := e.appendRows(t.CSV, sender, fullHeader, rows, func(i, n int) {
		report(progress, float64(i)/float64(n)*50, fmt.Sprintf("Exporting CSV %d/%d", i, n))
	})
	if err != nil {
		return err
	}

	for i := range records {
		e.saveAttachments(t.Dir, &records[i])
		report(progress, 50+float64(i+1)/float64(total)*30, fmt.Sprintf("Processing attachments %d/%d", i+1, total))
	}

	if err := e.writeHTML(filepath.Join(t.Dir, "emails.html"), sender, records); err != nil {
		return err
	}
	report(progress, 90, "Wrote emails.html")

	if err := writeJSON(filepath.Join(t.Dir, "emails.json"), sender, records); err != nil {
		return err
	}
	report(progress, 100, "Full extraction complete")
	e.logger.Info("full extraction written", "count", total, "dir", t.Dir)
	return nil
}

func (e *Exporter) saveAttachments(dir string, rec *model.EmailRecord) {
	for j := range rec.Attachments {
		a := &rec.Attachments[j]
		path := filepath.Join(dir, AttachmentName(rec.ID, a.Filename))
		if err := os.WriteFile(path, a.Data, 0o644); err != nil {
			e.logger.Error("failed to save attachment", "id", rec.ID, "filename", a.Filename, "err", &LocalIOError{Op: "write", Path: path, Err: err})
			continue
		}
		a.Path = path
	}
}

// AttachmentName is the on-disk name of an attachment, namespaced by message
// id. Any directory part of filename is discarded.
func AttachmentName(messageID, filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	if base == "." || base == "/" || base == "" {
		base = "attachment"
	}
	return "attachment_" + messageID + "_" + base
}

var pageTmpl = template.Must(template.New("emails").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Emails from {{.Sender}}</title>
<style>
.email-container { border: 1px solid #ccc; margin: 10px; padding: 10px; }
.email-list { display: none; }
.active { display: block; }
pre { white-space: pre-wrap; }
</style>
<script>
function showEmails(date) {
  document.querySelectorAll('.email-list').forEach(el => el.classList.remove('active'));
  document.getElementById('emails-' + date).classList.add('active');
}
</script>
</head>
<body>
<h1>Emails from {{.Sender}}</h1>
<div id="calendar">
<h2>Select Date:</h2>
{{range .Days}}<button onclick="showEmails({{.Key}})">{{.Key}}</button>
{{end}}</div>
{{range .Days}}<div id="emails-{{.Key}}" class="email-list">
{{range .Emails}}<div class="email-container">
<h3>{{.Subject}}</h3>
{{if .HTML}}<div>{{.HTML}}</div>{{else}}<pre>{{.Body}}</pre>{{end}}
{{range .Attachments}}<p>Attachment: <a href="{{.Href}}" download>{{.Filename}}</a></p>
{{end}}</div>
{{end}}</div>
{{end}}</body>
</html>
`))

type pageData struct {
	Sender string
	Days   []pageDay
}

type pageDay struct {
	Key    string
	Emails []pageEmail
}

type pageEmail struct {
	Subject     string
	HTML        template.HTML
	Body        string
	Attachments []pageAttachment
}

type pageAttachment struct {
	Filename string
	Href     string
}

// GroupByDate buckets records by DateKey. Keys are sorted ascending; records
// within a day are newest first.
func GroupByDate(records []model.EmailRecord) ([]string, map[string][]model.EmailRecord) {
	groups := make(map[string][]model.EmailRecord)
	for _, r := range records {
		k := DateKey(r.Date)
		groups[k] = append(groups[k], r)
	}
	keys := make([]string, 0, len(groups))
	for k, recs := range groups {
		keys = append(keys, k)
		sort.SliceStable(recs, func(i, j int) bool { return newer(recs[i].Date, recs[j].Date) })
	}
	sort.Strings(keys)
	return keys, groups
}

func newer(a, b string) bool {
	ta, okA := parseHeaderDate(a)
	tb, okB := parseHeaderDate(b)
	if okA && okB {
		return ta.After(tb)
	}
	return a > b
}

func (e *Exporter) writeHTML(path, sender string, records []model.EmailRecord) error {
	keys, groups := GroupByDate(records)
	data := pageData{Sender: sender}
	for _, k := range keys {
		day := pageDay{Key: k}
		for _, r := range groups[k] {
			pe := pageEmail{Subject: r.Subject, HTML: template.HTML(r.HTMLBody), Body: r.Body}
			for _, a := range r.Attachments {
				if a.Path == "" {
					continue
				}
				pe.Attachments = append(pe.Attachments, pageAttachment{Filename: a.Filename, Href: filepath.Base(a.Path)})
			}
			day.Emails = append(day.Emails, pe)
		}
		data.Days = append(data.Days, day)
	}

	f, err := os.Create(path)
	if err != nil {
		return &LocalIOError{Op: "create", Path: path, Err: err}
	}
	defer f.Close()
	if err := pageTmpl.Execute(f, data); err != nil {
		return &LocalIOError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &LocalIOError{Op: "close", Path: path, Err: err}
	}
	return nil
}

type jsonDoc struct {
	Sender      string      `json:"sender"`
	TotalEmails int         `json:"total_emails"`
	Emails      []jsonEmail `json:"emails"`
}

type jsonEmail struct {
	ID          string           `json:"id"`
	Date        string           `json:"date"`
	From        string           `json:"from"`
	Subject     string           `json:"subject"`
	Body        string           `json:"body"`
	HTMLBody    string           `json:"html_body"`
	Attachments []jsonAttachment `json:"attachments"`
}

type jsonAttachment struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mimeType"`
	Path     string `json:"path"`
}

func writeJSON(path, sender string, records []model.EmailRecord) error {
	doc := jsonDoc{Sender: sender, TotalEmails: len(records), Emails: make([]jsonEmail, 0, len(records))}
	for _, r := range records {
		je := jsonEmail{
			ID: r.ID, Date: r.Date, From: r.From, Subject: r.Subject,
			Body: r.Body, HTMLBody: r.HTMLBody,
			Attachments: make([]jsonAttachment, 0, len(r.Attachments)),
		}
		for _, a := range r.Attachments {
			je.Attachments = append(je.Attachments, jsonAttachment{Filename: a.Filename, MIMEType: a.MIMEType, Path: a.Path})
		}
		doc.Emails = append(doc.Emails, je)
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode emails.json: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return &LocalIOError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &LocalIOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
