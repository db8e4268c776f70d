package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/G2mcab/Email-extractor/internal/model"
	"github.com/G2mcab/Email-extractor/internal/util"
)

var (
	simpleHeader = []string{"id", "date", "from", "subject", "body"}
	fullHeader   = []string{"id", "date", "from", "subject", "body", "html_body", "attachments"}
)

// LocalIOError is a failure to create, read or write a local file.
type LocalIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LocalIOError) Unwrap() error { return e.Err }

// ProgressFunc receives an advisory percentage and a status line.
type ProgressFunc func(percent float64, message string)

// Target names the files of one sender's export.
type Target struct {
	Dir string // directory receiving the CSV (and, in full mode, the bundle)
	CSV string
}

// TargetFor returns where a run for sender writes under root. Full mode gets
// its own per-sender directory.
func TargetFor(root, sender string, mode model.Mode) Target {
	name := "emails_from_" + util.SenderSlug(sender)
	dir := root
	if mode == model.ModeFull {
		dir = filepath.Join(root, name)
	}
	return Target{Dir: dir, CSV: filepath.Join(dir, name+".csv")}
}

// Exporter writes export files. It is safe to reuse across runs but not for
// concurrent writes to the same target.
type Exporter struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{logger: logger.With("component", "export")}
}

// AppendCSV appends one id,date,from,subject,body row per record. A new or
// empty file starts with a sender banner and the header row.
func (e *Exporter) AppendCSV(path, sender string, records []model.EmailRecord, progress ProgressFunc) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{r.ID, r.Date, r.From, r.Subject, r.Body})
	}
	err := e.appendRows(path, sender, simpleHeader, rows, func(i, total int) {
		report(progress, float64(i)/float64(total)*100, fmt.Sprintf("Exporting %d/%d emails", i, total))
	})
	if err != nil {
		return err
	}
	report(progress, 100, "Export complete")
	e.logger.Info("exported emails", "count", len(records), "path", path)
	return nil
}

func (e *Exporter) appendRows(path, sender string, header []string, rows [][]string, onRow func(i, total int)) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &LocalIOError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	// an empty file is treated like a missing one
	st, statErr := os.Stat(path)
	if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
		return &LocalIOError{Op: "stat", Path: path, Err: statErr}
	}
	hasHeader := statErr == nil && st.Size() > 0

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &LocalIOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if !hasHeader {
		banner := []string{"Sender: " + sender, fmt.Sprintf("Total Emails: %d", len(rows))}
		if err := w.Write(banner); err != nil {
			return &LocalIOError{Op: "write", Path: path, Err: err}
		}
		if err := w.Write(header); err != nil {
			return &LocalIOError{Op: "write", Path: path, Err: err}
		}
	}
	for i, row := range rows {
		if err := w.Write(row); err != nil {
			return &LocalIOError{Op: "write", Path: path, Err: err}
		}
		if onRow != nil {
			onRow(i+1, len(rows))
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &LocalIOError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &LocalIOError{Op: "close", Path: path, Err: err}
	}
	return nil
}

// formatFilenames renders names as a bracketed, quoted list: ['a.pdf', 'b.png'].
func formatFilenames(atts []model.AttachmentRecord) string {
	parts := make([]string, 0, len(atts))
	for _, a := range atts {
		q := "'"
		if strings.Contains(a.Filename, "'") && !strings.Contains(a.Filename, `"`) {
			q = `"`
		}
		name := a.Filename
		if q == "'" {
			name = strings.ReplaceAll(name, "'", `\'`)
		}
		parts = append(parts, q+name+q)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func report(progress ProgressFunc, percent float64, msg string) {
	if progress != nil {
		progress(percent, msg)
	}
}
