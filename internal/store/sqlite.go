package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/G2mcab/Email-extractor/internal/model"
	"github.com/G2mcab/Email-extractor/internal/util"
)

// DefaultLimit caps ListRuns when no limit is given.
const DefaultLimit = 20

// timeLayout is fixed width so started_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore keeps the run history in a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) the database at the given path and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sqlx.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	sender      TEXT NOT NULL,
	sender_key  TEXT NOT NULL DEFAULT '',
	query       TEXT NOT NULL DEFAULT '',
	mode        TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL DEFAULT '',
	target      TEXT NOT NULL DEFAULT '',
	matched     INTEGER NOT NULL DEFAULT 0,
	exported    INTEGER NOT NULL DEFAULT 0,
	mutated     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	outcome     TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL DEFAULT '',
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_sender_key ON runs(sender_key, started_at);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type runRow struct {
	ID         string `db:"id"`
	Sender     string `db:"sender"`
	SenderKey  string `db:"sender_key"`
	Query      string `db:"query"`
	Mode       string `db:"mode"`
	Action     string `db:"action"`
	Target     string `db:"target"`
	Matched    int    `db:"matched"`
	Exported   int    `db:"exported"`
	Mutated    int    `db:"mutated"`
	Failed     int    `db:"failed"`
	Outcome    string `db:"outcome"`
	Message    string `db:"message"`
	StartedAt  string `db:"started_at"`
	FinishedAt string `db:"finished_at"`
}

// senderKey groups history by address; free-form senders are kept as typed.
func senderKey(sender string) string {
	if k := util.NormalizeSender(sender); k != "" {
		return k
	}
	return sender
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (r runRow) summary() model.RunSummary {
	return model.RunSummary{
		ID:         r.ID,
		Sender:     r.Sender,
		Query:      r.Query,
		Mode:       model.Mode(r.Mode),
		Action:     model.Action(r.Action),
		Target:     r.Target,
		Matched:    r.Matched,
		Exported:   r.Exported,
		Mutated:    r.Mutated,
		Failed:     r.Failed,
		Outcome:    model.Severity(r.Outcome),
		Message:    r.Message,
		StartedAt:  parseTime(r.StartedAt),
		FinishedAt: parseTime(r.FinishedAt),
	}
}

// Record inserts or replaces the summary of a run.
func (s *SQLiteStore) Record(ctx context.Context, sum model.RunSummary) error {
	if sum.ID == "" {
		return errors.New("run id is required")
	}
	row := runRow{
		ID:         sum.ID,
		Sender:     sum.Sender,
		SenderKey:  senderKey(sum.Sender),
		Query:      sum.Query,
		Mode:       string(sum.Mode),
		Action:     string(sum.Action),
		Target:     sum.Target,
		Matched:    sum.Matched,
		Exported:   sum.Exported,
		Mutated:    sum.Mutated,
		Failed:     sum.Failed,
		Outcome:    string(sum.Outcome),
		Message:    sum.Message,
		StartedAt:  formatTime(sum.StartedAt),
		FinishedAt: formatTime(sum.FinishedAt),
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO runs (id, sender, sender_key, query, mode, action, target, matched, exported, mutated, failed, outcome, message, started_at, finished_at)
		VALUES (:id, :sender, :sender_key, :query, :mode, :action, :target, :matched, :exported, :mutated, :failed, :outcome, :message, :started_at, :finished_at)
		ON CONFLICT(id) DO UPDATE SET
			matched     = excluded.matched,
			exported    = excluded.exported,
			mutated     = excluded.mutated,
			failed      = excluded.failed,
			outcome     = excluded.outcome,
			message     = excluded.message,
			finished_at = excluded.finished_at
	`, row)
	if err != nil {
		return fmt.Errorf("record run %s: %w", sum.ID, err)
	}
	return nil
}

// Filter narrows ListRuns.
type Filter struct {
	Sender string // matched after normalization; empty means all senders
	Limit  int
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, f Filter) ([]model.RunSummary, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	var rows []runRow
	var err error
	if f.Sender != "" {
		err = s.db.SelectContext(ctx, &rows,
			"SELECT * FROM runs WHERE sender_key = ? ORDER BY started_at DESC LIMIT ?", senderKey(f.Sender), limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, "SELECT * FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]model.RunSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.summary())
	}
	return out, nil
}

// GetRun returns one run, or sql.ErrNoRows.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (model.RunSummary, error) {
	var r runRow
	if err := s.db.GetContext(ctx, &r, "SELECT * FROM runs WHERE id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunSummary{}, err
		}
		return model.RunSummary{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return r.summary(), nil
}

// CountRuns returns how many runs are recorded across all senders.
func (s *SQLiteStore) CountRuns(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM runs")
	return count, err
}
