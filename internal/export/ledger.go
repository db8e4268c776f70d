// Package export persists resolved email records: the incremental ledger, the
// simple CSV export and the full-extraction bundle.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/G2mcab/Email-extractor/internal/model"
)

// Ledger is the set of message ids already present in an export target.
type Ledger map[string]struct{}

// LoadLedger rebuilds the ledger from the CSV at path. A missing file yields an
// empty ledger; a file that cannot be parsed yields an empty ledger and a
// logged error.
func LoadLedger(path string, logger *slog.Logger) Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	ids, err := readIDs(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Error("error reading existing IDs", "path", path, "err", err)
		}
		return Ledger{}
	}
	return ids
}

func readIDs(path string) (Ledger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // banner and header rows differ in width

	ids := Ledger{}
	col := -1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if col < 0 {
			col = indexOf(row, "id")
			continue
		}
		if col < len(row) && row[col] != "" {
			ids[row[col]] = struct{}{}
		}
	}
	if col < 0 && len(ids) == 0 {
		if st, err := f.Stat(); err == nil && st.Size() > 0 {
			return nil, fmt.Errorf("parse %s: no id column", path)
		}
	}
	return ids, nil
}

func indexOf(row []string, name string) int {
	for i, v := range row {
		if strings.TrimSpace(v) == name {
			return i
		}
	}
	return -1
}

func (l Ledger) Has(id string) bool {
	_, ok := l[id]
	return ok
}

// Filter returns the refs not yet in the ledger, preserving order.
func (l Ledger) Filter(refs []model.MessageRef) []model.MessageRef {
	var out []model.MessageRef
	for _, ref := range refs {
		if !l.Has(ref.ID) {
			out = append(out, ref)
		}
	}
	return out
}
