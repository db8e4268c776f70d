package mailbox

import (
	"fmt"
	"strings"
	"time"

	"github.com/G2mcab/Email-extractor/internal/model"
)

// queryDateLayout is the provider's date syntax for after:/before: terms.
const queryDateLayout = "2006/01/02"

// BuildQuery turns a sender and optional date bounds into a search query of the
// form "from:<sender>[ after:YYYY/MM/DD][ before:YYYY/MM/DD]".
func BuildQuery(sender string, start, end *time.Time) (string, error) {
	if strings.TrimSpace(sender) == "" {
		return "", fmt.Errorf("%w: sender is required", model.ErrInvalidInput)
	}
	var b strings.Builder
	b.WriteString("from:")
	b.WriteString(sender)
	if start != nil {
		b.WriteString(" after:")
		b.WriteString(start.Format(queryDateLayout))
	}
	if end != nil {
		b.WriteString(" before:")
		b.WriteString(end.Format(queryDateLayout))
	}
	return b.String(), nil
}
