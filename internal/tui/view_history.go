package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/G2mcab/Email-extractor/internal/model"
)

// runItem wraps RunSummary for the history list.
type runItem struct {
	model.RunSummary
}

func (r runItem) FilterValue() string { return r.Sender }
func (r runItem) Title() string {
	return fmt.Sprintf("%s  %s (%s, %s)", r.StartedAt.Local().Format("Jan 2 15:04"), r.Sender, r.Action, r.Mode)
}
func (r runItem) Description() string {
	return severityStyle(r.Outcome).Render(severityLabel(r.Outcome)) + "  " + r.Message
}

func historyFooter() string {
	return footerStyle.Render("/: filter  esc: back  q: quit")
}

func runsToItems(runs []model.RunSummary) []list.Item {
	items := make([]list.Item, len(runs))
	for i, r := range runs {
		items[i] = runItem{r}
	}
	return items
}
