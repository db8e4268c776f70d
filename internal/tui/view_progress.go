package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/G2mcab/Email-extractor/internal/model"
)

// logTail is how many status lines the progress view keeps on screen.
const logTail = 6

var titleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("39")).
	PaddingBottom(1)

var footerStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("241")).
	PaddingTop(1)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	logStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	infoStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

func severityStyle(sev model.Severity) lipgloss.Style {
	switch sev {
	case model.SeveritySuccess:
		return successStyle
	case model.SeverityError:
		return errorStyle
	}
	return infoStyle
}

func severityLabel(sev model.Severity) string {
	switch sev {
	case model.SeveritySuccess:
		return "Success"
	case model.SeverityError:
		return "Error"
	}
	return "Info"
}

func (m *AppModel) runningView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Extracting"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n\n", m.spinner.View(), m.activity)
	b.WriteString(m.bar.ViewAs(m.percent / 100))
	b.WriteString("\n\n")
	b.WriteString(logStyle.Render(strings.Join(tail(m.log, logTail), "\n")))
	b.WriteString("\n")
	b.WriteString(footerStyle.Render("ctrl+c: quit"))
	return b.String()
}

func authView(authURL, input string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Authorize Gmail access"))
	b.WriteString("\n")
	b.WriteString("Open this URL in your browser to authenticate:\n\n")
	b.WriteString(authURL)
	b.WriteString("\n\nIf the browser does not return here on its own, paste the code or the full redirect URL:\n\n")
	b.WriteString(input)
	b.WriteString("\n")
	b.WriteString(footerStyle.Render("enter: submit  ctrl+c: quit"))
	return b.String()
}

func (m *AppModel) resultView() string {
	var b strings.Builder
	if m.result != nil {
		style := severityStyle(m.result.Severity)
		b.WriteString(style.Render(severityLabel(m.result.Severity)))
		b.WriteString("\n\n")
		b.WriteString(m.result.Message)
		b.WriteString("\n")
	}
	b.WriteString(footerStyle.Render("n: new run  h: history  q: quit"))
	return b.String()
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
