package main

import (
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/G2mcab/Email-extractor/internal/gmail"
	"github.com/G2mcab/Email-extractor/internal/tui"
)

// browserPrompt opens the consent URL in a browser before handing it to the UI.
type browserPrompt struct {
	gmail.ChanPrompt
	logger *slog.Logger
}

func (p browserPrompt) ShowURL(authURL, redirect string) {
	if err := gmail.OpenBrowser(authURL); err != nil {
		p.logger.Warn("could not open browser", "err", err)
	}
	p.ChanPrompt.ShowURL(authURL, redirect)
}

func newTUICmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Interactive form with live progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Logs would corrupt the screen, so they only go to the file.
			a, err := setup(g, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.cleanup() }()

			def, err := a.cfg.Action()
			if err != nil {
				return err
			}
			tokens, err := a.tokens()
			if err != nil {
				return err
			}
			history, err := a.openHistory()
			if err != nil {
				a.logger.Warn("run history unavailable", "err", err)
				history = nil
			} else {
				defer history.Close()
			}

			urls := make(chan string, 1)
			codes := make(chan string, 1)
			prompt := browserPrompt{ChanPrompt: gmail.ChanPrompt{URLs: urls, Input: codes}, logger: a.logger}
			runner := a.newRunner(a.connector(tokens, prompt), history)

			opts := tui.Options{
				Runner:        runner,
				DefaultAction: def,
				AuthURLs:      urls,
				AuthCodes:     codes,
				Logger:        a.logger,
			}
			if history != nil {
				opts.History = history
			}
			appModel := tui.NewAppModel(opts)
			p := tea.NewProgram(&appModel, tea.WithAltScreen())
			finalModel, err := p.Run()
			if err != nil {
				return fmt.Errorf("tui: %w", err)
			}
			if m, ok := finalModel.(*tui.AppModel); ok && m.Err != nil {
				return m.Err
			}
			return nil
		},
	}
}
