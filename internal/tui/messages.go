package tui

import "github.com/G2mcab/Email-extractor/internal/model"

// Async message types for Bubble Tea commands.

type pollMsg struct{}

type authURLMsg string

type historyLoadedMsg struct {
	runs []model.RunSummary
	err  error
}

type statusMsg string
