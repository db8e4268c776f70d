package tui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/G2mcab/Email-extractor/internal/model"
)

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	sender string
	start  string
	end    string
	action string
	mode   string
}

func newFormBindings(action model.Action) *formBindings {
	return &formBindings{action: string(action), mode: string(model.ModeSimple)}
}

func (fb *formBindings) buildForm(width int) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Sender").
				Placeholder("name@example.com").
				Value(&fb.sender).
				Validate(validateSender),
			huh.NewInput().
				Title("Start date").
				Placeholder("YYYY-MM-DD (optional)").
				Value(&fb.start).
				Validate(validateOptionalDate),
			huh.NewInput().
				Title("End date").
				Placeholder("YYYY-MM-DD (optional)").
				Value(&fb.end).
				Validate(validateOptionalDate),
			huh.NewSelect[string]().
				Title("Action").
				Options(
					huh.NewOption("Export only", string(model.ActionExport)),
					huh.NewOption("Export, then delete", string(model.ActionDelete)),
					huh.NewOption("Export, then archive", string(model.ActionArchive)),
				).
				Value(&fb.action),
			huh.NewSelect[string]().
				Title("Mode").
				Options(
					huh.NewOption("Simple (CSV of text bodies)", string(model.ModeSimple)),
					huh.NewOption("Full (CSV, attachments, HTML, JSON)", string(model.ModeFull)),
				).
				Value(&fb.mode),
		),
	).WithWidth(width).WithShowHelp(true)
}

// request converts the answers into a run request.
func (fb *formBindings) request() (model.RunRequest, error) {
	sender := strings.TrimSpace(fb.sender)
	if err := validateSender(sender); err != nil {
		return model.RunRequest{}, err
	}
	start, err := model.ParseDate(fb.start)
	if err != nil {
		return model.RunRequest{}, err
	}
	end, err := model.ParseDate(fb.end)
	if err != nil {
		return model.RunRequest{}, err
	}
	action, err := model.ParseAction(fb.action)
	if err != nil {
		return model.RunRequest{}, err
	}
	mode, err := model.ParseMode(fb.mode)
	if err != nil {
		return model.RunRequest{}, err
	}
	return model.RunRequest{Sender: sender, Start: start, End: end, Action: action, Mode: mode}, nil
}

func validateSender(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("sender is required")
	}
	return nil
}

func validateOptionalDate(s string) error {
	_, err := model.ParseDate(s)
	return err
}

func formFooter() string {
	return footerStyle.Render("enter: next / submit  shift+tab: back  esc: quit")
}
