package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/G2mcab/Email-extractor/internal/gmail"
	"github.com/G2mcab/Email-extractor/internal/model"
	"github.com/G2mcab/Email-extractor/internal/pipeline"
)

const pollInterval = 100 * time.Millisecond

type runFlags struct {
	sender string
	start  string
	end    string
	action string
	mode   string
}

// request validates the flags. An empty action falls back to def.
func (f runFlags) request(def model.Action) (model.RunRequest, error) {
	sender := strings.TrimSpace(f.sender)
	if sender == "" {
		return model.RunRequest{}, fmt.Errorf("%w: --sender is required", model.ErrInvalidInput)
	}
	start, err := model.ParseDate(f.start)
	if err != nil {
		return model.RunRequest{}, err
	}
	end, err := model.ParseDate(f.end)
	if err != nil {
		return model.RunRequest{}, err
	}
	action := def
	if f.action != "" {
		if action, err = model.ParseAction(f.action); err != nil {
			return model.RunRequest{}, err
		}
	}
	mode, err := model.ParseMode(f.mode)
	if err != nil {
		return model.RunRequest{}, err
	}
	return model.RunRequest{Sender: sender, Start: start, End: end, Action: action, Mode: mode}, nil
}

func newRunCmd(g *globals) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Export messages from one sender, then optionally delete or archive them",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(g, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.cleanup() }()

			def, err := a.cfg.Action()
			if err != nil {
				return err
			}
			req, err := f.request(def)
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

			runner := a.newRunner(a.connector(tokens, nil), history)
			rc, err := runner.Start(cmd.Context(), req)
			if err != nil {
				return err
			}
			final := follow(cmd.Context(), rc, cmd.OutOrStdout())
			if final.Severity == model.SeverityError {
				return errors.New(final.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.sender, "sender", "", "sender address or name to filter on (required)")
	cmd.Flags().StringVar(&f.start, "start", "", "only messages after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "end", "", "only messages before this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.action, "action", "", "export, delete or archive (default from config)")
	cmd.Flags().StringVar(&f.mode, "mode", string(model.ModeSimple), "simple or full")
	return cmd
}

// follow polls the run's events until it completes, printing each one, and
// returns the complete event.
func follow(ctx context.Context, rc *pipeline.RunContext, out io.Writer) model.ProgressEvent {
	p := &consolePrinter{out: out}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		for _, ev := range rc.Events.Drain() {
			p.print(ev)
			if ev.Kind == model.EventComplete {
				return ev
			}
		}
		select {
		case <-ctx.Done():
			// The run keeps going; wait for its last event.
			<-rc.Done()
		case <-ticker.C:
		case <-rc.Done():
		}
	}
}

// consolePrinter renders events as lines; progress rewrites its line.
type consolePrinter struct {
	out        io.Writer
	inProgress bool
}

func (p *consolePrinter) print(ev model.ProgressEvent) {
	switch ev.Kind {
	case model.EventProgress:
		fmt.Fprintf(p.out, "\r[%3.0f%%] %-60s", ev.Percent, ev.Message)
		p.inProgress = true
	case model.EventStatus:
		p.endLine()
		fmt.Fprintln(p.out, ev.Message)
	case model.EventComplete:
		p.endLine()
		fmt.Fprintf(p.out, "%s: %s\n", strings.ToUpper(string(ev.Severity)), ev.Message)
	}
}

func (p *consolePrinter) endLine() {
	if p.inProgress {
		fmt.Fprintln(p.out)
		p.inProgress = false
	}
}

func newAuthCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize Gmail access and store the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(g, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.cleanup() }()

			tokens, err := a.tokens()
			if err != nil {
				return err
			}
			if err := gmail.Authorize(cmd.Context(), gmail.AuthOptions{
				ConfigDir: g.configDir,
				Tokens:    tokens,
				Prompt:    gmail.NewConsolePrompt(os.Stderr, cmd.InOrStdin()),
				Logger:    a.logger,
			}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Authorized.")
			return nil
		},
	}
}
