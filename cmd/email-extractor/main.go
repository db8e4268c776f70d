package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/G2mcab/Email-extractor/internal/config"
	"github.com/G2mcab/Email-extractor/internal/gmail"
	"github.com/G2mcab/Email-extractor/internal/mailbox"
	"github.com/G2mcab/Email-extractor/internal/pipeline"
	"github.com/G2mcab/Email-extractor/internal/store"
)

const (
	defaultLogFile = "email_extractor.log"
	historyDB      = "history.db"
)

// globals holds the persistent flags shared by every command.
type globals struct {
	configPath string
	configDir  string
	tokenStore string
	logFile    string
	logLevel   string
	verbose    bool
}

// app is what a command needs once flags are parsed.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	cleanup func() error
	g       *globals
}

func main() {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:           "email-extractor",
		Short:         "Export, delete or archive Gmail messages from one sender",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", config.DefaultPath, "path to the JSON config store")
	pf.StringVar(&g.configDir, "config-dir", ".", "directory holding credentials.json, token.json and the run history")
	pf.StringVar(&g.tokenStore, "token-store", "file", "where the OAuth token is kept: file or keyring")
	pf.StringVar(&g.logFile, "log-file", defaultLogFile, "log file path (empty disables file logging)")
	pf.StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "also log to stderr")

	rootCmd.AddCommand(
		newRunCmd(g),
		newTUICmd(g),
		newAuthCmd(g),
		newHistoryCmd(g),
		newConfigCmd(g),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the config store and opens the log. console controls whether
// logs may also go to stderr.
func setup(g *globals, console bool) (*app, error) {
	logger, cleanup, err := setupLogger(g.logLevel, g.logFile, console && g.verbose)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	cfg, err := config.Load(g.configPath)
	if err != nil {
		_ = cleanup()
		return nil, err
	}
	logger.Debug("config loaded", "path", g.configPath, "csv_directory", cfg.CSVDirectory, "max_retries", cfg.MaxRetries)
	return &app{cfg: cfg, logger: logger, cleanup: cleanup, g: g}, nil
}

func setupLogger(levelName, logFile string, toStderr bool) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch levelName {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		return nil, nil, fmt.Errorf("unknown log level %q", levelName)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	var writers []io.Writer
	if toStderr {
		writers = append(writers, os.Stderr)
	}
	if logFile != "" {
		if dir := filepath.Dir(logFile); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, cleanup, err
			}
		}
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}
		writers = append(writers, file)
		cleanup = file.Close
	}

	if len(writers) == 0 {
		return slog.New(slog.NewTextHandler(io.Discard, opts)), cleanup, nil
	}
	return slog.New(slog.NewTextHandler(io.MultiWriter(writers...), opts)), cleanup, nil
}

func (a *app) tokens() (gmail.TokenStore, error) {
	switch a.g.tokenStore {
	case "file", "":
		return gmail.FileTokenStore{Path: filepath.Join(a.g.configDir, gmail.TokenFile)}, nil
	case "keyring":
		return gmail.OpenKeyringTokenStore(a.g.configDir)
	}
	return nil, fmt.Errorf("unknown token store %q (want file or keyring)", a.g.tokenStore)
}

// connector authorizes against Gmail each run, prompting through prompt when
// no usable token is stored.
func (a *app) connector(tokens gmail.TokenStore, prompt gmail.Prompt) pipeline.Connector {
	return func(ctx context.Context) (mailbox.Service, error) {
		return gmail.Connect(ctx, gmail.AuthOptions{
			ConfigDir: a.g.configDir,
			Tokens:    tokens,
			Prompt:    prompt,
			Logger:    a.logger,
		})
	}
}

func (a *app) openHistory() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(filepath.Join(a.g.configDir, historyDB))
}

// newRunner wires the orchestrator with the config store's settings and the
// run history, when it can be opened.
func (a *app) newRunner(connect pipeline.Connector, history *store.SQLiteStore) *pipeline.Runner {
	opts := []pipeline.Option{}
	if history != nil {
		opts = append(opts, pipeline.WithRecorder(history))
	}
	orch := pipeline.New(connect, pipeline.Config{
		OutputDir:   a.cfg.CSVDirectory,
		MaxRetries:  a.cfg.MaxRetries,
		BackoffUnit: time.Second,
	}, opts...)
	return pipeline.NewRunner(orch, a.logger)
}
