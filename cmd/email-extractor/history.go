package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/G2mcab/Email-extractor/internal/config"
	"github.com/G2mcab/Email-extractor/internal/model"
	"github.com/G2mcab/Email-extractor/internal/store"
)

func newHistoryCmd(g *globals) *cobra.Command {
	var f store.Filter
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(g, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.cleanup() }()

			db, err := a.openHistory()
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ListRuns(cmd.Context(), f)
			if err != nil {
				return err
			}
			total, err := db.CountRuns(cmd.Context())
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs, total)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Sender, "sender", "", "only runs for this sender")
	cmd.Flags().IntVar(&f.Limit, "limit", store.DefaultLimit, "maximum number of runs to show")
	return cmd
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// printRuns renders runs as a table; total is the count across all senders.
func printRuns(w io.Writer, runs []model.RunSummary, total int) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("STARTED", "SENDER", "ACTION", "MODE", "MATCHED", "EXPORTED", "MUTATED", "OUTCOME", "MESSAGE").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, r := range runs {
		t.Row(
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Sender,
			string(r.Action),
			string(r.Mode),
			strconv.Itoa(r.Matched),
			strconv.Itoa(r.Exported),
			strconv.Itoa(r.Mutated),
			string(r.Outcome),
			r.Message,
		)
	}
	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "Showing %d of %d recorded runs\n", len(runs), total)
}

func newConfigCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or change the config store",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(g, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.cleanup() }()
			return writeYAML(cmd.OutOrStdout(), a.cfg)
		},
	})

	var setFlags struct {
		dir     string
		retries int
		action  string
	}
	set := &cobra.Command{
		Use:   "set",
		Short: "Update values in the config store",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(g, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.cleanup() }()

			cfg := *a.cfg
			if cmd.Flags().Changed("csv-directory") {
				cfg.CSVDirectory = setFlags.dir
			}
			if cmd.Flags().Changed("max-retries") {
				cfg.MaxRetries = setFlags.retries
			}
			if cmd.Flags().Changed("default-action") {
				action, err := model.ParseAction(setFlags.action)
				if err != nil {
					return err
				}
				cfg.DefaultAction = string(action)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(g.configPath, &cfg); err != nil {
				return err
			}
			a.logger.Info("config updated", "path", g.configPath)
			return writeYAML(cmd.OutOrStdout(), &cfg)
		},
	}
	set.Flags().StringVar(&setFlags.dir, "csv-directory", "", "root directory for exports")
	set.Flags().IntVar(&setFlags.retries, "max-retries", config.DefaultMaxRetries, "attempts per remote call")
	set.Flags().StringVar(&setFlags.action, "default-action", "", "export, delete or archive")
	cmd.AddCommand(set)
	return cmd
}

func writeYAML(w io.Writer, cfg *config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
