package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/yairfalse/converge/internal/history"
)

var historyLimit int

var (
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	changedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Padding(0, 1)
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Padding(0, 1)
)

var historyCmd = &cobra.Command{
	Use:   "history [name]",
	Short: "Show recorded reconcile outcomes",
	Long: `Show what earlier runs did.

Without a name, one line per known group is printed. With a name, the
most recent runs for that group are listed, newest first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.History.Path == "" {
		return fmt.Errorf("history is disabled: set [history] path in the config")
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer func() { _ = store.Close() }()

	if len(args) == 0 {
		return printGroups(cmd.OutOrStdout(), store.Groups())
	}

	runs, err := store.Runs(args[0], historyLimit)
	if err != nil {
		return err
	}
	return printRuns(cmd.OutOrStdout(), runs)
}

func printGroups(w io.Writer, groups []history.GroupState) error {
	if len(groups) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}

	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, []string{
			g.Name,
			strconv.Itoa(g.Runs),
			string(g.LastAction),
			strconv.FormatBool(g.Exists),
			strconv.FormatInt(g.LastRev, 10),
			g.LastError,
		})
	}

	t := newTable("GROUP", "RUNS", "LAST ACTION", "EXISTS", "LAST REV", "LAST ERROR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 5 && rows[row][5] != "" {
				return failedStyle
			}
			return cellStyle
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func printRuns(w io.Writer, runs []history.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			strconv.FormatInt(r.Revision, 10),
			r.At.Format("2006-01-02 15:04:05"),
			string(r.State),
			string(r.Action),
			strconv.FormatBool(r.Changed),
			formatChanges(r),
			r.Error,
		})
	}

	t := newTable("REV", "AT", "STATE", "ACTION", "CHANGED", "CHANGES", "ERROR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case rows[row][6] != "":
				return failedStyle
			case rows[row][4] == "true":
				return changedStyle
			default:
				return cellStyle
			}
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...)
}

func formatChanges(r history.Run) string {
	if r.DryRun && len(r.Changes) == 0 {
		return "(check)"
	}
	parts := make([]string, 0, len(r.Changes))
	for field, c := range r.Changes {
		parts = append(parts, fmt.Sprintf("%s: %s -> %s", field, c.Previous, c.Current))
	}
	slices.Sort(parts)
	if r.DryRun {
		parts = append(parts, "(check)")
	}
	return strings.Join(parts, "\n")
}
