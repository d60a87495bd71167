package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/converge/internal/journal"
)

var (
	journalSince time.Duration
	journalGroup string
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Replay the audit journal",
	Long: `Print journal entries as JSON lines, oldest first.

Examples:
  # Everything from the last hour
  converge journal --since 1h

  # Only one group
  converge journal --group web`,
	Args: cobra.NoArgs,
	RunE: runJournal,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.Flags().DurationVar(&journalSince, "since", 24*time.Hour, "Only show entries newer than this (0 for all)")
	journalCmd.Flags().StringVar(&journalGroup, "group", "", "Only show entries for this group")
}

func runJournal(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Journal.Dir == "" {
		return fmt.Errorf("journal is disabled: set [journal] dir in the config")
	}

	var since time.Time
	if journalSince > 0 {
		since = time.Now().Add(-journalSince)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	return journal.Replay(cfg.Journal.Dir, since, func(e *journal.Entry) error {
		if journalGroup != "" && e.Group != journalGroup {
			return nil
		}
		return enc.Encode(e)
	})
}
