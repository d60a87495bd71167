package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yairfalse/converge/internal/config"
	"github.com/yairfalse/converge/internal/telemetry"
)

var (
	version = "0.1.0"
	commit  = "dev"

	configPath string

	// errFailed means a failure report was already printed.
	errFailed = errors.New("reconcile failed")

	rootCmd = &cobra.Command{
		Use:   "converge",
		Short: "Converge an autoscaling group to a desired state",
		Long: `Converge - autoscaling group reconciler

Converge makes one AWS autoscaling group match a declared state.
With state=present the group is created or updated in place; with
state=absent it is scaled to zero, drained and deleted.

Every run prints a JSON report on stdout. Logs go to stderr.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Converge {{.Version}}
`)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML config file")
}

// loadConfig reads, validates and applies the logging section of the config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := telemetry.SetupLogging(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return cfg, nil
}
