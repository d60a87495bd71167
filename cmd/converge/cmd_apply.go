package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/converge/internal/config"
	"github.com/yairfalse/converge/internal/history"
	"github.com/yairfalse/converge/internal/journal"
	"github.com/yairfalse/converge/internal/policy"
	"github.com/yairfalse/converge/internal/provider/aws"
	"github.com/yairfalse/converge/internal/reconciler"
	"github.com/yairfalse/converge/internal/task"
	"github.com/yairfalse/converge/internal/telemetry"
	"github.com/yairfalse/converge/pkg/group"
)

type applyOptions struct {
	paramsFile string
	check      bool
	name       string
	state      string
	region     string
	profile    string
}

var applyOpts applyOptions

// newClient builds the remote client. Tests replace it.
var newClient = func(ctx context.Context, cfg aws.Config) (reconciler.Client, error) {
	return aws.New(ctx, cfg)
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Reconcile one autoscaling group",
	Long: `Reconcile one autoscaling group against the given parameters.

Parameters are read as YAML or JSON from a file, or from stdin with -f -.

Examples:
  # Create or update a group
  converge apply -f web.yaml

  # Show what would change without touching anything
  converge apply -f web.yaml --check

  # Remove a group
  converge apply -f web.yaml --state absent`,
	RunE: runApply,
}

func init() {
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().StringVarP(&applyOpts.paramsFile, "file", "f", "", "Parameter file (YAML or JSON, - for stdin)")
	applyCmd.Flags().BoolVar(&applyOpts.check, "check", false, "Report changes without making them")
	applyCmd.Flags().StringVar(&applyOpts.name, "name", "", "Override the group name")
	applyCmd.Flags().StringVar(&applyOpts.state, "state", "", "Override the state (present or absent)")
	applyCmd.Flags().StringVar(&applyOpts.region, "region", "", "Override the AWS region")
	applyCmd.Flags().StringVar(&applyOpts.profile, "profile", "", "Override the AWS profile")
	_ = applyCmd.MarkFlagRequired("file")
}

func runApply(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	report := apply(cmd.Context(), cfg, applyOpts, cmd.InOrStdin())
	if err := report.Write(cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if report.Failed {
		return errFailed
	}
	return nil
}

// apply runs one invocation end to end and never returns an error: every
// failure ends up in the report.
func apply(ctx context.Context, cfg *config.Config, opts applyOptions, stdin io.Reader) task.Report {
	if ctx == nil {
		ctx = context.Background()
	}

	params, err := readParams(opts.paramsFile, stdin)
	if err != nil {
		return task.ReportFromError(err)
	}
	opts.override(params)

	spec, err := params.Spec()
	if err != nil {
		return task.ReportFromError(err)
	}
	if err := reconciler.Validate(spec); err != nil {
		return task.ReportFromError(err)
	}

	provider, err := telemetry.NewProvider(ctx, cfg.OTEL)
	if err != nil {
		return task.ReportFromError(fmt.Errorf("failed to set up telemetry: %w", err))
	}
	defer flushTelemetry(provider, cfg.Metrics)

	metrics, err := reconciler.NewMetricsFromMeter(provider.Meter())
	if err != nil {
		return task.ReportFromError(fmt.Errorf("failed to create metrics: %w", err))
	}

	env, err := openRunEnv(ctx, cfg)
	if err != nil {
		return task.ReportFromError(err)
	}
	defer env.Close()

	client, err := newClient(ctx, aws.Config{
		Region:  firstNonEmpty(params.Region, cfg.AWS.Region),
		Profile: firstNonEmpty(params.Profile, cfg.AWS.Profile),
	})
	if err != nil {
		return task.ReportFromError(err)
	}

	rec := reconciler.New(client, env.options(
		reconciler.WithDryRun(opts.check),
		reconciler.WithMetrics(metrics),
		reconciler.WithPollInterval(cfg.Reconcile.PollInterval),
		reconciler.WithDrainTimeout(cfg.Reconcile.DrainTimeout),
		reconciler.WithLogger(telemetry.NewLogger("reconciler")),
	)...)

	result, err := reconcileWithSignals(ctx, rec, spec)
	env.recordHistory(result, err)
	return task.NewReport(result, err)
}

func (o applyOptions) override(p *task.Params) {
	if o.name != "" {
		p.Name = o.name
	}
	if o.state != "" {
		p.State = o.state
	}
	if o.region != "" {
		p.Region = o.region
	}
	if o.profile != "" {
		p.Profile = o.profile
	}
}

func readParams(path string, stdin io.Reader) (*task.Params, error) {
	if path == "-" {
		return task.Load(stdin)
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open parameters: %w", err)
	}
	defer func() { _ = f.Close() }()
	return task.Load(f)
}

// runEnv holds the optional per-run sinks configured in the TOML file.
type runEnv struct {
	journal *journal.Journal
	history *history.Store
	guard   *policy.Guard
	keep    int64
}

func openRunEnv(ctx context.Context, cfg *config.Config) (*runEnv, error) {
	env := &runEnv{}

	if cfg.Journal.Dir != "" {
		j, err := journal.Open(cfg.Journal.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		env.journal = j
	}

	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		env.history = store
		env.keep = cfg.History.Keep
	}

	if cfg.Policy.Dir != "" {
		guard := policy.NewGuard()
		if env.history != nil {
			guard.WithHistory(env.history)
		}
		if err := guard.LoadDir(ctx, cfg.Policy.Dir); err != nil {
			env.Close()
			return nil, fmt.Errorf("failed to load policies: %w", err)
		}
		env.guard = guard
	}

	return env, nil
}

func (e *runEnv) options(opts ...reconciler.Option) []reconciler.Option {
	if e.journal != nil {
		opts = append(opts, reconciler.WithJournal(e.journal))
	}
	if e.guard != nil {
		opts = append(opts, reconciler.WithGuard(e.guard))
	}
	return opts
}

func (e *runEnv) recordHistory(result group.Result, reconcileErr error) {
	if e.history == nil {
		return
	}
	run := history.Run{
		Name:    result.Name,
		State:   result.State,
		Action:  result.Action,
		Changed: result.Changed,
		DryRun:  result.DryRun,
		Changes: result.Changes,
		At:      time.Now().UTC(),
	}
	if e.journal != nil {
		run.RunID = e.journal.Run()
	}
	if reconcileErr != nil {
		run.Error = reconcileErr.Error()
	}
	if _, err := e.history.Record(run); err != nil {
		log.Warn().Err(err).Str("group", result.Name).Msg("failed to record history")
		return
	}
	if e.keep > 0 {
		if err := e.history.Compact(e.keep); err != nil {
			log.Warn().Err(err).Msg("failed to compact history")
		}
	}
}

func (e *runEnv) Close() {
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close journal")
		}
	}
	if e.history != nil {
		if err := e.history.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close history")
		}
	}
}

// flushTelemetry exports this run's metrics and shuts the providers down.
func flushTelemetry(provider *telemetry.Provider, cfg config.MetricsConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := provider.Export(ctx, cfg); err != nil {
		log.Warn().Err(err).Msg("failed to export metrics")
	}
	if err := provider.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to shut down telemetry")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
