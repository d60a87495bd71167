package reconciler

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/converge/internal/journal"
	"github.com/yairfalse/converge/internal/telemetry"
	"github.com/yairfalse/converge/pkg/group"
)

const (
	// DefaultPollInterval is the wait between drain status polls.
	DefaultPollInterval = 10 * time.Second

	// DefaultDrainTimeout bounds how long EnsureAbsent waits for instances to go.
	DefaultDrainTimeout = 10 * time.Minute
)

// Reconciler drives one autoscaling group towards a desired state.
type Reconciler struct {
	client       Client
	journal      Journal
	guard        Guard
	metrics      *Metrics
	logger       *telemetry.Logger
	tracer       trace.Tracer
	dryRun       bool
	pollInterval time.Duration
	drainTimeout time.Duration
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithDryRun makes the reconciler decide without writing.
func WithDryRun(dryRun bool) Option {
	return func(r *Reconciler) { r.dryRun = dryRun }
}

// WithJournal records every step to j.
func WithJournal(j Journal) Option {
	return func(r *Reconciler) { r.journal = j }
}

// WithGuard checks every planned mutation against g.
func WithGuard(g Guard) Option {
	return func(r *Reconciler) { r.guard = g }
}

// WithMetrics records reconcile outcomes and drain polls on m.
func WithMetrics(m *Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithLogger replaces the default component logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithPollInterval sets the wait between drain polls. Non-positive values are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithDrainTimeout bounds the drain wait. Zero waits until ctx is done.
func WithDrainTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d >= 0 {
			r.drainTimeout = d
		}
	}
}

// New creates a reconciler that talks to client.
func New(client Client, opts ...Option) *Reconciler {
	r := &Reconciler{
		client:       client,
		pollInterval: DefaultPollInterval,
		drainTimeout: DefaultDrainTimeout,
		tracer:       otel.Tracer("converge.reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = telemetry.NewLogger("reconciler")
	}
	return r
}

// Reconcile dispatches on spec.State.
func (r *Reconciler) Reconcile(ctx context.Context, spec group.Spec) (group.Result, error) {
	switch spec.State {
	case group.StatePresent:
		return r.EnsurePresent(ctx, spec)
	case group.StateAbsent:
		return r.EnsureAbsent(ctx, spec.Name)
	default:
		return group.Result{Name: spec.Name, State: spec.State, Action: group.ActionNone}, invalidState(spec.State)
	}
}

// Validate runs the checks Reconcile performs before its first remote
// call, so callers can reject a spec before building a client.
func Validate(spec group.Spec) error {
	switch spec.State {
	case group.StatePresent:
		return validatePresent(spec)
	case group.StateAbsent:
		if spec.Name == "" {
			return &ValidationError{Missing: []string{"name"}}
		}
		return nil
	default:
		return invalidState(spec.State)
	}
}

func invalidState(s group.State) error {
	return &ValidationError{Reason: fmt.Sprintf("invalid state %q: must be present or absent", s)}
}

// observe records metrics and the span outcome of a finished run.
func (r *Reconciler) observe(ctx context.Context, span trace.Span, start time.Time, result group.Result, err error) {
	status := "success"
	if err != nil {
		status = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.Bool("converge.changed", result.Changed),
		attribute.String("converge.action", string(result.Action)),
	)
	r.metrics.RecordReconciliation(ctx, string(result.State), string(result.Action), status, time.Since(start).Seconds())

	logger := r.logger.WithContext(ctx)
	if err != nil {
		logger.Error().Err(err).
			Str("group", result.Name).
			Str("state", string(result.State)).
			Msg("reconcile failed")
		return
	}
	logger.Info().
		Str("group", result.Name).
		Str("state", string(result.State)).
		Str("action", string(result.Action)).
		Bool("changed", result.Changed).
		Bool("dry_run", result.DryRun).
		Dur("duration", time.Since(start)).
		Msg("reconcile finished")
}

// call runs one remote operation in its own span and wraps its error.
func (r *Reconciler) call(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := r.tracer.Start(ctx, "client."+op)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return remote(op, err)
	}
	return nil
}

// lookup finds a group by exact name.
func (r *Reconciler) lookup(ctx context.Context, name string) (group.Group, bool, error) {
	var groups []group.Group
	err := r.call(ctx, "describe groups", func(ctx context.Context) error {
		var err error
		groups, err = r.client.ListGroupsByName(ctx, []string{name})
		return err
	})
	if err != nil {
		return group.Group{}, false, err
	}
	g, found := findByName(groups, name)
	return g, found, nil
}

func findByName(groups []group.Group, name string) (group.Group, bool) {
	for _, g := range groups {
		if g.Name == name {
			return g, true
		}
	}
	return group.Group{}, false
}

// check asks the guard about plan. Denials are journaled as skipped.
func (r *Reconciler) check(ctx context.Context, plan group.Plan) error {
	r.record(journal.EntryDecided, plan.Name, plan)
	if r.guard == nil {
		return nil
	}
	if err := r.guard.Check(ctx, plan); err != nil {
		r.recordError(journal.EntrySkipped, plan.Name, plan, err)
		return err
	}
	return nil
}

// execute journals and runs one mutation.
func (r *Reconciler) execute(ctx context.Context, name, op string, data any, fn func(context.Context) error) error {
	r.record(journal.EntryExecuting, name, op)
	if err := r.call(ctx, op, fn); err != nil {
		r.recordError(journal.EntryFailed, name, data, err)
		return err
	}
	r.record(journal.EntryExecuted, name, data)
	return nil
}

// record appends to the journal. Journal failures never fail a reconcile.
func (r *Reconciler) record(entryType journal.EntryType, name string, data any) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Append(entryType, name, data); err != nil {
		r.logger.Warn().Err(err).Str("entry", string(entryType)).Msg("failed to write journal entry")
	}
}

func (r *Reconciler) recordError(entryType journal.EntryType, name string, data any, cause error) {
	if r.journal == nil {
		return
	}
	if err := r.journal.AppendError(entryType, name, data, cause); err != nil {
		r.logger.Warn().Err(err).Str("entry", string(entryType)).Msg("failed to write journal entry")
	}
}
