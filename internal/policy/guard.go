// Package policy evaluates Rego guardrails against planned group mutations.
package policy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/converge/internal/history"
	"github.com/yairfalse/converge/internal/reconciler"
	"github.com/yairfalse/converge/internal/telemetry"
	"github.com/yairfalse/converge/pkg/group"
)

// DenyQuery is the rule every guardrail module contributes to. It must be a
// set of strings; each member is one denial reason.
const DenyQuery = "data.converge.deny"

// HistorySource supplies what is known about a group from earlier runs.
type HistorySource interface {
	Get(name string) (history.GroupState, error)
}

// Input is the document policies see as input.
type Input struct {
	Plan      group.Plan          `json:"plan"`
	History   *history.GroupState `json:"history,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// Guard vetoes plans that any loaded policy denies.
type Guard struct {
	modules map[string]string
	query   *rego.PreparedEvalQuery
	history HistorySource
	logger  *telemetry.Logger
	tracer  trace.Tracer
}

// NewGuard creates a guard with no policies. It allows everything until
// policies are loaded.
func NewGuard() *Guard {
	return &Guard{
		modules: make(map[string]string),
		logger:  telemetry.NewLogger("policy"),
		tracer:  otel.Tracer("converge.policy"),
	}
}

// WithHistory exposes recorded runs to policies as input.history.
func (g *Guard) WithHistory(src HistorySource) *Guard {
	g.history = src
	return g
}

// Len returns the number of loaded modules.
func (g *Guard) Len() int {
	return len(g.modules)
}

// LoadPolicy adds a Rego module and recompiles the deny query.
func (g *Guard) LoadPolicy(ctx context.Context, name, code string) error {
	ctx, span := g.tracer.Start(ctx, "policy.load_policy",
		trace.WithAttributes(attribute.String("policy.name", name)))
	defer span.End()

	modules := make(map[string]string, len(g.modules)+1)
	for k, v := range g.modules {
		modules[k] = v
	}
	modules[name] = code

	prepared, err := prepare(ctx, modules)
	if err != nil {
		return fmt.Errorf("failed to compile policy %s: %w", name, err)
	}

	g.modules = modules
	g.query = &prepared

	g.logger.WithContext(ctx).Debug().
		Str("policy_name", name).
		Msg("policy loaded")
	return nil
}

func prepare(ctx context.Context, modules map[string]string) (rego.PreparedEvalQuery, error) {
	opts := []func(*rego.Rego){rego.Query(DenyQuery)}
	for name, code := range modules {
		opts = append(opts, rego.Module(name, code))
	}
	return rego.New(opts...).PrepareForEval(ctx)
}

// Check implements reconciler.Guard.
func (g *Guard) Check(ctx context.Context, plan group.Plan) error {
	if g.query == nil {
		return nil
	}

	ctx, span := g.tracer.Start(ctx, "policy.check",
		trace.WithAttributes(
			attribute.String("converge.group", plan.Name),
			attribute.String("converge.action", string(plan.Action))))
	defer span.End()

	reasons, err := g.Evaluate(ctx, g.input(plan))
	if err != nil {
		return err
	}
	if len(reasons) == 0 {
		return nil
	}

	g.logger.WithContext(ctx).Warn().
		Str("group", plan.Name).
		Str("action", string(plan.Action)).
		Strs("reasons", reasons).
		Msg("plan denied by policy")
	return &reconciler.PolicyDeniedError{Reasons: reasons}
}

func (g *Guard) input(plan group.Plan) Input {
	in := Input{Plan: plan, Timestamp: time.Now().UTC()}
	if g.history == nil {
		return in
	}
	state, err := g.history.Get(plan.Name)
	switch {
	case err == nil:
		in.History = &state
	case !errors.Is(err, history.ErrNotFound):
		g.logger.Warn().Err(err).Str("group", plan.Name).Msg("failed to read group history")
	}
	return in
}

// Evaluate returns the sorted deny reasons for input.
func (g *Guard) Evaluate(ctx context.Context, input Input) ([]string, error) {
	if g.query == nil {
		return nil, nil
	}

	rs, err := g.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluate policies: %w", err)
	}

	var reasons []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			values, ok := expr.Value.([]interface{})
			if !ok {
				return nil, fmt.Errorf("%s must be a set of strings, got %T", DenyQuery, expr.Value)
			}
			for _, v := range values {
				reasons = append(reasons, fmt.Sprint(v))
			}
		}
	}
	sort.Strings(reasons)
	return reasons, nil
}
