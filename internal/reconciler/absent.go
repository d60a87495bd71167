package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/converge/internal/journal"
	"github.com/yairfalse/converge/pkg/group"
)

// EnsureAbsent scales the named group to zero, waits for its instances to
// terminate and deletes it. A group that does not exist is left alone.
func (r *Reconciler) EnsureAbsent(ctx context.Context, name string) (result group.Result, err error) {
	result = group.Result{
		Name:   name,
		State:  group.StateAbsent,
		Action: group.ActionNone,
		DryRun: r.dryRun,
	}
	if name == "" {
		return result, &ValidationError{Missing: []string{"name"}}
	}

	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "reconciler.ensure_absent",
		trace.WithAttributes(attribute.String("converge.group", name)))
	defer span.End()
	defer func() { r.observe(ctx, span, start, result, err) }()

	current, found, err := r.lookup(ctx, name)
	if err != nil {
		return result, err
	}
	if !found {
		r.record(journal.EntryObserved, name, map[string]bool{"exists": false})
		return result, nil
	}
	r.record(journal.EntryObserved, name, current)

	plan := group.Plan{
		Name:    name,
		State:   group.StateAbsent,
		Action:  group.ActionDeleted,
		Current: &current,
		DryRun:  r.dryRun,
	}
	if err := r.check(ctx, plan); err != nil {
		return result, err
	}

	if r.dryRun {
		r.record(journal.EntrySkipped, name, plan)
		result.Changed = true
		result.Action = group.ActionDeleted
		return result, nil
	}

	err = r.execute(ctx, name, "shutdown instances", current.Instances, func(ctx context.Context) error {
		return r.client.ShutdownAllInstances(ctx, current)
	})
	if err != nil {
		return result, err
	}
	// The group is scaled to zero from here on, even if draining fails.
	result.Changed = true

	gone, err := r.drain(ctx, name)
	if err != nil {
		r.recordError(journal.EntryFailed, name, "drain", err)
		return result, err
	}
	if gone {
		r.logger.WithContext(ctx).Info().Str("group", name).Msg("group disappeared while draining")
		result.Action = group.ActionDeleted
		return result, nil
	}

	err = r.execute(ctx, name, "delete group", name, func(ctx context.Context) error {
		return r.client.DeleteGroup(ctx, current)
	})
	if err != nil {
		return result, err
	}
	result.Action = group.ActionDeleted
	return result, nil
}

// drain polls until the group has no instances. It reports gone when the
// group vanished before reaching zero.
func (r *Reconciler) drain(ctx context.Context, name string) (gone bool, err error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "reconciler.drain")
	defer span.End()

	pollCtx := ctx
	if r.drainTimeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, r.drainTimeout)
		defer cancel()
	}

	logger := r.logger.WithContext(ctx)
	for polls := 1; ; polls++ {
		var groups []group.Group
		err := r.call(pollCtx, "describe all groups", func(ctx context.Context) error {
			var err error
			groups, err = r.client.ListAllGroups(ctx)
			return err
		})
		r.metrics.RecordDrainPoll(ctx)
		if err != nil {
			if stopErr := r.drainStopped(ctx, pollCtx, name, start); stopErr != nil {
				return false, stopErr
			}
			return false, err
		}

		g, found := findByName(groups, name)
		if !found {
			span.SetAttributes(attribute.Int("converge.drain.polls", polls))
			return true, nil
		}
		if g.Drained() {
			span.SetAttributes(attribute.Int("converge.drain.polls", polls))
			return false, nil
		}
		logger.Debug().
			Str("group", name).
			Int("instances", len(g.Instances)).
			Int("poll", polls).
			Msg("waiting for instances to terminate")

		timer := time.NewTimer(r.pollInterval)
		select {
		case <-pollCtx.Done():
			timer.Stop()
			return false, r.drainStopped(ctx, pollCtx, name, start)
		case <-timer.C:
		}
	}
}

// drainStopped explains why the drain loop had to stop, or returns nil
// when neither the caller nor the deadline cancelled it.
func (r *Reconciler) drainStopped(ctx, pollCtx context.Context, name string, start time.Time) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("drain %s: %w", name, err)
	}
	if errors.Is(pollCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Name: name, Waited: time.Since(start)}
	}
	return nil
}
