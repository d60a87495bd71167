package reconciler

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/converge/internal/journal"
	"github.com/yairfalse/converge/pkg/group"
)

// target is a validated spec with its remote references resolved.
type target struct {
	spec group.Spec
	// targetGroupARNs is nil when no target groups were supplied.
	targetGroupARNs []string
}

// EnsurePresent creates the group when it does not exist and otherwise
// updates it so every supplied field matches spec.
func (r *Reconciler) EnsurePresent(ctx context.Context, spec group.Spec) (result group.Result, err error) {
	result = group.Result{
		Name:   spec.Name,
		State:  group.StatePresent,
		Action: group.ActionNone,
		DryRun: r.dryRun,
	}
	if err := validatePresent(spec); err != nil {
		return result, err
	}

	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "reconciler.ensure_present",
		trace.WithAttributes(attribute.String("converge.group", spec.Name)))
	defer span.End()
	defer func() { r.observe(ctx, span, start, result, err) }()

	desired, err := r.resolve(ctx, spec)
	if err != nil {
		return result, err
	}

	current, found, err := r.lookup(ctx, spec.Name)
	if err != nil {
		return result, err
	}
	if !found {
		r.record(journal.EntryObserved, spec.Name, map[string]bool{"exists": false})
		return r.create(ctx, desired, result)
	}
	r.record(journal.EntryObserved, spec.Name, current)
	return r.update(ctx, desired, current, result)
}

// validatePresent reports missing required parameters in a fixed order.
func validatePresent(spec group.Spec) error {
	var missing []string
	if spec.Name == "" {
		missing = append(missing, "name")
	}
	if spec.MinSize == nil {
		missing = append(missing, "min_size")
	}
	if spec.MaxSize == nil {
		missing = append(missing, "max_size")
	}
	if spec.LaunchConfigurationName == "" {
		missing = append(missing, "launch_config_name")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// resolve looks up the launch configuration, fills in zones when the spec
// gives no placement and maps target group names to ARNs.
func (r *Reconciler) resolve(ctx context.Context, spec group.Spec) (target, error) {
	var configs []group.LaunchConfiguration
	err := r.call(ctx, "describe launch configurations", func(ctx context.Context) error {
		var err error
		configs, err = r.client.ListLaunchConfigurationsByName(ctx, []string{spec.LaunchConfigurationName})
		return err
	})
	if err != nil {
		return target{}, err
	}
	if !hasLaunchConfiguration(configs, spec.LaunchConfigurationName) {
		return target{}, fmt.Errorf("%w: %s", ErrLaunchConfigurationNotFound, spec.LaunchConfigurationName)
	}

	if len(spec.AvailabilityZones) == 0 && len(spec.VPCSubnetIDs) == 0 {
		var zones []string
		err := r.call(ctx, "describe availability zones", func(ctx context.Context) error {
			var err error
			zones, err = r.client.ListAvailabilityZones(ctx)
			return err
		})
		if err != nil {
			return target{}, err
		}
		spec.AvailabilityZones = zones
	}

	t := target{spec: spec}
	if spec.TargetGroupNames != nil {
		arns, err := r.resolveTargetGroups(ctx, spec.TargetGroupNames)
		if err != nil {
			return target{}, err
		}
		t.targetGroupARNs = arns
	}
	return t, nil
}

func hasLaunchConfiguration(configs []group.LaunchConfiguration, name string) bool {
	for _, lc := range configs {
		if lc.Name == name {
			return true
		}
	}
	return false
}

func (r *Reconciler) resolveTargetGroups(ctx context.Context, names []string) ([]string, error) {
	arns := []string{}
	if len(names) == 0 {
		return arns, nil
	}

	var found []group.TargetGroup
	err := r.call(ctx, "describe target groups", func(ctx context.Context) error {
		var err error
		found, err = r.client.ListTargetGroupsByName(ctx, names)
		return err
	})
	if err != nil {
		return nil, err
	}

	byName := make(map[string]string, len(found))
	for _, tg := range found {
		byName[tg.Name] = tg.ARN
	}
	for _, name := range names {
		arn, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrTargetGroupNotFound, name)
		}
		arns = append(arns, arn)
	}
	return arns, nil
}

// newGroup builds the group a create call sends.
func newGroup(t target) group.Group {
	spec := t.spec
	g := group.Group{
		Name:                    spec.Name,
		LaunchConfigurationName: spec.LaunchConfigurationName,
		MinSize:                 *spec.MinSize,
		MaxSize:                 *spec.MaxSize,
		DesiredCapacity:         *spec.MinSize,
		LoadBalancerNames:       spec.LoadBalancerNames,
		TargetGroupARNs:         t.targetGroupARNs,
		AvailabilityZones:       spec.AvailabilityZones,
		VPCSubnetIDs:            spec.VPCSubnetIDs,
		Tags:                    group.TagsFor(spec.Name, spec.Tags),
	}
	if spec.DesiredCapacity != nil {
		g.DesiredCapacity = *spec.DesiredCapacity
	}
	return g
}

func (r *Reconciler) create(ctx context.Context, desired target, result group.Result) (group.Result, error) {
	g := newGroup(desired)
	plan := group.Plan{
		Name:    g.Name,
		State:   group.StatePresent,
		Action:  group.ActionCreated,
		Desired: &g,
		DryRun:  r.dryRun,
	}
	if err := r.check(ctx, plan); err != nil {
		return result, err
	}

	if r.dryRun {
		r.record(journal.EntrySkipped, g.Name, plan)
	} else {
		err := r.execute(ctx, g.Name, "create group", g, func(ctx context.Context) error {
			return r.client.CreateGroup(ctx, g)
		})
		if err != nil {
			return result, err
		}
	}

	result.Changed = true
	result.Action = group.ActionCreated
	return result, nil
}

func (r *Reconciler) update(ctx context.Context, desired target, current group.Group, result group.Result) (group.Result, error) {
	staged, changes := stageChanges(desired, current)
	if len(changes) == 0 {
		r.logger.WithContext(ctx).Debug().Str("group", current.Name).Msg("group already matches")
		return result, nil
	}

	plan := group.Plan{
		Name:    current.Name,
		State:   group.StatePresent,
		Action:  group.ActionUpdated,
		Current: &current,
		Desired: &staged,
		Changes: changes,
		DryRun:  r.dryRun,
	}
	if err := r.check(ctx, plan); err != nil {
		return result, err
	}

	if r.dryRun {
		r.record(journal.EntrySkipped, current.Name, plan)
	} else {
		err := r.execute(ctx, current.Name, "update group", changes, func(ctx context.Context) error {
			return r.client.UpdateGroup(ctx, current, staged)
		})
		if err != nil {
			return result, err
		}
	}

	result.Changed = true
	result.Action = group.ActionUpdated
	result.Changes = changes
	return result, nil
}
