package reconciler

import (
	"github.com/yairfalse/converge/pkg/group"
)

// field compares one desired value against the staged group. When they
// differ it writes the desired value onto staged and reports the change.
// A value that was not supplied never differs.
type field struct {
	name  string
	stage func(desired target, staged *group.Group) (change group.Change, differs bool)
}

// comparedFields is the ordered set of fields an update reconciles.
// Tags are applied on create only.
var comparedFields = []field{
	scalarField("launch_config_name",
		func(t target) (string, bool) {
			return t.spec.LaunchConfigurationName, t.spec.LaunchConfigurationName != ""
		},
		func(g *group.Group) *string { return &g.LaunchConfigurationName },
		func(s string) string { return s },
	),
	scalarField("max_size",
		func(t target) (int32, bool) { return deref(t.spec.MaxSize) },
		func(g *group.Group) *int32 { return &g.MaxSize },
		group.FormatInt,
	),
	scalarField("min_size",
		func(t target) (int32, bool) { return deref(t.spec.MinSize) },
		func(g *group.Group) *int32 { return &g.MinSize },
		group.FormatInt,
	),
	scalarField("desired_capacity",
		func(t target) (int32, bool) { return deref(t.spec.DesiredCapacity) },
		func(g *group.Group) *int32 { return &g.DesiredCapacity },
		group.FormatInt,
	),
	listField("vpc_zone_identifier",
		func(t target) ([]string, bool) { return t.spec.VPCSubnetIDs, t.spec.VPCSubnetIDs != nil },
		func(g *group.Group) *[]string { return &g.VPCSubnetIDs },
	),
	listField("availability_zones",
		func(t target) ([]string, bool) { return t.spec.AvailabilityZones, t.spec.AvailabilityZones != nil },
		func(g *group.Group) *[]string { return &g.AvailabilityZones },
	),
	// Membership lists: an absent load balancer list means "none".
	listField("load_balancers",
		func(t target) ([]string, bool) { return t.spec.LoadBalancerNames, true },
		func(g *group.Group) *[]string { return &g.LoadBalancerNames },
	),
	listField("target_groups",
		func(t target) ([]string, bool) { return t.targetGroupARNs, t.targetGroupARNs != nil },
		func(g *group.Group) *[]string { return &g.TargetGroupARNs },
	),
}

func scalarField[T comparable](name string, want func(target) (T, bool), have func(*group.Group) *T, format func(T) string) field {
	return field{
		name: name,
		stage: func(desired target, staged *group.Group) (group.Change, bool) {
			w, ok := want(desired)
			if !ok {
				return group.Change{}, false
			}
			h := have(staged)
			if *h == w {
				return group.Change{}, false
			}
			change := group.Change{Previous: format(*h), Current: format(w)}
			*h = w
			return change, true
		},
	}
}

func listField(name string, want func(target) ([]string, bool), have func(*group.Group) *[]string) field {
	return field{
		name: name,
		stage: func(desired target, staged *group.Group) (group.Change, bool) {
			w, ok := want(desired)
			if !ok {
				return group.Change{}, false
			}
			h := have(staged)
			if group.SameSet(*h, w) {
				return group.Change{}, false
			}
			change := group.Change{Previous: group.FormatList(*h), Current: group.FormatList(w)}
			*h = append([]string{}, w...)
			return change, true
		},
	}
}

// stageChanges applies every differing field of desired onto a clone of
// current. The returned map is empty when nothing differs.
func stageChanges(desired target, current group.Group) (group.Group, map[string]group.Change) {
	staged := current.Clone()
	changes := make(map[string]group.Change)
	for _, f := range comparedFields {
		if change, differs := f.stage(desired, &staged); differs {
			changes[f.name] = change
		}
	}
	return staged, changes
}

func deref(v *int32) (int32, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}
