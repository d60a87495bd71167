// Package group defines the autoscaling group model used by converge.
package group

import (
	"slices"
	"time"
)

// State is the disposition requested for a group.
type State string

const (
	StatePresent State = "present"
	StateAbsent  State = "absent"
)

// Valid reports whether s is a known disposition.
func (s State) Valid() bool {
	return s == StatePresent || s == StateAbsent
}

// Spec is the caller supplied desired state of one group.
// Nil pointers and nil slices mean "not supplied".
type Spec struct {
	Name                    string            `json:"name" yaml:"name"`
	State                   State             `json:"state" yaml:"state"`
	LaunchConfigurationName string            `json:"launch_config_name,omitempty" yaml:"launch_config_name,omitempty"`
	MinSize                 *int32            `json:"min_size,omitempty" yaml:"min_size,omitempty"`
	MaxSize                 *int32            `json:"max_size,omitempty" yaml:"max_size,omitempty"`
	DesiredCapacity         *int32            `json:"desired_capacity,omitempty" yaml:"desired_capacity,omitempty"`
	LoadBalancerNames       []string          `json:"load_balancers,omitempty" yaml:"load_balancers,omitempty"`
	TargetGroupNames        []string          `json:"target_groups,omitempty" yaml:"target_groups,omitempty"`
	AvailabilityZones       []string          `json:"availability_zones,omitempty" yaml:"availability_zones,omitempty"`
	VPCSubnetIDs            []string          `json:"vpc_subnet_ids,omitempty" yaml:"vpc_subnet_ids,omitempty"`
	Tags                    map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Group is the provider's view of an autoscaling group.
type Group struct {
	Name                    string     `json:"name"`
	ARN                     string     `json:"arn,omitempty"`
	LaunchConfigurationName string     `json:"launch_config_name"`
	MinSize                 int32      `json:"min_size"`
	MaxSize                 int32      `json:"max_size"`
	DesiredCapacity         int32      `json:"desired_capacity"`
	LoadBalancerNames       []string   `json:"load_balancers,omitempty"`
	TargetGroupARNs         []string   `json:"target_group_arns,omitempty"`
	AvailabilityZones       []string   `json:"availability_zones,omitempty"`
	VPCSubnetIDs            []string   `json:"vpc_subnet_ids,omitempty"`
	Tags                    []Tag      `json:"tags,omitempty"`
	Instances               []Instance `json:"instances,omitempty"`
	Status                  string     `json:"status,omitempty"`
	CreatedTime             time.Time  `json:"created_time,omitempty"`
}

// Clone returns a deep copy of g.
func (g Group) Clone() Group {
	c := g
	c.LoadBalancerNames = cloneStrings(g.LoadBalancerNames)
	c.TargetGroupARNs = cloneStrings(g.TargetGroupARNs)
	c.AvailabilityZones = cloneStrings(g.AvailabilityZones)
	c.VPCSubnetIDs = cloneStrings(g.VPCSubnetIDs)
	if g.Tags != nil {
		c.Tags = append([]Tag(nil), g.Tags...)
	}
	if g.Instances != nil {
		c.Instances = append([]Instance(nil), g.Instances...)
	}
	return c
}

// Drained reports whether the group has no member instances left.
func (g Group) Drained() bool {
	return len(g.Instances) == 0
}

// Tag is a group tag. PropagateAtLaunch copies it onto new members.
type Tag struct {
	Key               string `json:"key"`
	Value             string `json:"value"`
	PropagateAtLaunch bool   `json:"propagate_at_launch"`
	ResourceID        string `json:"resource_id"`
}

// Instance is a current member of a group.
type Instance struct {
	ID               string `json:"id"`
	AvailabilityZone string `json:"availability_zone,omitempty"`
	LifecycleState   string `json:"lifecycle_state,omitempty"`
	HealthStatus     string `json:"health_status,omitempty"`
}

// LaunchConfiguration is a named member template.
type LaunchConfiguration struct {
	Name         string `json:"name"`
	ARN          string `json:"arn,omitempty"`
	ImageID      string `json:"image_id,omitempty"`
	InstanceType string `json:"instance_type,omitempty"`
}

// TargetGroup is a load balancer target group.
type TargetGroup struct {
	Name string `json:"name"`
	ARN  string `json:"arn"`
}

// TagsFor materializes a key/value mapping into propagate-at-launch tags
// scoped to the named group. Keys are emitted in sorted order.
func TagsFor(name string, tags map[string]string) []Tag {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]Tag, 0, len(keys))
	for _, k := range keys {
		out = append(out, Tag{
			Key:               k,
			Value:             tags[k],
			PropagateAtLaunch: true,
			ResourceID:        name,
		})
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
