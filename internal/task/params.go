// Package task decodes invocation parameters and renders the outcome report.
package task

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yairfalse/converge/internal/reconciler"
	"github.com/yairfalse/converge/pkg/group"
)

// Params are the invocation parameters. YAML and JSON are both accepted.
type Params struct {
	Name              string            `yaml:"name"`
	State             string            `yaml:"state"`
	LoadBalancers     []string          `yaml:"load_balancers"`
	TargetGroups      []string          `yaml:"target_groups"`
	AvailabilityZones []string          `yaml:"availability_zones"`
	LaunchConfigName  string            `yaml:"launch_config_name"`
	MinSize           *int64            `yaml:"min_size"`
	MaxSize           *int64            `yaml:"max_size"`
	DesiredCapacity   *int64            `yaml:"desired_capacity"`
	VPCZoneIdentifier string            `yaml:"vpc_zone_identifier"`
	ASGTags           map[string]string `yaml:"asg_tags"`
	Region            string            `yaml:"region"`
	Profile           string            `yaml:"profile"`
}

// Load decodes parameters from r. Unknown keys are rejected.
func Load(r io.Reader) (*Params, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Params
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse parameters: empty document")
		}
		return nil, fmt.Errorf("parse parameters: %w", err)
	}
	return &p, nil
}

// Spec converts the parameters to a desired group state. State defaults
// to present.
func (p *Params) Spec() (group.Spec, error) {
	state := group.State(strings.TrimSpace(p.State))
	if state == "" {
		state = group.StatePresent
	}
	if !state.Valid() {
		return group.Spec{}, &reconciler.ValidationError{
			Reason: fmt.Sprintf("value of state must be one of: present, absent, got: %s", p.State),
		}
	}

	spec := group.Spec{
		Name:                    strings.TrimSpace(p.Name),
		State:                   state,
		LaunchConfigurationName: p.LaunchConfigName,
		LoadBalancerNames:       p.LoadBalancers,
		TargetGroupNames:        p.TargetGroups,
		AvailabilityZones:       p.AvailabilityZones,
		VPCSubnetIDs:            ParseSubnets(p.VPCZoneIdentifier),
		Tags:                    p.ASGTags,
	}
	if spec.Name == "" {
		return group.Spec{}, &reconciler.ValidationError{Missing: []string{"name"}}
	}

	var err error
	if spec.MinSize, err = capacity("min_size", p.MinSize); err != nil {
		return group.Spec{}, err
	}
	if spec.MaxSize, err = capacity("max_size", p.MaxSize); err != nil {
		return group.Spec{}, err
	}
	if spec.DesiredCapacity, err = capacity("desired_capacity", p.DesiredCapacity); err != nil {
		return group.Spec{}, err
	}
	return spec, nil
}

func capacity(name string, v *int64) (*int32, error) {
	if v == nil {
		return nil, nil
	}
	if *v < 0 || *v > math.MaxInt32 {
		return nil, &reconciler.ValidationError{
			Reason: fmt.Sprintf("%s must be between 0 and %d, got %d", name, math.MaxInt32, *v),
		}
	}
	n := int32(*v)
	return &n, nil
}

// ParseSubnets splits a comma joined subnet list. Whitespace is trimmed and
// empty segments are dropped; nil means no subnets were given.
func ParseSubnets(identifier string) []string {
	var subnets []string
	for _, s := range strings.Split(identifier, ",") {
		if s = strings.TrimSpace(s); s != "" {
			subnets = append(subnets, s)
		}
	}
	return subnets
}
