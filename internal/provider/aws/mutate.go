package aws

import (
	"context"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/converge/pkg/group"
)

// CreateGroup creates g with its tags.
func (c *Client) CreateGroup(ctx context.Context, g group.Group) error {
	input := &autoscaling.CreateAutoScalingGroupInput{
		AutoScalingGroupName:    aws.String(g.Name),
		LaunchConfigurationName: aws.String(g.LaunchConfigurationName),
		MinSize:                 aws.Int32(g.MinSize),
		MaxSize:                 aws.Int32(g.MaxSize),
		DesiredCapacity:         aws.Int32(g.DesiredCapacity),
		LoadBalancerNames:       g.LoadBalancerNames,
		TargetGroupARNs:         g.TargetGroupARNs,
		AvailabilityZones:       g.AvailabilityZones,
		VPCZoneIdentifier:       joinSubnets(g.VPCSubnetIDs),
		Tags:                    toASGTags(g.Tags),
	}
	if _, err := c.asgClient.CreateAutoScalingGroup(ctx, input); err != nil {
		return wrap("create auto scaling group", err)
	}

	log.Info().
		Str("group", g.Name).
		Str("region", c.region).
		Int32("min_size", g.MinSize).
		Int32("max_size", g.MaxSize).
		Msg("created auto scaling group")
	return nil
}

// UpdateGroup writes all scalar and placement fields of staged, then
// reconciles load balancer and target group membership against current.
// DesiredCapacity is sent only when staged moves it; otherwise AWS keeps
// it within the new size bounds.
func (c *Client) UpdateGroup(ctx context.Context, current, staged group.Group) error {
	input := &autoscaling.UpdateAutoScalingGroupInput{
		AutoScalingGroupName:    aws.String(staged.Name),
		LaunchConfigurationName: aws.String(staged.LaunchConfigurationName),
		MinSize:                 aws.Int32(staged.MinSize),
		MaxSize:                 aws.Int32(staged.MaxSize),
		VPCZoneIdentifier:       joinSubnets(staged.VPCSubnetIDs),
	}
	if staged.DesiredCapacity != current.DesiredCapacity {
		input.DesiredCapacity = aws.Int32(staged.DesiredCapacity)
	}
	if len(staged.AvailabilityZones) > 0 {
		input.AvailabilityZones = staged.AvailabilityZones
	}
	if _, err := c.asgClient.UpdateAutoScalingGroup(ctx, input); err != nil {
		return wrap("update auto scaling group", err)
	}

	if err := c.syncLoadBalancers(ctx, staged.Name, current.LoadBalancerNames, staged.LoadBalancerNames); err != nil {
		return err
	}
	if err := c.syncTargetGroups(ctx, staged.Name, current.TargetGroupARNs, staged.TargetGroupARNs); err != nil {
		return err
	}

	log.Info().Str("group", staged.Name).Str("region", c.region).Msg("updated auto scaling group")
	return nil
}

func (c *Client) syncLoadBalancers(ctx context.Context, name string, current, desired []string) error {
	if removed := missingFrom(desired, current); len(removed) > 0 {
		_, err := c.asgClient.DetachLoadBalancers(ctx, &autoscaling.DetachLoadBalancersInput{
			AutoScalingGroupName: aws.String(name),
			LoadBalancerNames:    removed,
		})
		if err != nil {
			return wrap("detach load balancers", err)
		}
	}
	if added := missingFrom(current, desired); len(added) > 0 {
		_, err := c.asgClient.AttachLoadBalancers(ctx, &autoscaling.AttachLoadBalancersInput{
			AutoScalingGroupName: aws.String(name),
			LoadBalancerNames:    added,
		})
		if err != nil {
			return wrap("attach load balancers", err)
		}
	}
	return nil
}

func (c *Client) syncTargetGroups(ctx context.Context, name string, current, desired []string) error {
	if removed := missingFrom(desired, current); len(removed) > 0 {
		_, err := c.asgClient.DetachLoadBalancerTargetGroups(ctx, &autoscaling.DetachLoadBalancerTargetGroupsInput{
			AutoScalingGroupName: aws.String(name),
			TargetGroupARNs:      removed,
		})
		if err != nil {
			return wrap("detach target groups", err)
		}
	}
	if added := missingFrom(current, desired); len(added) > 0 {
		_, err := c.asgClient.AttachLoadBalancerTargetGroups(ctx, &autoscaling.AttachLoadBalancerTargetGroupsInput{
			AutoScalingGroupName: aws.String(name),
			TargetGroupARNs:      added,
		})
		if err != nil {
			return wrap("attach target groups", err)
		}
	}
	return nil
}

// missingFrom returns the members of items that set does not contain.
func missingFrom(set, items []string) []string {
	var out []string
	for _, item := range items {
		if item != "" && !slices.Contains(set, item) && !slices.Contains(out, item) {
			out = append(out, item)
		}
	}
	return out
}

// ShutdownAllInstances scales the group to zero.
func (c *Client) ShutdownAllInstances(ctx context.Context, g group.Group) error {
	_, err := c.asgClient.UpdateAutoScalingGroup(ctx, &autoscaling.UpdateAutoScalingGroupInput{
		AutoScalingGroupName: aws.String(g.Name),
		MinSize:              aws.Int32(0),
		MaxSize:              aws.Int32(0),
		DesiredCapacity:      aws.Int32(0),
	})
	if err != nil {
		return wrap("scale auto scaling group to zero", err)
	}

	log.Info().
		Str("group", g.Name).
		Int("instances", len(g.Instances)).
		Msg("scaling auto scaling group to zero")
	return nil
}

// DeleteGroup deletes an empty group.
func (c *Client) DeleteGroup(ctx context.Context, g group.Group) error {
	_, err := c.asgClient.DeleteAutoScalingGroup(ctx, &autoscaling.DeleteAutoScalingGroupInput{
		AutoScalingGroupName: aws.String(g.Name),
		ForceDelete:          aws.Bool(false),
	})
	if err != nil {
		return wrap("delete auto scaling group", err)
	}

	log.Info().Str("group", g.Name).Str("region", c.region).Msg("deleted auto scaling group")
	return nil
}
