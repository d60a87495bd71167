package aws

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/converge/pkg/group"
)

// ListGroupsByName returns the groups whose name exactly matches one of names.
func (c *Client) ListGroupsByName(ctx context.Context, names []string) ([]group.Group, error) {
	groups, err := c.describeGroups(ctx, names)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	matched := groups[:0]
	for _, g := range groups {
		if wanted[g.Name] {
			matched = append(matched, g)
		}
	}
	return matched, nil
}

// ListAllGroups returns every group in the region.
func (c *Client) ListAllGroups(ctx context.Context) ([]group.Group, error) {
	return c.describeGroups(ctx, nil)
}

func (c *Client) describeGroups(ctx context.Context, names []string) ([]group.Group, error) {
	var groups []group.Group
	var nextToken *string

	for {
		output, err := c.asgClient.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
			AutoScalingGroupNames: names,
			NextToken:             nextToken,
		})
		if err != nil {
			return nil, wrap("describe auto scaling groups", err)
		}

		for _, asg := range output.AutoScalingGroups {
			groups = append(groups, convertGroup(asg))
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return groups, nil
}

// ListLaunchConfigurationsByName returns the named launch configurations.
func (c *Client) ListLaunchConfigurationsByName(ctx context.Context, names []string) ([]group.LaunchConfiguration, error) {
	var configs []group.LaunchConfiguration
	var nextToken *string

	for {
		output, err := c.asgClient.DescribeLaunchConfigurations(ctx, &autoscaling.DescribeLaunchConfigurationsInput{
			LaunchConfigurationNames: names,
			NextToken:                nextToken,
		})
		if err != nil {
			return nil, wrap("describe launch configurations", err)
		}

		for _, lc := range output.LaunchConfigurations {
			configs = append(configs, group.LaunchConfiguration{
				Name:         aws.ToString(lc.LaunchConfigurationName),
				ARN:          aws.ToString(lc.LaunchConfigurationARN),
				ImageID:      aws.ToString(lc.ImageId),
				InstanceType: aws.ToString(lc.InstanceType),
			})
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return configs, nil
}

// ListAvailabilityZones returns every zone name of the region.
func (c *Client) ListAvailabilityZones(ctx context.Context) ([]string, error) {
	output, err := c.ec2Client.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{})
	if err != nil {
		return nil, wrap("describe availability zones", err)
	}

	zones := make([]string, 0, len(output.AvailabilityZones))
	for _, az := range output.AvailabilityZones {
		zones = append(zones, aws.ToString(az.ZoneName))
	}
	return zones, nil
}

// ListTargetGroupsByName returns the named target groups. Unknown names
// are simply absent from the result.
func (c *Client) ListTargetGroupsByName(ctx context.Context, names []string) ([]group.TargetGroup, error) {
	var groups []group.TargetGroup
	var marker *string

	for {
		output, err := c.elbClient.DescribeTargetGroups(ctx, &elasticloadbalancingv2.DescribeTargetGroupsInput{
			Names:  names,
			Marker: marker,
		})
		if err != nil {
			var notFound *elbtypes.TargetGroupNotFoundException
			if errors.As(err, &notFound) {
				log.Debug().Strs("names", names).Msg("target groups not found")
				return nil, nil
			}
			return nil, wrap("describe target groups", err)
		}

		for _, tg := range output.TargetGroups {
			groups = append(groups, group.TargetGroup{
				Name: aws.ToString(tg.TargetGroupName),
				ARN:  aws.ToString(tg.TargetGroupArn),
			})
		}

		if output.NextMarker == nil {
			break
		}
		marker = output.NextMarker
	}

	return groups, nil
}

// splitSubnets parses a VPCZoneIdentifier.
func splitSubnets(identifier string) []string {
	var subnets []string
	for _, s := range strings.Split(identifier, ",") {
		if s = strings.TrimSpace(s); s != "" {
			subnets = append(subnets, s)
		}
	}
	return subnets
}

func joinSubnets(subnets []string) *string {
	if len(subnets) == 0 {
		return nil
	}
	return aws.String(strings.Join(subnets, ","))
}
