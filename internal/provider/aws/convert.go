package aws

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"

	"github.com/yairfalse/converge/pkg/group"
)

const groupResourceType = "auto-scaling-group"

func convertGroup(asg asgtypes.AutoScalingGroup) group.Group {
	return group.Group{
		Name:                    aws.ToString(asg.AutoScalingGroupName),
		ARN:                     aws.ToString(asg.AutoScalingGroupARN),
		LaunchConfigurationName: aws.ToString(asg.LaunchConfigurationName),
		MinSize:                 aws.ToInt32(asg.MinSize),
		MaxSize:                 aws.ToInt32(asg.MaxSize),
		DesiredCapacity:         aws.ToInt32(asg.DesiredCapacity),
		LoadBalancerNames:       asg.LoadBalancerNames,
		TargetGroupARNs:         asg.TargetGroupARNs,
		AvailabilityZones:       asg.AvailabilityZones,
		VPCSubnetIDs:            splitSubnets(aws.ToString(asg.VPCZoneIdentifier)),
		Tags:                    convertTags(asg.Tags),
		Instances:               convertInstances(asg.Instances),
		Status:                  aws.ToString(asg.Status),
		CreatedTime:             aws.ToTime(asg.CreatedTime),
	}
}

func convertTags(tags []asgtypes.TagDescription) []group.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]group.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, group.Tag{
			Key:               aws.ToString(t.Key),
			Value:             aws.ToString(t.Value),
			PropagateAtLaunch: aws.ToBool(t.PropagateAtLaunch),
			ResourceID:        aws.ToString(t.ResourceId),
		})
	}
	return out
}

func convertInstances(instances []asgtypes.Instance) []group.Instance {
	if len(instances) == 0 {
		return nil
	}
	out := make([]group.Instance, 0, len(instances))
	for _, i := range instances {
		out = append(out, group.Instance{
			ID:               aws.ToString(i.InstanceId),
			AvailabilityZone: aws.ToString(i.AvailabilityZone),
			LifecycleState:   string(i.LifecycleState),
			HealthStatus:     aws.ToString(i.HealthStatus),
		})
	}
	return out
}

// toASGTags renders group tags for CreateAutoScalingGroup.
func toASGTags(tags []group.Tag) []asgtypes.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]asgtypes.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, asgtypes.Tag{
			Key:               aws.String(t.Key),
			Value:             aws.String(t.Value),
			PropagateAtLaunch: aws.Bool(t.PropagateAtLaunch),
			ResourceId:        aws.String(t.ResourceID),
			ResourceType:      aws.String(groupResourceType),
		})
	}
	return out
}
