// Package reconciler converges one autoscaling group to a desired state.
package reconciler

import (
	"context"

	"github.com/yairfalse/converge/internal/journal"
	"github.com/yairfalse/converge/pkg/group"
)

// Client is the remote API the reconciler drives. Implementations wrap a
// cloud SDK with credentials and region already resolved.
type Client interface {
	// ListGroupsByName returns the groups whose name is in names.
	ListGroupsByName(ctx context.Context, names []string) ([]group.Group, error)

	// ListAllGroups returns every group in the region.
	ListAllGroups(ctx context.Context) ([]group.Group, error)

	// ListLaunchConfigurationsByName returns the named launch configurations.
	ListLaunchConfigurationsByName(ctx context.Context, names []string) ([]group.LaunchConfiguration, error)

	// ListAvailabilityZones returns the names of the region's zones.
	ListAvailabilityZones(ctx context.Context) ([]string, error)

	// ListTargetGroupsByName returns the named load balancer target groups.
	ListTargetGroupsByName(ctx context.Context, names []string) ([]group.TargetGroup, error)

	CreateGroup(ctx context.Context, g group.Group) error

	// UpdateGroup writes every field of staged onto the existing group.
	// current is the snapshot staged was derived from; a desired capacity
	// staged left unchanged may be omitted from the request.
	UpdateGroup(ctx context.Context, current, staged group.Group) error

	// ShutdownAllInstances asks the group to terminate all members.
	// It does not wait.
	ShutdownAllInstances(ctx context.Context, g group.Group) error

	DeleteGroup(ctx context.Context, g group.Group) error
}

// Journal receives an audit record of each step.
type Journal interface {
	Append(entryType journal.EntryType, group string, data any) error
	AppendError(entryType journal.EntryType, group string, data any, err error) error
}

// Guard may veto a planned mutation by returning an error.
type Guard interface {
	Check(ctx context.Context, plan group.Plan) error
}
