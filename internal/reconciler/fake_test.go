package reconciler

import (
	"context"
	"sync"

	"github.com/yairfalse/converge/internal/journal"
	"github.com/yairfalse/converge/pkg/group"
)

// fakeClient records every call and serves canned state.
type fakeClient struct {
	mu sync.Mutex

	groups        []group.Group
	launchConfigs []group.LaunchConfiguration
	zones         []string
	targetGroups  []group.TargetGroup

	// drainSequence is served by successive ListAllGroups calls. The last
	// element repeats once the sequence is exhausted.
	drainSequence [][]group.Group

	errs map[string]error

	calls   []string
	created []group.Group
	updated []update
	shut    []group.Group
	deleted []group.Group
}

type update struct {
	current group.Group
	staged  group.Group
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		launchConfigs: []group.LaunchConfiguration{{Name: "lc-1"}, {Name: "lc-2"}},
		zones:         []string{"us-east-1a", "us-east-1b"},
		errs:          make(map[string]error),
	}
}

func (f *fakeClient) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.errs[call]
}

func (f *fakeClient) ListGroupsByName(ctx context.Context, names []string) ([]group.Group, error) {
	if err := f.record("ListGroupsByName"); err != nil {
		return nil, err
	}
	var out []group.Group
	for _, g := range f.groups {
		for _, n := range names {
			if g.Name == n {
				out = append(out, g.Clone())
			}
		}
	}
	return out, nil
}

func (f *fakeClient) ListAllGroups(ctx context.Context) ([]group.Group, error) {
	if err := f.record("ListAllGroups"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.drainSequence) == 0 {
		return f.groups, nil
	}
	next := f.drainSequence[0]
	if len(f.drainSequence) > 1 {
		f.drainSequence = f.drainSequence[1:]
	}
	return next, nil
}

func (f *fakeClient) ListLaunchConfigurationsByName(ctx context.Context, names []string) ([]group.LaunchConfiguration, error) {
	if err := f.record("ListLaunchConfigurationsByName"); err != nil {
		return nil, err
	}
	var out []group.LaunchConfiguration
	for _, lc := range f.launchConfigs {
		for _, n := range names {
			if lc.Name == n {
				out = append(out, lc)
			}
		}
	}
	return out, nil
}

func (f *fakeClient) ListAvailabilityZones(ctx context.Context) ([]string, error) {
	if err := f.record("ListAvailabilityZones"); err != nil {
		return nil, err
	}
	return f.zones, nil
}

func (f *fakeClient) ListTargetGroupsByName(ctx context.Context, names []string) ([]group.TargetGroup, error) {
	if err := f.record("ListTargetGroupsByName"); err != nil {
		return nil, err
	}
	var out []group.TargetGroup
	for _, tg := range f.targetGroups {
		for _, n := range names {
			if tg.Name == n {
				out = append(out, tg)
			}
		}
	}
	return out, nil
}

func (f *fakeClient) CreateGroup(ctx context.Context, g group.Group) error {
	if err := f.record("CreateGroup"); err != nil {
		return err
	}
	f.created = append(f.created, g)
	return nil
}

func (f *fakeClient) UpdateGroup(ctx context.Context, current, staged group.Group) error {
	if err := f.record("UpdateGroup"); err != nil {
		return err
	}
	f.updated = append(f.updated, update{current: current, staged: staged})
	return nil
}

func (f *fakeClient) ShutdownAllInstances(ctx context.Context, g group.Group) error {
	if err := f.record("ShutdownAllInstances"); err != nil {
		return err
	}
	f.shut = append(f.shut, g)
	return nil
}

func (f *fakeClient) DeleteGroup(ctx context.Context, g group.Group) error {
	if err := f.record("DeleteGroup"); err != nil {
		return err
	}
	f.deleted = append(f.deleted, g)
	return nil
}

func (f *fakeClient) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeClient) writes() int {
	return f.count("CreateGroup") + f.count("UpdateGroup") + f.count("ShutdownAllInstances") + f.count("DeleteGroup")
}

// memJournal keeps entries in memory.
type memJournal struct {
	types []journal.EntryType
}

func (m *memJournal) Append(entryType journal.EntryType, group string, data any) error {
	m.types = append(m.types, entryType)
	return nil
}

func (m *memJournal) AppendError(entryType journal.EntryType, group string, data any, err error) error {
	m.types = append(m.types, entryType)
	return nil
}

type guardFunc func(ctx context.Context, plan group.Plan) error

func (g guardFunc) Check(ctx context.Context, plan group.Plan) error {
	return g(ctx, plan)
}

func int32Ptr(v int32) *int32 {
	return &v
}

func existingGroup() group.Group {
	return group.Group{
		Name:                    "web",
		LaunchConfigurationName: "lc-1",
		MinSize:                 1,
		MaxSize:                 3,
		DesiredCapacity:         2,
		LoadBalancerNames:       []string{"lb-a"},
		AvailabilityZones:       []string{"us-east-1a", "us-east-1b"},
		Instances: []group.Instance{
			{ID: "i-1", LifecycleState: "InService"},
			{ID: "i-2", LifecycleState: "InService"},
		},
	}
}

func matchingSpec() group.Spec {
	return group.Spec{
		Name:                    "web",
		State:                   group.StatePresent,
		LaunchConfigurationName: "lc-1",
		MinSize:                 int32Ptr(1),
		MaxSize:                 int32Ptr(3),
		DesiredCapacity:         int32Ptr(2),
		LoadBalancerNames:       []string{"lb-a"},
		AvailabilityZones:       []string{"us-east-1b", "us-east-1a"},
	}
}
