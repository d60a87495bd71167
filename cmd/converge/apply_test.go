package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/converge/internal/config"
	"github.com/yairfalse/converge/internal/history"
	"github.com/yairfalse/converge/internal/journal"
	"github.com/yairfalse/converge/internal/provider/aws"
	"github.com/yairfalse/converge/internal/reconciler"
	"github.com/yairfalse/converge/pkg/group"
)

// memClient is an in-memory region.
type memClient struct {
	groups    map[string]group.Group
	createErr error
	created   int
	updated   int
	deleted   int
}

func (m *memClient) ListGroupsByName(_ context.Context, names []string) ([]group.Group, error) {
	var out []group.Group
	for _, n := range names {
		if g, ok := m.groups[n]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memClient) ListAllGroups(context.Context) ([]group.Group, error) {
	var out []group.Group
	for _, g := range m.groups {
		out = append(out, g)
	}
	return out, nil
}

func (m *memClient) ListLaunchConfigurationsByName(_ context.Context, names []string) ([]group.LaunchConfiguration, error) {
	out := make([]group.LaunchConfiguration, 0, len(names))
	for _, n := range names {
		out = append(out, group.LaunchConfiguration{Name: n})
	}
	return out, nil
}

func (m *memClient) ListAvailabilityZones(context.Context) ([]string, error) {
	return []string{"us-east-1a"}, nil
}

func (m *memClient) ListTargetGroupsByName(context.Context, []string) ([]group.TargetGroup, error) {
	return nil, nil
}

func (m *memClient) CreateGroup(_ context.Context, g group.Group) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created++
	m.groups[g.Name] = g
	return nil
}

func (m *memClient) UpdateGroup(_ context.Context, _, staged group.Group) error {
	m.updated++
	m.groups[staged.Name] = staged
	return nil
}

func (m *memClient) ShutdownAllInstances(_ context.Context, g group.Group) error {
	g.Instances = nil
	m.groups[g.Name] = g
	return nil
}

func (m *memClient) DeleteGroup(_ context.Context, g group.Group) error {
	m.deleted++
	delete(m.groups, g.Name)
	return nil
}

func useClient(t *testing.T, c reconciler.Client) {
	t.Helper()
	orig := newClient
	newClient = func(context.Context, aws.Config) (reconciler.Client, error) { return c, nil }
	t.Cleanup(func() { newClient = orig })
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Journal.Dir = filepath.Join(dir, "journal")
	cfg.History.Path = filepath.Join(dir, "history.db")
	return cfg
}

const webParams = `
name: web
launch_config_name: lc-1
min_size: 1
max_size: 3
asg_tags:
  env: prod
`

func TestApply_CreateThenNoop(t *testing.T) {
	client := &memClient{groups: map[string]group.Group{}}
	useClient(t, client)
	cfg := testConfig(t)

	report := apply(context.Background(), cfg, applyOptions{paramsFile: "-"}, strings.NewReader(webParams))
	require.False(t, report.Failed, report.Msg)
	assert.True(t, report.Changed)
	assert.Equal(t, group.ActionCreated, report.Action)
	assert.Equal(t, 1, client.created)

	report = apply(context.Background(), cfg, applyOptions{paramsFile: "-"}, strings.NewReader(webParams))
	require.False(t, report.Failed, report.Msg)
	assert.False(t, report.Changed)
	assert.Equal(t, 1, client.created)
	assert.Equal(t, 0, client.updated)

	store, err := history.Open(cfg.History.Path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	state, err := store.Get("web")
	require.NoError(t, err)
	assert.Equal(t, 2, state.Runs)
	assert.True(t, state.Exists)

	var types []journal.EntryType
	require.NoError(t, journal.Replay(cfg.Journal.Dir, time.Time{}, func(e *journal.Entry) error {
		types = append(types, e.Type)
		return nil
	}))
	assert.Contains(t, types, journal.EntryExecuted)
}

func TestApply_HistoryKeep(t *testing.T) {
	client := &memClient{groups: map[string]group.Group{}}
	useClient(t, client)
	cfg := testConfig(t)
	cfg.History.Keep = 1

	for i := 0; i < 2; i++ {
		report := apply(context.Background(), cfg, applyOptions{paramsFile: "-"}, strings.NewReader(webParams))
		require.False(t, report.Failed, report.Msg)
	}

	store, err := history.Open(cfg.History.Path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	runs, err := store.Runs("web", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].Changed)
}

func TestApply_CheckModeAbsent(t *testing.T) {
	client := &memClient{groups: map[string]group.Group{
		"web": {Name: "web", LaunchConfigurationName: "lc-1"},
	}}
	useClient(t, client)

	opts := applyOptions{paramsFile: "-", check: true, state: "absent"}
	report := apply(context.Background(), testConfig(t), opts, strings.NewReader(webParams))

	require.False(t, report.Failed, report.Msg)
	assert.True(t, report.Changed)
	assert.True(t, report.CheckMode)
	assert.Equal(t, group.ActionDeleted, report.Action)
	assert.Equal(t, 0, client.deleted)
	assert.Contains(t, client.groups, "web")
}

func TestApply_Absent(t *testing.T) {
	client := &memClient{groups: map[string]group.Group{
		"web": {Name: "web", Instances: []group.Instance{{ID: "i-1"}}},
	}}
	useClient(t, client)

	opts := applyOptions{paramsFile: "-", state: "absent"}
	report := apply(context.Background(), testConfig(t), opts, strings.NewReader("name: web\n"))

	require.False(t, report.Failed, report.Msg)
	assert.True(t, report.Changed)
	assert.Equal(t, 1, client.deleted)
	assert.NotContains(t, client.groups, "web")
}

func TestApply_ValidationFailure(t *testing.T) {
	client := &memClient{groups: map[string]group.Group{}}
	useClient(t, client)

	dialed := 0
	orig := newClient
	newClient = func(context.Context, aws.Config) (reconciler.Client, error) {
		dialed++
		return client, nil
	}
	t.Cleanup(func() { newClient = orig })

	report := apply(context.Background(), testConfig(t), applyOptions{paramsFile: "-"}, strings.NewReader("name: web\nmin_size: 1\n"))

	assert.True(t, report.Failed)
	assert.Equal(t, "Missing required arguments for autoscaling group create/update: max_size,launch_config_name", report.Msg)
	assert.Equal(t, 0, client.created)
	assert.Equal(t, 0, dialed)
}

func TestApply_CreateFailureReportsUnchanged(t *testing.T) {
	client := &memClient{groups: map[string]group.Group{}, createErr: errors.New("LimitExceeded: too many groups")}
	useClient(t, client)

	report := apply(context.Background(), testConfig(t), applyOptions{paramsFile: "-"}, strings.NewReader(webParams))

	assert.True(t, report.Failed)
	assert.False(t, report.Changed)
	assert.Empty(t, report.Action)
	assert.Contains(t, report.Msg, "LimitExceeded")
}

func TestApply_PolicyDenied(t *testing.T) {
	client := &memClient{groups: map[string]group.Group{}}
	useClient(t, client)

	cfg := testConfig(t)
	cfg.Policy.Dir = t.TempDir()
	policy := `package converge

import rego.v1

deny contains "creates are frozen" if {
	input.plan.action == "created"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Policy.Dir, "freeze.rego"), []byte(policy), 0o600))

	report := apply(context.Background(), cfg, applyOptions{paramsFile: "-"}, strings.NewReader(webParams))

	assert.True(t, report.Failed)
	assert.Contains(t, report.Msg, "creates are frozen")
	assert.Equal(t, 0, client.created)
}

func TestApply_MissingFile(t *testing.T) {
	report := apply(context.Background(), testConfig(t), applyOptions{paramsFile: filepath.Join(t.TempDir(), "nope.yaml")}, nil)
	assert.True(t, report.Failed)
	assert.Contains(t, report.Msg, "open parameters")
}

func TestPrintRuns(t *testing.T) {
	var buf bytes.Buffer
	err := printRuns(&buf, []history.Run{
		{Revision: 2, Name: "web", State: group.StatePresent, Action: group.ActionUpdated, Changed: true,
			Changes: map[string]group.Change{"max_size": {Previous: "3", Current: "5"}}},
		{Revision: 1, Name: "web", State: group.StatePresent, Action: group.ActionCreated, Changed: true},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "REV")
	assert.Contains(t, out, "max_size: 3 -> 5")
	assert.Contains(t, out, "created")
}

func TestPrintGroups_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printGroups(&buf, nil))
	assert.Equal(t, "no runs recorded\n", buf.String())
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
