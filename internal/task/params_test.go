package task

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/converge/internal/reconciler"
	"github.com/yairfalse/converge/pkg/group"
)

func TestLoad_YAML(t *testing.T) {
	input := `
name: web
launch_config_name: lc-1
min_size: 1
max_size: 4
desired_capacity: 2
load_balancers: [lb-a]
vpc_zone_identifier: "subnet-1, subnet-2,"
asg_tags:
  env: prod
region: us-east-1
`
	p, err := Load(strings.NewReader(input))
	require.NoError(t, err)

	spec, err := p.Spec()
	require.NoError(t, err)

	assert.Equal(t, "web", spec.Name)
	assert.Equal(t, group.StatePresent, spec.State)
	assert.Equal(t, "lc-1", spec.LaunchConfigurationName)
	require.NotNil(t, spec.MinSize)
	assert.Equal(t, int32(1), *spec.MinSize)
	assert.Equal(t, int32(4), *spec.MaxSize)
	assert.Equal(t, int32(2), *spec.DesiredCapacity)
	assert.Equal(t, []string{"lb-a"}, spec.LoadBalancerNames)
	assert.Equal(t, []string{"subnet-1", "subnet-2"}, spec.VPCSubnetIDs)
	assert.Nil(t, spec.AvailabilityZones)
	assert.Equal(t, map[string]string{"env": "prod"}, spec.Tags)
	assert.Equal(t, "us-east-1", p.Region)
}

func TestLoad_JSON(t *testing.T) {
	p, err := Load(strings.NewReader(`{"name": "web", "state": "absent"}`))
	require.NoError(t, err)

	spec, err := p.Spec()
	require.NoError(t, err)
	assert.Equal(t, group.StateAbsent, spec.State)
	assert.Nil(t, spec.MinSize)
	assert.Nil(t, spec.LoadBalancerNames)
}

func TestLoad_UnknownKey(t *testing.T) {
	_, err := Load(strings.NewReader("name: web\nmin_sizes: 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_sizes")
}

func TestLoad_Empty(t *testing.T) {
	_, err := Load(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty document")
}

func TestSpec_InvalidState(t *testing.T) {
	p := &Params{Name: "web", State: "running"}

	_, err := p.Spec()
	var verr *reconciler.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "running")
}

func TestSpec_MissingName(t *testing.T) {
	_, err := (&Params{}).Spec()
	var verr *reconciler.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"name"}, verr.Missing)
}

func TestSpec_CapacityRange(t *testing.T) {
	tooBig := int64(1) << 31
	negative := int64(-1)

	_, err := (&Params{Name: "web", MaxSize: &tooBig}).Spec()
	var verr *reconciler.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "max_size")

	_, err = (&Params{Name: "web", MinSize: &negative}).Spec()
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "min_size")
}

func TestParseSubnets(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{" , ,", nil},
		{"subnet-1", []string{"subnet-1"}},
		{"subnet-1,subnet-2", []string{"subnet-1", "subnet-2"}},
		{" subnet-1 ,, subnet-2 ", []string{"subnet-1", "subnet-2"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseSubnets(tt.in), "input %q", tt.in)
	}
}

func TestReport_Success(t *testing.T) {
	result := group.Result{
		Name:    "web",
		State:   group.StatePresent,
		Changed: true,
		Action:  group.ActionUpdated,
		Changes: map[string]group.Change{"max_size": {Previous: "3", Current: "5"}},
	}

	var buf bytes.Buffer
	require.NoError(t, NewReport(result, nil).Write(&buf))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, true, decoded["changed"])
	assert.Equal(t, "updated", decoded["action"])
	assert.NotContains(t, decoded, "failed")
	assert.NotContains(t, decoded, "check_mode")
	assert.Contains(t, decoded, "changes")
}

func TestReport_Failure(t *testing.T) {
	result := group.Result{
		Name:    "web",
		State:   group.StateAbsent,
		Changed: true,
		Action:  group.ActionDeleted,
	}
	r := NewReport(result, errors.New("boom"))
	assert.True(t, r.Failed)
	assert.Equal(t, "boom", r.Msg)
	assert.Equal(t, "web", r.Name)
	assert.False(t, r.Changed)
	assert.Empty(t, r.Action)

	r = ReportFromError(errors.New("bad params"))
	assert.True(t, r.Failed)
	assert.Empty(t, r.Name)
}
