package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
[aws]
region = "eu-west-1"
profile = "production"

[log]
level = "debug"
format = "json"

[reconcile]
poll_interval = "5s"
drain_timeout = "20m"

[otel]
endpoint = "localhost:4317"
insecure = true
service_name = "converge"

[otel.traces]
enabled = true
sample_rate = 1.0

[otel.metrics]
enabled = true

[metrics]
textfile = "/var/lib/node_exporter/converge.prom"
pushgateway = "http://pushgateway:9091"
job = "asg"

[journal]
dir = "/var/log/converge"

[history]
path = "/var/lib/converge/history.db"

[policy]
dir = "/etc/converge/policies"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.AWS.Region)
	assert.Equal(t, "production", cfg.AWS.Profile)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 5*time.Second, cfg.Reconcile.PollInterval)
	assert.Equal(t, 20*time.Minute, cfg.Reconcile.DrainTimeout)
	assert.Equal(t, "localhost:4317", cfg.OTEL.Endpoint)
	assert.True(t, cfg.OTEL.Insecure)
	assert.True(t, cfg.OTEL.Traces.Enabled)
	assert.Equal(t, 1.0, cfg.OTEL.Traces.SampleRate)
	assert.True(t, cfg.OTEL.Metrics.Enabled)
	assert.Equal(t, "/var/lib/node_exporter/converge.prom", cfg.Metrics.Textfile)
	assert.Equal(t, "http://pushgateway:9091", cfg.Metrics.Pushgateway)
	assert.Equal(t, "asg", cfg.Metrics.Job)
	assert.Equal(t, "/var/log/converge", cfg.Journal.Dir)
	assert.Equal(t, "/var/lib/converge/history.db", cfg.History.Path)
	assert.Equal(t, "/etc/converge/policies", cfg.Policy.Dir)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Defaults(t *testing.T) {
	content := `
[aws]
region = "us-east-1"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 10*time.Second, cfg.Reconcile.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Reconcile.DrainTimeout)
	assert.Equal(t, "converge", cfg.OTEL.ServiceName)
	assert.Equal(t, "converge", cfg.Metrics.Job)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	require.Error(t, err)
}

func TestLoad_InvalidTOML(t *testing.T) {
	content := `
[aws
region = ["not", "a", "string"]
`
	path := writeTempConfig(t, content)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	content := `
[reconcile]
poll_interval = "not-a-duration"
`
	path := writeTempConfig(t, content)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll_interval")
}

func TestConfig_Validate_SampleRate(t *testing.T) {
	cfg := Default()
	cfg.OTEL.Traces.SampleRate = 1.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample_rate")
}

func TestConfig_Validate_PollInterval(t *testing.T) {
	cfg := Default()
	cfg.Reconcile.PollInterval = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll_interval")
}

func TestConfig_Validate_HistoryKeep(t *testing.T) {
	cfg := Default()
	cfg.History.Keep = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keep")
}

func TestConfig_Validate_LogFormat(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "xml"

	require.Error(t, cfg.Validate())
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
	return path
}
