package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bugsnag/lambda-e2e/internal/maze"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_RequiresRuntimeVersion(t *testing.T) {
	t.Setenv(RuntimeVersionEnv, "")

	_, _, err := Load(context.Background(), LoadOptions{})
	require.ErrorIs(t, err, ErrRuntimeVersionRequired)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(RuntimeVersionEnv, "3.9")

	cfg, path, err := Load(context.Background(), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "", path)

	want := Defaults()
	want.RuntimeVersion = "3.9"
	assert.Equal(t, &want, cfg)
}

func TestLoad_HarnessOptionsMatchDefaults(t *testing.T) {
	t.Setenv(RuntimeVersionEnv, "3.12")

	cfg, _, err := Load(context.Background(), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, maze.DefaultOptions(), cfg.HarnessOptions())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(RuntimeVersionEnv, "3.8")
	t.Setenv("LAMBDA_E2E_PORT", "9444")
	t.Setenv("LAMBDA_E2E_HARNESS_FILE_LOG", "true")
	t.Setenv("LAMBDA_E2E_HOST_SOURCE", "ifconfig")

	cfg, _, err := Load(context.Background(), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "3.8", cfg.RuntimeVersion)
	assert.Equal(t, 9444, cfg.Port)
	assert.True(t, cfg.Harness.FileLog)
	assert.Equal(t, "ifconfig", cfg.HostSource)
}

func TestLoad_File(t *testing.T) {
	t.Setenv(RuntimeVersionEnv, "3.11")
	path := writeConfig(t, `
port: 9500
compose_file: "compose.yml"
harness: {
	slow_threshold: 8
	log_requests:   false
}
`)

	cfg, used, err := Load(context.Background(), LoadOptions{File: path})
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, 9500, cfg.Port)
	assert.Equal(t, "compose.yml", cfg.ComposeFile)
	assert.Equal(t, 8, cfg.Harness.SlowThreshold)
	assert.False(t, cfg.Harness.LogRequests)
	// Untouched keys keep their defaults.
	assert.Equal(t, 10, cfg.Harness.ReceiveRequestsWait)

	opts := cfg.HarnessOptions()
	assert.Equal(t, 8*time.Second, opts.ReceiveRequestsSlowThreshold)
	assert.Equal(t, 9500, opts.Port)
}

func TestLoad_FileRuntimeVersion(t *testing.T) {
	t.Setenv(RuntimeVersionEnv, "")
	path := writeConfig(t, `runtime_version: "3.10"`)

	cfg, _, err := Load(context.Background(), LoadOptions{File: path})
	require.NoError(t, err)
	assert.Equal(t, "3.10", cfg.RuntimeVersion)
}

func TestLoad_OverridesWin(t *testing.T) {
	t.Setenv(RuntimeVersionEnv, "3.9")
	t.Setenv("LAMBDA_E2E_PORT", "9444")
	path := writeConfig(t, `port: 9500`)

	cfg, _, err := Load(context.Background(), LoadOptions{
		File:      path,
		Overrides: map[string]any{"port": 9600, "runtime_version": "3.13"},
	})
	require.NoError(t, err)
	assert.Equal(t, 9600, cfg.Port)
	assert.Equal(t, "3.13", cfg.RuntimeVersion)
}

func TestLoad_InvalidFile(t *testing.T) {
	t.Setenv(RuntimeVersionEnv, "3.9")

	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"syntax error", `port: {`, "parse"},
		{"unknown field", `prot: 9339`, "validate"},
		{"port out of range", `port: 70000`, "validate"},
		{"bad host source", `host_source: "netlink"`, "validate"},
		{"bad staged name", `staged_name: "bugsnag-copy"`, "validate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Load(context.Background(), LoadOptions{File: writeConfig(t, tt.content)})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv(RuntimeVersionEnv, "3.9")

	_, _, err := Load(context.Background(), LoadOptions{File: filepath.Join(t.TempDir(), "nope.cue")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Load(ctx, LoadOptions{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad runtime version", func(c *Config) { c.RuntimeVersion = "python3.9" }},
		{"short api key", func(c *Config) { c.APIKey = "abc" }},
		{"empty service", func(c *Config) { c.Service = "" }},
		{"negative wait", func(c *Config) { c.Harness.ReceiveRequestsWait = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.RuntimeVersion = "3.9"
			tt.modify(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestProvisioner(t *testing.T) {
	cfg := Defaults()
	cfg.FixturesRoot = "fixtures"
	p := cfg.Provisioner()
	assert.Equal(t, "fixtures", p.Root)
	assert.Equal(t, []string{"bugsnag", "setup.py"}, p.Sources)
	assert.Equal(t, "temp-bugsnag-python", p.Name)
}
