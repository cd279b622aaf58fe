package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bugsnag/lambda-e2e/internal/maze"
	"github.com/bugsnag/lambda-e2e/internal/testutil"
)

type staticResolver string

func (r staticResolver) Resolve(context.Context) (string, error) {
	return string(r), nil
}

func executeRun(t *testing.T, opts *RunOptions, args ...string) (string, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	cmd := newRunCommand(opts)
	cmd.SetOut(stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestRun_Passes(t *testing.T) {
	l := newFixtureLayout(t)
	runner := &testutil.RecordingRunner{}
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "json", ConfigFile: l.configFile, Runtime: "3.9"},
		Runner:      runner,
		Resolver:    staticResolver("10.0.0.5"),
	}

	stdout, err := executeRun(t, opts, "--godog-format", "progress", "--no-colors", filepath.Join("testdata", "features"))
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Passed)
	assert.Equal(t, "3.9", resp.Data.Runtime)

	// The second scenario excludes python 3.9.
	commands := runner.Commands()
	require.Len(t, commands, 2)
	assert.True(t, strings.HasPrefix(commands[0], "sam build "))
	assert.Contains(t, commands[1], "--container-host 10.0.0.5")
	assert.Contains(t, commands[1], "ParameterKey=Handler,ParameterValue=unhandled.handler")

	for _, c := range runner.Calls() {
		assert.Equal(t, "http://10.0.0.5:9339/notify", c.Env[maze.EnvErrorEndpoint])
	}
	assert.NoDirExists(t, l.staged("aws-lambda"))
}

func TestRun_Fails(t *testing.T) {
	l := newFixtureLayout(t)
	runner := &testutil.RecordingRunner{
		Fail: func(service, command string) error {
			return &maze.ServiceError{Service: service, Command: command, ExitCode: 1}
		},
	}
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text", ConfigFile: l.configFile, Runtime: "3.12"},
		Runner:      runner,
		Resolver:    staticResolver("10.0.0.5"),
	}

	stdout, err := executeRun(t, opts, "--godog-format", "progress", "--no-colors", filepath.Join("testdata", "failing"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "Suite failed on python3.12")
	assert.Len(t, runner.Calls(), 1)
	assert.NoDirExists(t, l.staged("aws-lambda"))
}

func TestRun_StagingFailure(t *testing.T) {
	l := newFixtureLayout(t)
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text", ConfigFile: l.configFile, Runtime: "3.9"},
		Runner:      &testutil.RecordingRunner{},
		Resolver:    staticResolver("10.0.0.5"),
	}
	require.NoError(t, os.Remove(filepath.Join(l.root, "setup.py")))

	stdout, err := executeRun(t, opts, filepath.Join("testdata", "features"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E002]")
}

func TestRun_BadHostSource(t *testing.T) {
	l := newFixtureLayout(t)
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text", ConfigFile: l.configFile, Runtime: "3.9"},
		Runner:      &testutil.RecordingRunner{},
	}
	t.Setenv("LAMBDA_E2E_HOST_SOURCE", "netlink")

	_, err := executeRun(t, opts, filepath.Join("testdata", "features"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
