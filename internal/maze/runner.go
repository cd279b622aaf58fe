package maze

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"mvdan.cc/sh/v3/shell"
)

// ServiceRunner runs a command line inside a named service.
type ServiceRunner interface {
	RunService(ctx context.Context, service, command string, env Environment) error
}

// Record describes one finished service command.
type Record struct {
	Scenario string
	Service  string
	Command  string
	ExitCode int
	Duration time.Duration
	Err      error
}

// Recorder persists service command records.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// ServiceError is returned when a service command exits non-zero.
type ServiceError struct {
	Service  string
	Command  string
	ExitCode int
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service %q exited with status %d running %q", e.Service, e.ExitCode, e.Command)
}

// ComposeRunner runs services with `docker compose run`.
//
// The command line is split into words and $VAR references are expanded
// against the scenario environment, then the host environment. The
// overlay and the harness settings are also merged into the compose
// process environment so the compose file can forward them to the service
// container.
type ComposeRunner struct {
	// Binary is the compose entry point, e.g. ["docker", "compose"].
	Binary      []string
	ComposeFile string
	// Dir is the working directory; $PWD expands to it. Empty means the
	// process working directory.
	Dir string

	Options  Options
	Logger   *slog.Logger
	Recorder Recorder

	// Stdout receives the service output in addition to the log.
	Stdout io.Writer

	// Environ returns the host environment. Nil means os.Environ.
	Environ func() []string
}

// NewComposeRunner returns a runner for the given compose file.
func NewComposeRunner(composeFile string, opts Options, logger *slog.Logger) *ComposeRunner {
	return &ComposeRunner{
		Binary:      []string{"docker", "compose"},
		ComposeFile: composeFile,
		Options:     opts,
		Logger:      logger,
	}
}

// Args returns the argv that runs command in service.
func (r *ComposeRunner) Args(service, command string, env Environment) ([]string, error) {
	if len(r.Binary) == 0 {
		return nil, errors.New("compose binary is not configured")
	}
	words, err := shell.Fields(command, r.expander(env))
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", command, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("empty command for service %q", service)
	}

	args := append([]string{}, r.Binary...)
	if r.ComposeFile != "" {
		args = append(args, "-f", r.ComposeFile)
	}
	args = append(args, "run", "--rm", "-T", service)
	return append(args, words...), nil
}

// RunService implements ServiceRunner.
func (r *ComposeRunner) RunService(ctx context.Context, service, command string, env Environment) error {
	logger := r.logger().With("service", service)

	args, err := r.Args(service, command, env)
	if err != nil {
		return err
	}

	level := slog.LevelDebug
	if r.Options.LogRequests {
		level = slog.LevelInfo
	}
	logger.Log(ctx, level, "running service command", "command", command)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = r.Dir
	cmd.Env = env.Merge(append(r.environ(), r.Options.Environ()...))

	var output bytes.Buffer
	var w io.Writer = &output
	if r.Stdout != nil {
		w = io.MultiWriter(&output, r.Stdout)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	logOutput(ctx, logger, level, &output)

	if t := r.Options.ReceiveRequestsSlowThreshold; t > 0 && elapsed > t {
		logger.Warn("service command was slow", "command", command, "elapsed", elapsed, "threshold", t)
	}

	rec := Record{
		Scenario: ScenarioFromContext(ctx),
		Service:  service,
		Command:  command,
		Duration: elapsed,
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
	case errors.As(runErr, &exitErr):
		rec.ExitCode = exitErr.ExitCode()
		runErr = &ServiceError{Service: service, Command: command, ExitCode: rec.ExitCode}
	default:
		rec.ExitCode = -1
		runErr = fmt.Errorf("run service %q: %w", service, runErr)
	}
	rec.Err = runErr

	if r.Recorder != nil {
		if err := r.Recorder.Record(ctx, rec); err != nil {
			logger.Warn("failed to record service command", "error", err)
		}
	}

	return runErr
}

func (r *ComposeRunner) expander(env Environment) func(string) string {
	return func(name string) string {
		if v, ok := env.Lookup(name); ok {
			return v
		}
		if name == "PWD" {
			if r.Dir != "" {
				return r.Dir
			}
			if wd, err := os.Getwd(); err == nil {
				return wd
			}
		}
		return os.Getenv(name)
	}
}

func (r *ComposeRunner) environ() []string {
	if r.Environ != nil {
		return r.Environ()
	}
	return os.Environ()
}

func (r *ComposeRunner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func logOutput(ctx context.Context, logger *slog.Logger, level slog.Level, output *bytes.Buffer) {
	if !logger.Enabled(ctx, level) {
		return
	}
	scanner := bufio.NewScanner(bytes.NewReader(output.Bytes()))
	for scanner.Scan() {
		logger.Log(ctx, level, scanner.Text())
	}
}
