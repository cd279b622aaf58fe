// Package suite assembles the godog run for the Lambda features.
//
// A run stages the notifier into every fixture, executes the features
// one scenario at a time and releases the staged copies on every exit
// path, including cancellation.
package suite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cucumber/godog"
	"github.com/hashicorp/go-multierror"

	"github.com/bugsnag/lambda-e2e/internal/config"
	"github.com/bugsnag/lambda-e2e/internal/fixture"
	"github.com/bugsnag/lambda-e2e/internal/maze"
	"github.com/bugsnag/lambda-e2e/internal/steps"
)

// Name is the godog suite name.
const Name = "lambda-e2e"

// DefaultFormat is the godog formatter used when Format is empty.
const DefaultFormat = "pretty"

// Exit statuses returned by godog.
const (
	StatusPassed = 0
	StatusFailed = 1
)

// ErrStaging wraps failures to stage fixtures before any scenario runs.
var ErrStaging = errors.New("stage fixtures")

// HostResolver finds the address fixtures use to reach the harness.
type HostResolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Suite is one configured run of the features.
type Suite struct {
	Config      *config.Config
	Options     maze.Options
	Runner      maze.ServiceRunner
	Resolver    HostResolver
	Provisioner *fixture.Provisioner
	Logger      *slog.Logger

	// Output receives the formatter output. Nil means stdout.
	Output io.Writer
	// Format is a godog formatter name, e.g. "pretty" or "progress".
	Format string
	// Tags is a godog tag expression, e.g. "@lambda && ~@wip".
	Tags string
	// Paths overrides Config.Features.
	Paths    []string
	NoColors bool
}

// Run stages fixtures, runs the features and releases the staged copies.
// It returns the godog exit status. A non-nil error means the run could
// not start or the staged copies could not be removed.
func (s *Suite) Run(ctx context.Context) (status int, err error) {
	if s.Config == nil {
		return StatusFailed, errors.New("suite has no configuration")
	}
	if s.Provisioner == nil || s.Resolver == nil || s.Runner == nil {
		return StatusFailed, errors.New("suite is not fully configured")
	}
	if err := s.Options.Validate(); err != nil {
		return StatusFailed, err
	}

	set, err := s.Provisioner.Stage(ctx)
	if err != nil {
		return StatusFailed, fmt.Errorf("%w: %w", ErrStaging, err)
	}
	defer func() {
		if rerr := set.Release(); rerr != nil {
			s.logger().Error("failed to release staged fixtures", "error", rerr)
			err = multierror.Append(err, fmt.Errorf("release fixtures: %w", rerr)).ErrorOrNil()
		}
	}()
	s.logger().Info("staged fixtures", "count", len(set.Staged()), "name", s.Provisioner.Name)

	ts := godog.TestSuite{
		Name:                 Name,
		TestSuiteInitializer: s.initSuite,
		ScenarioInitializer:  s.initScenario,
		Options:              s.godogOptions(ctx),
	}
	status = ts.Run()

	if cerr := ctx.Err(); cerr != nil {
		return StatusFailed, fmt.Errorf("run interrupted: %w", cerr)
	}
	return status, nil
}

func (s *Suite) godogOptions(ctx context.Context) *godog.Options {
	format := s.Format
	if format == "" {
		format = DefaultFormat
	}
	paths := s.Paths
	if len(paths) == 0 {
		paths = s.Config.Features
	}
	out := s.Output
	if out == nil {
		out = os.Stdout
	}

	return &godog.Options{
		Format:         format,
		Output:         out,
		Paths:          paths,
		Tags:           s.Tags,
		Concurrency:    1,
		Strict:         true,
		NoColors:       s.NoColors,
		DefaultContext: ctx,
	}
}

func (s *Suite) initSuite(tsc *godog.TestSuiteContext) {
	tsc.BeforeSuite(func() {
		s.logger().Info("harness configured",
			"runtime", s.Config.RuntimeVersion,
			"port", s.Options.Port,
			"file_log", s.Options.FileLog,
			"log_requests", s.Options.LogRequests,
			"receive_requests_wait", s.Options.ReceiveRequestsWait,
			"receive_no_requests_wait", s.Options.ReceiveNoRequestsWait,
			"slow_threshold", s.Options.ReceiveRequestsSlowThreshold,
			"enforce_integrity", s.Options.EnforceBugsnagIntegrity,
		)
	})
}

// initScenario wires a fresh step set for each scenario. godog runs every
// Before hook even after one skips, so excluded scenarios return early
// from host resolution.
func (s *Suite) initScenario(sc *godog.ScenarioContext) {
	state := &steps.Scenario{}

	sc.Before(steps.SkipHook(s.Config.RuntimeVersion))
	sc.Before(func(ctx context.Context, scn *godog.Scenario) (context.Context, error) {
		if steps.Excluded(scn, s.Config.RuntimeVersion) {
			return ctx, nil
		}
		host, err := s.Resolver.Resolve(ctx)
		if err != nil {
			return ctx, fmt.Errorf("resolve harness host: %w", err)
		}
		state.Host = host
		state.Env = maze.ScenarioEnvironment(s.Config.APIKey, host, s.Options.Port)
		s.logger().Debug("scenario environment", "scenario", scn.Name, "host", host)
		return maze.WithScenario(ctx, scn.Name), nil
	})

	steps.New(steps.Config{
		RuntimeVersion: s.Config.RuntimeVersion,
		Service:        s.Config.Service,
		Function:       s.Config.Function,
		BuildDir:       s.Config.BuildDir,
	}, s.Runner, state).Register(sc)
}

func (s *Suite) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
