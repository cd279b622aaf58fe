// Package steps defines the Gherkin step vocabulary for the Lambda suite.
//
// Steps translate scenario text into SAM command lines and hand them to
// the harness service runner. A step fails exactly when the runner does.
package steps

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"github.com/bugsnag/lambda-e2e/internal/maze"
	"github.com/bugsnag/lambda-e2e/internal/sam"
)

// Config is what the steps need from the suite configuration.
type Config struct {
	RuntimeVersion string
	Service        string
	Function       string
	BuildDir       string
}

// Scenario is the per-scenario state filled in by the suite's Before hook.
type Scenario struct {
	// Host is how the Lambda container reaches the harness.
	Host string
	Env  maze.Environment
}

// Steps implements the step vocabulary for one scenario.
type Steps struct {
	cfg    Config
	runner maze.ServiceRunner
	state  *Scenario
}

// New returns the steps for one scenario. state is shared with the hook
// that populates it.
func New(cfg Config, runner maze.ServiceRunner, state *Scenario) *Steps {
	if state == nil {
		state = &Scenario{}
	}
	return &Steps{cfg: cfg, runner: runner, state: state}
}

// Register adds the vocabulary to a godog scenario context.
func (s *Steps) Register(sc *godog.ScenarioContext) {
	sc.Step(`^I build the lambda function$`, s.BuildFunction)
	sc.Step(`^I invoke the lambda handler "([^"]*)"$`, s.InvokeHandler)
	sc.Step(`^I run the lambda function "([^"]*)"$`, s.RunFunction)
	sc.Step(`^I run the lambda handler "([^"]*)" with the "([^"]*)" event$`, s.RunHandlerWithEvent)
	sc.Step(`^I run the service "([^"]*)" with the command "([^"]*)"$`, s.RunService)
}

// BuildCommand returns the `sam build` line for the configured runtime.
func (s *Steps) BuildCommand() sam.Command {
	return sam.Build(s.cfg.Function, s.cfg.RuntimeVersion)
}

// InvokeCommand returns the `sam local invoke` line for handler, with
// event appended when non-empty.
func (s *Steps) InvokeCommand(handler, event string) (sam.Command, error) {
	return sam.Invoke(sam.InvokeOptions{
		Function:      s.cfg.Function,
		Version:       s.cfg.RuntimeVersion,
		Handler:       handler,
		ContainerHost: s.state.Host,
		BuildDir:      s.cfg.BuildDir,
		Event:         event,
	})
}

// BuildFunction runs `sam build` in the Lambda service.
func (s *Steps) BuildFunction(ctx context.Context) error {
	return s.RunService(ctx, s.cfg.Service, s.BuildCommand().String())
}

// InvokeHandler runs `sam local invoke` for handler.
func (s *Steps) InvokeHandler(ctx context.Context, handler string) error {
	return s.invoke(ctx, handler, "")
}

// RunFunction builds the function, then invokes handler.
func (s *Steps) RunFunction(ctx context.Context, handler string) error {
	if err := s.BuildFunction(ctx); err != nil {
		return err
	}
	return s.invoke(ctx, handler, "")
}

// RunHandlerWithEvent builds the function, then invokes handler with the
// named payload from the events directory.
func (s *Steps) RunHandlerWithEvent(ctx context.Context, handler, event string) error {
	if err := s.BuildFunction(ctx); err != nil {
		return err
	}
	return s.invoke(ctx, handler, event)
}

// RunService runs command in service with the scenario environment.
func (s *Steps) RunService(ctx context.Context, service, command string) error {
	if s.runner == nil {
		return fmt.Errorf("no service runner configured")
	}
	return s.runner.RunService(ctx, service, command, s.state.Env)
}

func (s *Steps) invoke(ctx context.Context, handler, event string) error {
	cmd, err := s.InvokeCommand(handler, event)
	if err != nil {
		return err
	}
	return s.RunService(ctx, s.cfg.Service, cmd.String())
}
