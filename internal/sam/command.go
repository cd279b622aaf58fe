// Package sam builds AWS SAM CLI command lines for the Lambda fixture.
//
// Commands are typed values that serialize to a single line in one place,
// so the --parameter-overrides format can be tested on its own. The line is
// handed to a service runner verbatim; it may contain $VAR references (the
// default build directory uses $PWD) that the runner expands.
package sam

import (
	"errors"
	"strings"
)

const (
	// Tool is the SAM CLI binary name.
	Tool = "sam"

	// DefaultFunction is the logical ID of the fixture function in template.yaml.
	DefaultFunction = "BugsnagAwsLambdaTestFunction"

	// DefaultBuildDir is where `sam build` leaves its artifacts for the fixture.
	DefaultBuildDir = "$PWD/features/fixtures/aws-lambda/app/.aws-sam/build"

	// DefaultHostInterface makes the invoke container reachable from the harness.
	DefaultHostInterface = "0.0.0.0"

	// EventsDir holds event payload files, relative to the fixture app.
	EventsDir = "events"

	// RuntimePrefix is prepended to the runtime version in the Runtime parameter.
	RuntimePrefix = "python"
)

// ErrHandlerRequired is returned when an invoke command has no handler name.
var ErrHandlerRequired = errors.New("handler name is required")

// ErrContainerHostRequired is returned when an invoke command has no
// container host.
var ErrContainerHostRequired = errors.New("container host is required")

// Parameter is one CloudFormation parameter override.
type Parameter struct {
	Key   string
	Value string
}

// String renders the parameter in the ParameterKey=K,ParameterValue=V form.
func (p Parameter) String() string {
	return "ParameterKey=" + p.Key + ",ParameterValue=" + p.Value
}

// Overrides is an ordered list of parameter overrides.
type Overrides []Parameter

// Args returns the --parameter-overrides flag followed by one token per
// parameter, or nil when there is nothing to override.
func (o Overrides) Args() []string {
	if len(o) == 0 {
		return nil
	}
	args := make([]string, 0, len(o)+1)
	args = append(args, "--parameter-overrides")
	for _, p := range o {
		args = append(args, p.String())
	}
	return args
}

// String joins Args with single spaces.
func (o Overrides) String() string {
	return strings.Join(o.Args(), " ")
}

// RuntimeOverrides returns the Runtime override for the given version and,
// when handler is non-empty, the Handler override after it.
func RuntimeOverrides(version, handler string) Overrides {
	o := Overrides{{Key: "Runtime", Value: RuntimePrefix + version}}
	if handler != "" {
		o = append(o, Parameter{Key: "Handler", Value: handler})
	}
	return o
}

// Flag is a long-form flag with a value.
type Flag struct {
	Name  string
	Value string
}

// Command is a SAM CLI invocation against a single function.
type Command struct {
	// Subcommand is the SAM verb path, e.g. ["build"] or ["local", "invoke"].
	Subcommand []string
	Function   string
	Flags      []Flag
	Overrides  Overrides
	// Event names a file under EventsDir; it is appended after the overrides.
	Event string
}

// Args returns the command as ordered tokens, starting with the tool name.
func (c Command) Args() []string {
	args := []string{Tool}
	args = append(args, c.Subcommand...)
	if c.Function != "" {
		args = append(args, c.Function)
	}
	for _, f := range c.Flags {
		args = append(args, "--"+f.Name, f.Value)
	}
	args = append(args, c.Overrides.Args()...)
	if c.Event != "" {
		args = append(args, "--event", EventPath(c.Event))
	}
	return args
}

// String serializes the command to the line given to the service runner.
func (c Command) String() string {
	return strings.Join(c.Args(), " ")
}

// EventPath returns the relative path of a named event payload.
func EventPath(name string) string {
	return EventsDir + "/" + name
}

// Build returns `sam build <function>` with the runtime override.
func Build(function, version string) Command {
	return Command{
		Subcommand: []string{"build"},
		Function:   function,
		Overrides:  RuntimeOverrides(version, ""),
	}
}

// InvokeOptions configures a `sam local invoke` command.
type InvokeOptions struct {
	Function string
	Version  string
	Handler  string
	// ContainerHost is the address the Lambda container uses to reach the host.
	ContainerHost string
	// HostInterface defaults to DefaultHostInterface.
	HostInterface string
	// BuildDir defaults to DefaultBuildDir.
	BuildDir string
	Event    string
}

// Invoke returns `sam local invoke <function>` with container networking
// flags, the docker volume base directory and the runtime and handler
// overrides.
func Invoke(opts InvokeOptions) (Command, error) {
	if opts.Handler == "" {
		return Command{}, ErrHandlerRequired
	}
	if opts.ContainerHost == "" {
		return Command{}, ErrContainerHostRequired
	}
	iface := opts.HostInterface
	if iface == "" {
		iface = DefaultHostInterface
	}
	buildDir := opts.BuildDir
	if buildDir == "" {
		buildDir = DefaultBuildDir
	}

	return Command{
		Subcommand: []string{"local", "invoke"},
		Function:   opts.Function,
		Flags: []Flag{
			{Name: "container-host", Value: opts.ContainerHost},
			{Name: "container-host-interface", Value: iface},
			{Name: "docker-volume-basedir", Value: buildDir},
		},
		Overrides: RuntimeOverrides(opts.Version, opts.Handler),
		Event:     opts.Event,
	}, nil
}
