package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bugsnag/lambda-e2e/internal/config"
	"github.com/bugsnag/lambda-e2e/internal/hostip"
	"github.com/bugsnag/lambda-e2e/internal/sam"
)

// CommandLine is a generated service command.
type CommandLine struct {
	Service string   `json:"service" yaml:"service"`
	Command string   `json:"command" yaml:"command"`
	Args    []string `json:"args" yaml:"args"`
}

func (c CommandLine) String() string {
	return c.Command
}

func newCommandLine(service string, c sam.Command) CommandLine {
	return CommandLine{Service: service, Command: c.String(), Args: c.Args()}
}

// NewCommandCommand creates the command command, which prints the SAM
// command lines the steps would run.
func NewCommandCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "command",
		Short: "Print the SAM command lines the steps run",
	}
	cmd.AddCommand(newCommandBuildCommand(rootOpts))
	cmd.AddCommand(newCommandInvokeCommand(rootOpts))
	return cmd
}

func newCommandBuildCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "build",
		Short:         "Print the `sam build` command",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			cfg, err := rootOpts.loadConfig(cmd, nil)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
			}
			return formatter.Success(newCommandLine(cfg.Service, sam.Build(cfg.Function, cfg.RuntimeVersion)))
		},
	}
}

func newCommandInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	var event, host string

	cmd := &cobra.Command{
		Use:   "invoke <handler>",
		Short: "Print the `sam local invoke` command for a handler",
		Long: `Print the 'sam local invoke' command for a handler.

The container host is resolved the same way a scenario resolves it unless
--host is given.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			cfg, err := rootOpts.loadConfig(cmd, nil)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
			}

			h, err := resolveHost(cmd.Context(), cfg, host)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeHost, "failed to resolve harness host", err)
			}

			invoke, err := sam.Invoke(sam.InvokeOptions{
				Function:      cfg.Function,
				Version:       cfg.RuntimeVersion,
				Handler:       args[0],
				ContainerHost: h,
				BuildDir:      cfg.BuildDir,
				Event:         event,
			})
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid invoke", err)
			}
			return formatter.Success(newCommandLine(cfg.Service, invoke))
		},
	}

	cmd.Flags().StringVarP(&event, "event", "e", "", "event file under events/")
	cmd.Flags().StringVar(&host, "host", "", "container host (default: resolved from the network interfaces)")

	return cmd
}

// resolveHost returns host when set, otherwise the host a scenario would
// resolve for cfg.
func resolveHost(ctx context.Context, cfg *config.Config, host string) (string, error) {
	if host != "" {
		return host, nil
	}
	r, err := hostip.NewResolver(cfg.HostSource, cfg.DockerDesktop)
	if err != nil {
		return "", err
	}
	return r.Resolve(ctx)
}
