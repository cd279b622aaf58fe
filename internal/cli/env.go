package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/bugsnag/lambda-e2e/internal/maze"
)

// EnvListing is the environment a scenario hands to fixtures.
type EnvListing struct {
	Host string            `json:"host" yaml:"host"`
	Env  map[string]string `json:"env" yaml:"env"`
}

// String renders the listing as sorted NAME=value lines, ready for a
// shell export.
func (l EnvListing) String() string {
	return strings.Join(maze.Environment(l.Env).Slice(), "\n")
}

// NewEnvCommand creates the env command.
func NewEnvCommand(rootOpts *RootOptions) *cobra.Command {
	var host string

	cmd := &cobra.Command{
		Use:   "env",
		Short: "Print the environment a scenario passes to fixtures",
		Long: `Print the API key and harness endpoints a scenario passes to the
fixture process, for running a fixture by hand against a running harness.`,
		Args:          cobra.NoArgs,
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

			env := maze.ScenarioEnvironment(cfg.APIKey, h, cfg.Port)
			return formatter.Success(EnvListing{Host: h, Env: env})
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "harness host (default: resolved from the network interfaces)")

	return cmd
}
