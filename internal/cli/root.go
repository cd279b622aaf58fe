package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/bugsnag/lambda-e2e/internal/config"
	"github.com/bugsnag/lambda-e2e/internal/maze"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "text" | "json" | "yaml"
	ConfigFile string
	// Runtime overrides PYTHON_TEST_VERSION when set.
	Runtime string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the lambda-e2e CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "lambda-e2e",
		Short: "End-to-end suite for the Bugsnag Python notifier on AWS Lambda",
		Long: `Runs the Lambda feature files against the Bugsnag Python notifier.

Scenarios build and invoke a SAM function inside the fixture's compose
service and report to the request-capture harness. The runtime under test
comes from PYTHON_TEST_VERSION or --runtime.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "config file (default ./"+config.FileName+" if present)")
	cmd.PersistentFlags().StringVar(&opts.Runtime, "runtime", "", "Python runtime version under test, e.g. 3.12")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewStageCommand(opts))
	cmd.AddCommand(NewCleanCommand(opts))
	cmd.AddCommand(NewCommandCommand(opts))
	cmd.AddCommand(NewEnvCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// loadConfig resolves the configuration, applying --runtime and any
// command-specific overrides on top.
func (o *RootOptions) loadConfig(cmd *cobra.Command, overrides map[string]any) (*config.Config, error) {
	merged := map[string]any{}
	for k, v := range overrides {
		merged[k] = v
	}
	if o.Runtime != "" {
		merged["runtime_version"] = o.Runtime
	}

	cfg, path, err := config.Load(cmd.Context(), config.LoadOptions{File: o.ConfigFile, Overrides: merged})
	if err != nil {
		return nil, err
	}
	if path != "" {
		o.formatter(cmd).VerboseLog("Using config file %s", path)
	}
	return cfg, nil
}

// logger builds the suite logger for cfg. The closer must be called once
// the command finishes.
func (o *RootOptions) logger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, func(), error) {
	logger, closer, err := maze.NewLogger(cfg.HarnessOptions(), cmd.ErrOrStderr(), o.Verbose)
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = closer.Close() }, nil
}
