package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bugsnag/lambda-e2e/internal/history"
	"github.com/bugsnag/lambda-e2e/internal/hostip"
	"github.com/bugsnag/lambda-e2e/internal/maze"
	"github.com/bugsnag/lambda-e2e/internal/suite"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Tags        string
	GodogFormat string
	NoColors    bool
	HistoryDB   string

	// Runner and Resolver replace the compose runner and the interface
	// resolver (for testing). Commands run through an injected Runner are
	// not written to history.
	Runner   maze.ServiceRunner
	Resolver suite.HostResolver
}

// RunSummary is the result of a suite run.
type RunSummary struct {
	RunID   string `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Runtime string `json:"runtime" yaml:"runtime"`
	Status  int    `json:"status" yaml:"status"`
	Passed  bool   `json:"passed" yaml:"passed"`
}

func (r RunSummary) String() string {
	outcome := "passed"
	if !r.Passed {
		outcome = "failed"
	}
	if r.RunID == "" {
		return fmt.Sprintf("Suite %s on python%s", outcome, r.Runtime)
	}
	return fmt.Sprintf("Suite %s on python%s (run %s)", outcome, r.Runtime, r.RunID)
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [feature paths...]",
		Short: "Run the Lambda feature files",
		Long: `Stage the notifier into every fixture, run the feature files and
remove the staged copies again.

Scenarios tagged @not-python-3.N are skipped when the runtime under test
is 3.N.

Example:
  PYTHON_TEST_VERSION=3.12 lambda-e2e run
  lambda-e2e run --runtime 3.9 --tags '~@slow' features/handled.feature`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuite(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Tags, "tags", "t", "", "godog tag expression, e.g. '@lambda && ~@wip'")
	cmd.Flags().StringVar(&opts.GodogFormat, "godog-format", suite.DefaultFormat, "godog formatter (pretty|progress|cucumber|junit)")
	cmd.Flags().BoolVar(&opts.NoColors, "no-colors", false, "disable ANSI colors in formatter output")
	cmd.Flags().StringVar(&opts.HistoryDB, "db", "", "record service commands to this SQLite database")

	return cmd
}

func runSuite(opts *RunOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	overrides := map[string]any{}
	if opts.HistoryDB != "" {
		overrides["history_db"] = opts.HistoryDB
	}
	cfg, err := opts.loadConfig(cmd, overrides)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}

	logger, closeLog, err := opts.logger(cmd, cfg)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to open log", err)
	}
	defer closeLog()
	slog.SetDefault(logger)

	resolver := opts.Resolver
	if resolver == nil {
		r, err := hostip.NewResolver(cfg.HostSource, cfg.DockerDesktop)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeHost, "failed to configure host resolution", err)
		}
		resolver = r
	}

	summary := RunSummary{Runtime: cfg.RuntimeVersion}
	runner := opts.Runner
	if runner == nil {
		compose := maze.NewComposeRunner(cfg.ComposeFile, cfg.HarnessOptions(), logger)
		if cfg.HistoryDB != "" {
			st, err := history.Open(cfg.HistoryDB)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeHistory, "failed to open history", err)
			}
			defer func() {
				if closeErr := st.Close(); closeErr != nil {
					logger.Error("error closing history", "error", closeErr)
				}
			}()

			run, err := st.BeginRun(cmd.Context(), cfg.RuntimeVersion)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeHistory, "failed to start history run", err)
			}
			compose.Recorder = run
			summary.RunID = run.ID
			logger.Info("recording history", "db", cfg.HistoryDB, "run", run.ID)
		}
		runner = compose
	}

	provisioner := cfg.Provisioner()
	provisioner.Logger = logger

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	s := &suite.Suite{
		Config:      cfg,
		Options:     cfg.HarnessOptions(),
		Runner:      runner,
		Resolver:    resolver,
		Provisioner: provisioner,
		Logger:      logger,
		Output:      cmd.OutOrStdout(),
		Format:      opts.GodogFormat,
		Tags:        opts.Tags,
		Paths:       paths,
		NoColors:    opts.NoColors,
	}
	if opts.Format != "text" {
		// Keep stdout for the structured summary.
		s.Output = cmd.ErrOrStderr()
	}

	status, err := s.Run(ctx)
	if err != nil {
		if errors.Is(err, suite.ErrStaging) {
			return formatter.Fail(ExitCommandError, ErrCodeStaging, "failed to stage fixtures", err)
		}
		return WrapExitError(ExitFailure, "suite run failed", err)
	}

	summary.Status = status
	summary.Passed = status == suite.StatusPassed
	if err := formatter.Success(summary); err != nil {
		return err
	}
	if !summary.Passed {
		return NewExitError(ExitFailure, fmt.Sprintf("suite failed with status %d", status))
	}
	return nil
}

// signalContext cancels on SIGINT or SIGTERM so staged fixtures are
// still released when the run is interrupted.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

