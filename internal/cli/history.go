package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bugsnag/lambda-e2e/internal/history"
)

// RunList is the output of `history`.
type RunList struct {
	Runs []history.RunSummary `json:"runs" yaml:"runs"`
}

func (l RunList) String() string {
	if len(l.Runs) == 0 {
		return "No runs recorded"
	}
	var b strings.Builder
	b.WriteString("RUN\tRUNTIME\tSTARTED\tCOMMANDS\tFAILED")
	for _, r := range l.Runs {
		fmt.Fprintf(&b, "\n%s\tpython%s\t%s\t%d\t%d",
			r.ID, r.RuntimeVersion, r.StartedAt.Format(time.RFC3339), r.Invocations, r.Failures)
	}
	return b.String()
}

// InvocationList is the output of `history show`.
type InvocationList struct {
	RunID       string               `json:"run_id" yaml:"run_id"`
	Invocations []history.Invocation `json:"invocations" yaml:"invocations"`
}

func (l InvocationList) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %d command(s)", l.RunID, len(l.Invocations))
	for _, inv := range l.Invocations {
		status := "ok"
		if inv.Failed() {
			status = fmt.Sprintf("exit %d", inv.ExitCode)
		}
		fmt.Fprintf(&b, "\n%3d  %-8s %-12s %-10s %s", inv.Seq, status, inv.Service, inv.Duration, inv.Command)
		if inv.Scenario != "" {
			fmt.Fprintf(&b, "\n     scenario: %s", inv.Scenario)
		}
	}
	return b.String()
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		db    string
		limit int
	)

	openStore := func(cmd *cobra.Command) (*history.Store, *OutputFormatter, error) {
		formatter := rootOpts.formatter(cmd)
		overrides := map[string]any{}
		if db != "" {
			overrides["history_db"] = db
		}
		cfg, err := rootOpts.loadConfig(cmd, overrides)
		if err != nil {
			return nil, formatter, formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
		}
		if cfg.HistoryDB == "" {
			return nil, formatter, formatter.Fail(ExitCommandError, ErrCodeHistory, "no history database configured", errors.New("set --db or history_db"))
		}
		st, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return nil, formatter, formatter.Fail(ExitCommandError, ErrCodeHistory, "failed to open history", err)
		}
		return st, formatter, nil
	}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded suite runs",
		Long: `List suite runs recorded with 'run --db', newest first.

Use 'history show [run-id]' to list the service commands of one run.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, formatter, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeHistory, "failed to list runs", err)
			}
			return formatter.Success(RunList{Runs: runs})
		},
	}

	show := &cobra.Command{
		Use:           "show [run-id]",
		Short:         "List the service commands of a run (default: latest)",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, formatter, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			var runID string
			if len(args) == 1 {
				runID = args[0]
			} else {
				latest, err := st.LatestRun(cmd.Context())
				if err != nil {
					return formatter.Fail(ExitCommandError, ErrCodeHistory, "failed to find latest run", err)
				}
				runID = latest.ID
			}

			invocations, err := st.Invocations(cmd.Context(), runID)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeHistory, "failed to read run", err)
			}
			return formatter.Success(InvocationList{RunID: runID, Invocations: invocations})
		},
	}

	cmd.PersistentFlags().StringVar(&db, "db", "", "history database (default: history_db from config)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list (0 for all)")
	cmd.AddCommand(show)

	return cmd
}
