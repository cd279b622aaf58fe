package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bugsnag/lambda-e2e/internal/fixture"
)

// StagedList reports staged copies by fixture.
type StagedList struct {
	Action string        `json:"action" yaml:"action"`
	Staged []StagedEntry `json:"staged" yaml:"staged"`
}

// StagedEntry is one staged copy.
type StagedEntry struct {
	Fixture string `json:"fixture" yaml:"fixture"`
	Path    string `json:"path" yaml:"path"`
}

func (l StagedList) String() string {
	if len(l.Staged) == 0 {
		return fmt.Sprintf("No fixtures %s", l.Action)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d fixture(s):", strings.ToUpper(l.Action[:1])+l.Action[1:], len(l.Staged))
	for _, e := range l.Staged {
		fmt.Fprintf(&b, "\n  %s\t%s", e.Fixture, e.Path)
	}
	return b.String()
}

func newStagedList(action string, set *fixture.Set) StagedList {
	list := StagedList{Action: action, Staged: []StagedEntry{}}
	for _, st := range set.Staged() {
		list.Staged = append(list.Staged, StagedEntry{Fixture: st.Fixture, Path: st.Path})
	}
	return list
}

// NewStageCommand creates the stage command.
func NewStageCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stage",
		Short: "Copy the notifier into every fixture and leave it there",
		Long: `Stage the notifier sources into every fixture directory, as a run does
before the first scenario, without running anything. Use 'clean' to
remove the copies again.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			cfg, err := rootOpts.loadConfig(cmd, nil)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
			}

			set, err := cfg.Provisioner().Stage(cmd.Context())
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeStaging, "failed to stage fixtures", err)
			}
			return formatter.Success(newStagedList("staged", set))
		},
	}
}

// NewCleanCommand creates the clean command.
func NewCleanCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clean",
		Short:         "Remove staged notifier copies from every fixture",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			cfg, err := rootOpts.loadConfig(cmd, nil)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
			}

			set, err := cfg.Provisioner().Existing()
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeStaging, "failed to list staged fixtures", err)
			}
			if err := set.Release(); err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeStaging, "failed to remove staged fixtures", err)
			}
			return formatter.Success(newStagedList("removed", set))
		},
	}
}
