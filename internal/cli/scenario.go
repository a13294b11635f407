package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/readykit/internal/harness"
)

// ScenarioOutcome is the result of one scenario in "scenario".
type ScenarioOutcome struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
	Trace  []string `json:"trace,omitempty"`
}

func newScenarioCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scenario <dir|file>",
		Short: "Run scripted queue scenarios",
		Long: `Run YAML queue scenarios against a scratch database and a scripted
remote, and check their assertions.

Exits with status 1 when any scenario fails.

Example:
  readykit scenario internal/harness/testdata/scenarios
  readykit scenario --verbose offline.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args[0], cmd)
		},
	}
}

func runScenarios(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	scenarios, err := loadScenarios(path)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeNotFound+" failed to load scenarios", err)
	}

	outcomes := make([]ScenarioOutcome, 0, len(scenarios))
	failed := 0
	for _, s := range scenarios {
		formatter.VerboseLog("Running scenario: %s", s.Name)
		result, err := harness.Run(s, harness.WithLogger(opts.Logger.Named("scenario")))
		if err != nil {
			return formatter.Fail(ExitCommandError, "scenario "+s.Name+" aborted", err)
		}
		o := ScenarioOutcome{Name: s.Name, Pass: result.Pass, Errors: result.Errors}
		if opts.Verbose || !result.Pass {
			for _, e := range result.Trace {
				o.Trace = append(o.Trace, e.String())
			}
		}
		if !o.Pass {
			failed++
		}
		outcomes = append(outcomes, o)
	}

	if err := formatter.Emit(outcomes, func(w io.Writer) error {
		for _, o := range outcomes {
			mark := "✓"
			if !o.Pass {
				mark = "✗"
			}
			fmt.Fprintf(w, "%s %s\n", mark, o.Name)
			for _, line := range o.Trace {
				fmt.Fprintf(w, "    %s\n", line)
			}
			for _, e := range o.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		fmt.Fprintf(w, "%d/%d scenarios passed\n", len(outcomes)-failed, len(outcomes))
		return nil
	}); err != nil {
		return err
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%s %d scenario(s) failed", ErrCodeScenario, failed))
	}
	return nil
}

func loadScenarios(path string) ([]*harness.Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return harness.LoadDir(path)
	}
	s, err := harness.LoadScenario(path)
	if err != nil {
		return nil, err
	}
	return []*harness.Scenario{s}, nil
}
