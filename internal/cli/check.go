package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xinjiayu/rxstream/rxtest"
)

// CheckResult check 命令的输出
type CheckResult struct {
	Passed  int                      `json:"passed"`
	Failed  int                      `json:"failed"`
	Results []*rxtest.ScenarioResult `json:"results"`
}

// runIDGenerator 为每次场景执行生成运行ID，测试中替换为固定值
var runIDGenerator func() string

// NewCheckCommand 创建 check 命令
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <scenario.yaml>...",
		Short: "Run YAML marble scenarios",
		Long: `Run every scenario in the given YAML files on a virtual-time scheduler
and compare the produced timeline with the expected marble diagram.

Exits with code 1 when any scenario fails and 2 when a file cannot be loaded.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args, cmd)
		},
	}
}

func runCheck(rootOpts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(rootOpts, cmd)

	var options []rxtest.ScenarioOption
	if runIDGenerator != nil {
		options = append(options, rxtest.WithRunIDGenerator(runIDGenerator))
	}

	result := CheckResult{Results: []*rxtest.ScenarioResult{}}
	for _, path := range paths {
		file, err := rxtest.LoadScenarios(path)
		if err != nil {
			_ = formatter.Error(ErrCodeScenarioLoad, fmt.Sprintf("%s: %v", path, err), nil)
			return WrapExitError(ExitCommandError, "failed to load scenarios", err)
		}
		formatter.VerboseLog("loaded %d scenario(s) from %s", len(file.Scenarios), path)

		for _, sc := range file.Scenarios {
			res, err := rxtest.RunScenario(sc, options...)
			if err != nil {
				_ = formatter.Error(ErrCodeScenarioLoad, err.Error(), nil)
				return WrapExitError(ExitCommandError, "invalid scenario", err)
			}
			formatter.VerboseLog("scenario %s run %s", res.Name, res.RunID)

			result.Results = append(result.Results, res)
			if res.Passed {
				result.Passed++
			} else {
				result.Failed++
			}
		}
	}

	if err := formatter.Success(result, func(w io.Writer) {
		writeCheckReport(w, result)
	}); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

func writeCheckReport(w io.Writer, result CheckResult) {
	for _, res := range result.Results {
		if res.Passed {
			fmt.Fprintf(w, "PASS %s\n", res.Name)
			continue
		}
		fmt.Fprintf(w, "FAIL %s\n", res.Name)
		for _, failure := range res.Failures {
			fmt.Fprintf(w, "  %s\n", failure)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed\n", result.Passed, result.Failed)
}
