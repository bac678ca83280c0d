package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lemony-ai/cascadeflow-sub010/internal/cascadetest"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Run the built-in acceptance scenarios against scripted providers",
	Long: `selftest exercises the cascade pipeline end to end with no live model
credentials: a scripted provider stands in for each candidate model, covering
the simple-accept, complex-escalation, force-direct, tool-loop, rate-limit
and retry scenarios.`,
	RunE: runSelftest,
}

func init() {
	rootCmd.AddCommand(selftestCmd)
}

func runSelftest(cmd *cobra.Command, args []string) error {
	summary := cascadetest.Run(cmd.Context(), cascadetest.DefaultSuite())

	for _, o := range summary.Outcomes {
		status := "PASS"
		if !o.Passed {
			status = "FAIL"
		}
		fmt.Printf("[%s] %-24s %s (%s)\n", status, o.ID, o.Name, o.Latency)
		if !o.Passed {
			fmt.Printf("       %s\n", o.Detail)
		}
	}
	fmt.Printf("\n%d/%d scenarios passed\n", summary.Passed, summary.Total)

	if summary.Failed > 0 {
		os.Exit(1)
	}
	return nil
}
