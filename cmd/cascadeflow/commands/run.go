package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascadeflow"
)

var (
	runSystemPrompt string
	runMaxTokens    int
	runTemperature  float64
	runForceDirect  bool
	runTier         string
	runJSON         bool
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Run a single query through the cascade pipeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.StringVar(&runSystemPrompt, "system", "", "system prompt")
	flags.IntVar(&runMaxTokens, "max-tokens", 0, "max tokens for the response")
	flags.Float64Var(&runTemperature, "temperature", 0, "sampling temperature")
	flags.BoolVar(&runForceDirect, "force-direct", false, "skip the drafter and go straight to the verifier")
	flags.StringVar(&runTier, "tier", "", "caller tier, used for budget policy lookups")
	flags.BoolVar(&runJSON, "json", false, "print the full result as JSON")
}

func runRun(cmd *cobra.Command, args []string) error {
	path, err := requireConfigPath()
	if err != nil {
		return err
	}

	agent, err := buildAgent(path)
	if err != nil {
		return err
	}

	query := cascade.Query{Prompt: args[0]}
	opts := buildRunOptions()

	logInfo("routing query through %s", path)
	result, err := agent.Run(cmd.Context(), query, opts)
	if err != nil {
		return err
	}

	return printResult(result)
}

func buildRunOptions() cascadeflow.RunOptions {
	return runOptionsBuilder{
		SystemPrompt: runSystemPrompt,
		MaxTokens:    runMaxTokens,
		Temperature:  runTemperature,
		ForceDirect:  runForceDirect,
		UserTier:     runTier,
	}.toRunOptions()
}

func printResult(result *cascade.Result) error {
	if runJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("strategy:        %s\n", result.RoutingStrategy)
	fmt.Printf("complexity:      %s\n", result.Complexity)
	fmt.Printf("domain:          %s\n", result.Domain)
	fmt.Printf("model used:      %s\n", result.ModelUsed)
	fmt.Printf("cascaded:        %t\n", result.Cascaded)
	fmt.Printf("draft accepted:  %t\n", result.DraftAccepted)
	if result.RejectionReason != "" {
		fmt.Printf("rejection:       %s\n", result.RejectionReason)
	}
	fmt.Printf("cost:            $%.6f (saved $%.6f, %.1f%%)\n",
		result.Cost.TotalCost, result.Cost.CostSaved, result.Cost.SavingsPercent)
	fmt.Printf("latency:         %dms\n", result.Timing.TotalMs)
	fmt.Println("---")
	fmt.Println(result.Content)
	return nil
}
