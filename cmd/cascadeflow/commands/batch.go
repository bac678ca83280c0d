package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascadeflow"
)

var (
	batchInputFile   string
	batchParallel    bool
	batchStopOnErr   bool
	batchForceDirect bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run one query per line of a file through the cascade pipeline",
	RunE:  runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	flags := batchCmd.Flags()
	flags.StringVarP(&batchInputFile, "input", "i", "", "file with one prompt per line (required)")
	flags.BoolVar(&batchParallel, "parallel", false, "run queries concurrently instead of sequentially")
	flags.BoolVar(&batchStopOnErr, "stop-on-error", false, "stop the batch at the first failing query")
	flags.BoolVar(&batchForceDirect, "force-direct", false, "skip the drafter and go straight to the verifier for every query")
}

func runBatch(cmd *cobra.Command, args []string) error {
	path, err := requireConfigPath()
	if err != nil {
		return err
	}
	if batchInputFile == "" {
		return fmt.Errorf("--input is required")
	}

	queries, err := readQueries(batchInputFile)
	if err != nil {
		return err
	}
	if len(queries) == 0 {
		return fmt.Errorf("no non-empty lines found in %s", batchInputFile)
	}

	agent, err := buildAgent(path)
	if err != nil {
		return err
	}

	strategy := cascadeflow.BatchSequential
	if batchParallel {
		strategy = cascadeflow.BatchParallel
	}

	logInfo("running %d queries (%s)", len(queries), strategy)
	summary := agent.RunBatch(cmd.Context(), queries, cascadeflow.BatchOptions{
		Strategy:    strategy,
		StopOnError: batchStopOnErr,
		RunOptions: runOptionsBuilder{
			ForceDirect: batchForceDirect,
		}.toRunOptions(),
	})

	for i, r := range summary.Results {
		if r.Err != nil {
			fmt.Printf("[%d] error: %v\n", i, r.Err)
			continue
		}
		fmt.Printf("[%d] %s via %s ($%.6f)\n", i, r.Result.RoutingStrategy, r.Result.ModelUsed, r.Result.Cost.TotalCost)
	}
	fmt.Printf("\n%d succeeded, %d failed\n", summary.SuccessCount, summary.FailureCount)

	if summary.FailureCount > 0 && batchStopOnErr {
		return fmt.Errorf("batch stopped after first error")
	}
	return nil
}

func readQueries(path string) ([]cascade.Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	var queries []cascade.Query
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		queries = append(queries, cascade.Query{Prompt: line})
	}
	return queries, scanner.Err()
}
