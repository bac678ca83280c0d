package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascadeflow"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/provider"
)

var demoCmd = &cobra.Command{
	Use:   "demo [prompt]",
	Short: "Route one query through a two-tier mock drafter/verifier pair, no config file needed",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	prompt := "What is the capital of France?"
	if len(args) == 1 {
		prompt = args[0]
	}

	drafter := provider.NewMockProvider("cheap")
	verifier := provider.NewMockProvider("expensive")

	agent, err := cascadeflow.New(cascadeflow.Config{
		Models: []cascade.ModelConfig{
			{Name: "demo-mini", Provider: "cheap", CostPer1kInput: 0.00015, CostPer1kOutput: 0.0006, QualityScore: 0.7, SpeedMs: 400},
			{Name: "demo-large", Provider: "expensive", CostPer1kInput: 0.0025, CostPer1kOutput: 0.01, QualityScore: 0.95, SpeedMs: 1800},
		},
		Providers: map[string]provider.Provider{
			"cheap":     drafter,
			"expensive": verifier,
		},
	})
	if err != nil {
		return err
	}

	result, err := agent.Run(cmd.Context(), cascade.Query{Prompt: prompt}, cascadeflow.RunOptions{})
	if err != nil {
		return err
	}

	fmt.Printf("prompt:   %s\n", prompt)
	return printResult(result)
}
