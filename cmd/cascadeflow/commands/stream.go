package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
)

var (
	streamSystemPrompt string
	streamForceDirect  bool
	streamTier         string
)

var streamCmd = &cobra.Command{
	Use:   "stream [prompt]",
	Short: "Run a query and print its streaming event sequence as it arrives",
	Args:  cobra.ExactArgs(1),
	RunE:  runStream,
}

func init() {
	rootCmd.AddCommand(streamCmd)

	flags := streamCmd.Flags()
	flags.StringVar(&streamSystemPrompt, "system", "", "system prompt")
	flags.BoolVar(&streamForceDirect, "force-direct", false, "skip the drafter and go straight to the verifier")
	flags.StringVar(&streamTier, "tier", "", "caller tier, used for budget policy lookups")
}

func runStream(cmd *cobra.Command, args []string) error {
	path, err := requireConfigPath()
	if err != nil {
		return err
	}

	agent, err := buildAgent(path)
	if err != nil {
		return err
	}

	query := cascade.Query{Prompt: args[0]}
	opts := runOptionsBuilder{
		SystemPrompt: streamSystemPrompt,
		ForceDirect:  streamForceDirect,
		UserTier:     streamTier,
	}.toRunOptions()

	stream := agent.Stream(cmd.Context(), query, opts)
	for ev := range stream.Events() {
		switch ev.Type {
		case cascade.EventChunk:
			fmt.Print(ev.Content)
		case cascade.EventComplete:
			fmt.Println()
			logInfo("complete: %v", ev.Data)
		case cascade.EventError:
			fmt.Println()
			logError("%s", ev.Content)
		default:
			logInfo("%s %v", ev.Type, ev.Data)
		}
	}

	return nil
}
