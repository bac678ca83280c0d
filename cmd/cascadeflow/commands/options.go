package commands

import (
	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascadeflow"
)

// runOptionsBuilder collects the flag values every subcommand that executes
// a query shares, keeping cascadeflow.RunOptions construction (and its
// QualityThreshold pointer quirk) in one place.
type runOptionsBuilder struct {
	SystemPrompt     string
	MaxTokens        int
	Temperature      float64
	ForceDirect      bool
	UserTier         string
	QualityThreshold float64
	HasThreshold     bool
}

func (b runOptionsBuilder) toRunOptions() cascadeflow.RunOptions {
	opts := cascadeflow.RunOptions{
		SystemPrompt: b.SystemPrompt,
		MaxTokens:    b.MaxTokens,
		Temperature:  b.Temperature,
		ForceDirect:  b.ForceDirect,
		UserTier:     b.UserTier,
	}
	if b.HasThreshold {
		t := b.QualityThreshold
		opts.QualityThreshold = &t
	}
	return opts
}
