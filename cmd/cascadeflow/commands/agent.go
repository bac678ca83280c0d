package commands

import (
	"fmt"

	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascadeflow"
	fconfig "github.com/lemony-ai/cascadeflow-sub010/pkg/config"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/provider"
)

// buildAgent loads a YAML config and constructs an Agent. Real deployments
// register real provider.Provider implementations (OpenAI, Anthropic, Groq,
// vLLM, ...) themselves; those HTTP clients live outside this module (spec
// §1), so the CLI stands up a MockProvider per distinct provider name named
// in the config instead, which is enough to exercise routing end to end.
func buildAgent(path string) (*cascadeflow.Agent, error) {
	fc, err := fconfig.Load(path)
	if err != nil {
		return nil, err
	}
	if err := fc.Validate(); err != nil {
		return nil, err
	}

	providers := make(map[string]provider.Provider)
	for _, m := range fc.Models {
		if _, ok := providers[m.Provider]; !ok {
			providers[m.Provider] = provider.NewMockProvider(m.Provider)
		}
	}

	cfg := cascadeflow.ConfigFromFile(fc, providers)
	agent, err := cascadeflow.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("construct agent: %w", err)
	}
	return agent, nil
}
