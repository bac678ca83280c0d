package cascadeflow

import (
	"github.com/lemony-ai/cascadeflow-sub010/internal/tracing"
	fconfig "github.com/lemony-ai/cascadeflow-sub010/pkg/config"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/provider"
)

// ConfigFromFile expands a YAML-loaded fconfig.Config into a facade Config,
// filling Models, Domains, Quality, Cascade and Tracing. The cascade
// section's max_budget, timeout_ms and routing_strategy have no facade
// field and are not carried over. Providers, ToolExecutor, Tools, RateLimits, TierPolicies,
// PriceTable, Embedder and EmbeddingStrategy have no YAML-serializable shape
// (credentials, function values, runtime wiring) and are left for the
// caller to set on the returned Config before calling New.
func ConfigFromFile(fc *fconfig.Config, providers map[string]provider.Provider) Config {
	return Config{
		Models:    fc.ToModels(),
		Providers: providers,
		Domains:   fc.ToDomains(),
		Quality: QualityConfig{
			DefaultMethod:    fc.Quality.DefaultMethod,
			DefaultThreshold: fc.Quality.DefaultThreshold,
		},
		Cascade: CascadeConfig{
			MaxRetries:         fc.Cascade.MaxRetries,
			MaxToolSteps:       fc.Cascade.MaxToolSteps,
			Verbose:            fc.Cascade.Verbose,
			BreakerMaxFailures: fc.Cascade.BreakerMaxFailures,
			BreakerResetMs:     fc.Cascade.BreakerResetMs,
		},
		Tracing: tracing.Config{
			Enabled:      fc.Tracing.Enabled,
			ExporterType: fc.Tracing.ExporterType,
			OTLPEndpoint: fc.Tracing.OTLPEndpoint,
		},
	}
}
