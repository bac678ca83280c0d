// Package config loads CascadeFlow's process-level configuration from YAML
// with environment-variable fallback, grounded on the teacher's
// pkg/config.LoadConfig/SaveConfig/Validate.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
)

// QualityConfig is the agent-wide default for quality validation (spec §4.6,
// §6 "optional QualityConfig").
type QualityConfig struct {
	DefaultMethod    cascade.ValidationMethod `yaml:"default_method"`
	DefaultThreshold float64                  `yaml:"default_threshold"`
}

// CascadeConfig is the agent-wide cascade behavior (spec §6).
type CascadeConfig struct {
	MaxBudget          float64                 `yaml:"max_budget"`
	MaxRetries         int                     `yaml:"max_retries"`
	MaxToolSteps       int                     `yaml:"max_tool_steps"`
	TimeoutMs          int64                   `yaml:"timeout_ms"`
	RoutingStrategy    cascade.RoutingStrategy `yaml:"routing_strategy"`
	Verbose            bool                    `yaml:"verbose"`
	BreakerMaxFailures int                     `yaml:"breaker_max_failures"`
	BreakerResetMs     int64                   `yaml:"breaker_reset_ms"`
}

// Timeout returns TimeoutMs as a time.Duration, defaulting to 30s if unset.
func (c CascadeConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// DomainConfigYAML is the YAML-serializable mirror of cascade.DomainConfig
// (map keys aren't typed well in YAML, so excluded models/cascade
// complexities are flattened to string lists here and expanded by ToDomain).
type DomainConfigYAML struct {
	Drafter             string   `yaml:"drafter"`
	Verifier            string   `yaml:"verifier"`
	Threshold           float64  `yaml:"threshold"`
	Method              string   `yaml:"method"`
	Temperature         float64  `yaml:"temperature"`
	RequiresVerifier    bool     `yaml:"requires_verifier"`
	ExcludedModels      []string `yaml:"excluded_models"`
	CascadeComplexities []string `yaml:"cascade_complexities"`
}

// ToDomain expands the YAML-friendly shape into the runtime cascade.DomainConfig.
func (d DomainConfigYAML) ToDomain() cascade.DomainConfig {
	excluded := make(map[string]bool, len(d.ExcludedModels))
	for _, m := range d.ExcludedModels {
		excluded[m] = true
	}
	complexities := make(map[cascade.Complexity]bool, len(d.CascadeComplexities))
	for _, c := range d.CascadeComplexities {
		complexities[parseComplexity(c)] = true
	}
	return cascade.DomainConfig{
		Drafter:             d.Drafter,
		Verifier:            d.Verifier,
		Threshold:           d.Threshold,
		Method:              cascade.ValidationMethod(d.Method),
		Temperature:         d.Temperature,
		RequiresVerifier:    d.RequiresVerifier,
		ExcludedModels:      excluded,
		CascadeComplexities: complexities,
	}
}

func parseComplexity(s string) cascade.Complexity {
	switch s {
	case "trivial":
		return cascade.Trivial
	case "simple":
		return cascade.Simple
	case "moderate":
		return cascade.Moderate
	case "hard":
		return cascade.Hard
	case "expert":
		return cascade.Expert
	default:
		return cascade.Simple
	}
}

// ModelConfigYAML mirrors cascade.ModelConfig with yaml tags and an
// environment-variable-backed API key.
type ModelConfigYAML struct {
	Name            string  `yaml:"name"`
	Provider        string  `yaml:"provider"`
	CostPer1kInput  float64 `yaml:"cost_per_1k_input"`
	CostPer1kOutput float64 `yaml:"cost_per_1k_output"`
	MaxTokens       int     `yaml:"max_tokens"`
	SupportsTools   bool    `yaml:"supports_tools"`
	QualityScore    float64 `yaml:"quality_score"`
	SpeedMs         int     `yaml:"speed_ms"`
	APIKeyEnv       string  `yaml:"api_key_env"`
	BaseURL         string  `yaml:"base_url"`
}

// ToModel expands one model entry, resolving its API key from the named
// environment variable if set.
func (m ModelConfigYAML) ToModel() cascade.ModelConfig {
	apiKey := ""
	if m.APIKeyEnv != "" {
		apiKey = os.Getenv(m.APIKeyEnv)
	}
	return cascade.ModelConfig{
		Name:            m.Name,
		Provider:        m.Provider,
		CostPer1kInput:  m.CostPer1kInput,
		CostPer1kOutput: m.CostPer1kOutput,
		MaxTokens:       m.MaxTokens,
		SupportsTools:   m.SupportsTools,
		QualityScore:    m.QualityScore,
		SpeedMs:         m.SpeedMs,
		APIKey:          apiKey,
		BaseURL:         m.BaseURL,
	}
}

// Config is the full YAML-loadable agent configuration (spec §6 "Agent
// construction (process-level API)").
type Config struct {
	Models   []ModelConfigYAML           `yaml:"models"`
	Quality  QualityConfig               `yaml:"quality"`
	Cascade  CascadeConfig               `yaml:"cascade"`
	Domains  map[string]DomainConfigYAML `yaml:"domains"`
	Tracing  TracingConfig               `yaml:"tracing"`
}

// TracingConfig mirrors internal/tracing.Config for YAML loading.
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ExporterType string `yaml:"exporter_type"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Load reads and parses a YAML config file and applies defaults. Per-model
// API keys are resolved from their environment variables later, by ToModel.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Quality.DefaultThreshold == 0 {
		cfg.Quality.DefaultThreshold = 0.7
	}
	if cfg.Quality.DefaultMethod == "" {
		cfg.Quality.DefaultMethod = cascade.ValidateHeuristic
	}
	if cfg.Cascade.MaxRetries == 0 {
		cfg.Cascade.MaxRetries = 3
	}
	if cfg.Cascade.MaxToolSteps == 0 {
		cfg.Cascade.MaxToolSteps = 5
	}
	if cfg.Cascade.RoutingStrategy == "" {
		cfg.Cascade.RoutingStrategy = cascade.RoutingAdaptive
	}
	if cfg.Cascade.TimeoutMs == 0 {
		cfg.Cascade.TimeoutMs = 30_000
	}
	if cfg.Cascade.BreakerMaxFailures == 0 {
		cfg.Cascade.BreakerMaxFailures = 5
	}
	if cfg.Cascade.BreakerResetMs == 0 {
		cfg.Cascade.BreakerResetMs = 30_000
	}
}

// Save writes cfg back to a YAML file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write file: %w", err)
	}
	return nil
}

// ToModels expands every configured model entry into its runtime shape.
func (c *Config) ToModels() []cascade.ModelConfig {
	out := make([]cascade.ModelConfig, 0, len(c.Models))
	for _, m := range c.Models {
		out = append(out, m.ToModel())
	}
	return out
}

// ToDomains expands the YAML domain map into its runtime shape, keyed by
// cascade.Domain.
func (c *Config) ToDomains() map[cascade.Domain]cascade.DomainConfig {
	out := make(map[cascade.Domain]cascade.DomainConfig, len(c.Domains))
	for name, d := range c.Domains {
		out[cascade.Domain(name)] = d.ToDomain()
	}
	return out
}

// Validate checks the minimum configuration needed to construct an agent.
func (c *Config) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("config: at least one model must be configured")
	}
	for _, m := range c.Models {
		if m.Name == "" || m.Provider == "" {
			return fmt.Errorf("config: model entries require name and provider")
		}
	}
	return nil
}
