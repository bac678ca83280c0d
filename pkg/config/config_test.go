package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
)

const sampleYAML = `
models:
  - name: gpt-4o-mini
    provider: openai
    cost_per_1k_input: 0.00015
    cost_per_1k_output: 0.0006
    max_tokens: 128000
    supports_tools: true
    quality_score: 0.8
    speed_ms: 400
    api_key_env: TEST_OPENAI_KEY
domains:
  medical:
    requires_verifier: true
    excluded_models: ["gpt-4o-mini"]
    cascade_complexities: ["simple", "moderate"]
`

func TestLoad_ParsesModelsAndDomains(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0644))

	os.Setenv("TEST_OPENAI_KEY", "sk-test-123")
	defer os.Unsetenv("TEST_OPENAI_KEY")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Models, 1)

	model := cfg.Models[0].ToModel()
	assert.Equal(t, "gpt-4o-mini", model.Name)
	assert.Equal(t, "sk-test-123", model.APIKey)

	domain := cfg.Domains["medical"].ToDomain()
	assert.True(t, domain.RequiresVerifier)
	assert.True(t, domain.ExcludedModels["gpt-4o-mini"])
	assert.True(t, domain.CascadeComplexities[cascade.Simple])
	assert.True(t, domain.CascadeComplexities[cascade.Moderate])
}

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models:\n  - name: m\n    provider: p\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.Quality.DefaultThreshold)
	assert.Equal(t, cascade.ValidateHeuristic, cfg.Quality.DefaultMethod)
	assert.Equal(t, 3, cfg.Cascade.MaxRetries)
	assert.Equal(t, cascade.RoutingAdaptive, cfg.Cascade.RoutingStrategy)
}

func TestValidate_RequiresAtLeastOneModel(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())
}

func TestValidate_RequiresNameAndProvider(t *testing.T) {
	cfg := &Config{Models: []ModelConfigYAML{{Name: "m"}}}
	assert.Error(t, cfg.Validate())
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roundtrip.yaml")

	cfg := &Config{Models: []ModelConfigYAML{{Name: "m", Provider: "p"}}}
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.Models, 1)
	assert.Equal(t, "m", loaded.Models[0].Name)
}
