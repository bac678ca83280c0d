package toolcall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/provider"
)

func TestDetector_ExplicitLayerAlwaysFullConfidence(t *testing.T) {
	d := NewDetector(nil)
	intent := d.Detect("anything", []provider.ToolCall{{ID: "1", Name: "get_weather"}})
	assert.True(t, intent.ShouldCall)
	assert.Equal(t, 1.0, intent.Confidence)
	assert.Contains(t, intent.Layers, "explicit")
}

func TestDetector_HeuristicLayer(t *testing.T) {
	d := NewDetector(nil)
	intent := d.Detect("please search for the latest weather in Berlin", nil)
	assert.True(t, intent.ShouldCall)
	assert.Contains(t, intent.Layers, "heuristic")
}

func TestDetector_FallbackLayerMentionsRegisteredTool(t *testing.T) {
	d := NewDetector([]string{"summarize"})
	intent := d.Detect("can you summarize this for me please", nil)
	assert.Contains(t, intent.Layers, "fallback")
}

func TestDetector_NoSignalNoCall(t *testing.T) {
	d := NewDetector(nil)
	intent := d.Detect("what is your favorite color", nil)
	assert.False(t, intent.ShouldCall)
	assert.Empty(t, intent.Layers)
}

func TestValidator_StructuralFailsOnBadJSON(t *testing.T) {
	v := NewValidator(nil)
	result := v.Validate(provider.ToolCall{Name: "get_weather", Arguments: "{not json"})
	assert.False(t, result.StructuralOK)
	assert.False(t, result.Valid)
}

func TestValidator_RequiredParamMissing(t *testing.T) {
	v := NewValidator([]ToolDef{
		{Name: "get_weather", Params: []ParamSchema{{Name: "city", Type: "string", Required: true}}},
	})
	result := v.Validate(provider.ToolCall{Name: "get_weather", Arguments: `{}`})
	assert.False(t, result.StructuralOK)
}

func TestValidator_PlaceholderFailsSemantic(t *testing.T) {
	v := NewValidator(nil)
	result := v.Validate(provider.ToolCall{Name: "search", Arguments: `{"query": "TBD"}`})
	assert.Less(t, result.SemanticScore, 0.6)
	assert.False(t, result.Valid)
}

func TestValidator_DestructivePatternFailsSafety(t *testing.T) {
	v := NewValidator(nil)
	result := v.Validate(provider.ToolCall{Name: "run_sql", Arguments: `{"query": "DROP TABLE users"}`})
	assert.False(t, result.SafetyOK)
	assert.False(t, result.Valid)
}

func TestValidator_ValidCallPasses(t *testing.T) {
	v := NewValidator([]ToolDef{
		{Name: "get_weather", Params: []ParamSchema{{Name: "city", Type: "string", Required: true}}},
	})
	result := v.Validate(provider.ToolCall{Name: "get_weather", Arguments: `{"city": "Berlin"}`})
	require.True(t, result.Valid)
	assert.Equal(t, "Berlin", result.ParsedArguments["city"])
}

func TestValidator_SchemaSupersedesParams(t *testing.T) {
	schema := []byte(`{
		"type": "object",
		"properties": {
			"city": {"type": "string"},
			"days": {"type": "number", "minimum": 1, "maximum": 14}
		},
		"required": ["city"]
	}`)
	v := NewValidator([]ToolDef{{Name: "forecast", Schema: schema}})

	result := v.Validate(provider.ToolCall{Name: "forecast", Arguments: `{"city": "Berlin", "days": 5}`})
	assert.True(t, result.StructuralOK)

	result = v.Validate(provider.ToolCall{Name: "forecast", Arguments: `{"days": 5}`})
	assert.False(t, result.StructuralOK, "missing required city should fail schema validation")

	result = v.Validate(provider.ToolCall{Name: "forecast", Arguments: `{"city": "Berlin", "days": 30}`})
	assert.False(t, result.StructuralOK, "days over the schema maximum should fail")
}

func TestValidator_UncompilableSchemaFallsBackToParams(t *testing.T) {
	v := NewValidator([]ToolDef{{
		Name:   "get_weather",
		Schema: []byte(`not valid json`),
		Params: []ParamSchema{{Name: "city", Type: "string", Required: true}},
	}})
	result := v.Validate(provider.ToolCall{Name: "get_weather", Arguments: `{}`})
	assert.False(t, result.StructuralOK, "fallback Params check should still catch the missing city")
}

func TestRiskForTool_CriticalByNamePattern(t *testing.T) {
	assert.Equal(t, cascade.RiskCritical, RiskForTool("delete_user", nil))
	assert.Equal(t, cascade.RiskHigh, RiskForTool("execute_shell", nil))
	assert.Equal(t, cascade.RiskLow, RiskForTool("get_weather", nil))
}

func TestRiskForTool_ExplicitDefWins(t *testing.T) {
	tools := map[string]ToolDef{"get_weather": {Name: "get_weather", Risk: cascade.RiskHigh}}
	assert.Equal(t, cascade.RiskHigh, RiskForTool("get_weather", tools))
}

func TestParseFreeText_FencedJSON(t *testing.T) {
	text := "Thought: I need weather\nAction: get_weather\nAction Input: ```json\n{\"city\": \"Paris\"}\n```"
	call, ok := ParseFreeText(text)
	require.True(t, ok)
	assert.Equal(t, "get_weather", call.Name)
	assert.Equal(t, "Paris", call.Arguments["city"])
}

func TestParseFreeText_FunctionShape(t *testing.T) {
	call, ok := ParseFreeText("get_weather(city=Berlin)")
	require.True(t, ok)
	assert.Equal(t, "get_weather", call.Name)
	assert.Equal(t, "Berlin", call.Arguments["city"])
}

func TestParseFreeText_NoMatch(t *testing.T) {
	_, ok := ParseFreeText("just a plain sentence with no tool intent")
	assert.False(t, ok)
}
