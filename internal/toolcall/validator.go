package toolcall

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/provider"
)

// ParamSchema is a minimal description of one tool parameter, enough to
// check structural and type compatibility without a full JSON Schema
// evaluator (spec §4.5: "type-compatible with tool schema").
type ParamSchema struct {
	Name     string
	Type     string // "string", "number", "boolean", "object", "array"
	Required bool
}

// ToolDef pairs a ToolSpec with its parameter schema and risk tier. Schema,
// when set, is the tool's full JSON Schema for its arguments object (the
// same bytes provider.ToolSpec.Parameters carries) and supersedes Params:
// real JSON-Schema validation (types, enums, nested objects, required)
// replaces the flat name/type/required check. Params remains the fallback
// for tools registered without a schema document.
type ToolDef struct {
	Name   string
	Params []ParamSchema
	Schema []byte
	Risk   cascade.RiskTier
}

var destructivePatterns = regexp.MustCompile(`(?i)\b(drop\s+table|drop\s+database|truncate|delete\s+from|rm\s+-rf|format\s+c:|shutdown\s+-h|:(){ :\|:& };:)\b`)

var secretPatterns = regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token)\s*[:=]\s*["']?[a-zA-Z0-9_\-]{8,}`)

var placeholderValues = map[string]bool{
	"tbd": true, "todo": true, "null": true, "n/a": true, "na": true, "xxx": true, "???": true,
}

// ValidationResult is the per-call outcome of §4.5's three sub-validators.
type ValidationResult struct {
	StructuralOK    bool
	SafetyOK        bool
	SemanticScore   float64
	Valid           bool
	Errors          []string
	Risk            cascade.RiskTier
	ParsedArguments map[string]any
}

// Validator checks generated tool calls against their registered schema for
// structural validity, semantic sanity (no placeholders), and safety
// (no destructive patterns or leaked secrets) — spec §4.5.
type Validator struct {
	Tools    map[string]ToolDef
	compiled map[string]*jsonschema.Schema
}

// NewValidator builds a Validator over the given tool registry, precompiling
// every ToolDef.Schema up front so Validate never pays compilation cost per
// call. A tool whose schema fails to compile falls back to its flat Params
// check rather than rejecting every call to it.
func NewValidator(tools []ToolDef) *Validator {
	m := make(map[string]ToolDef, len(tools))
	compiled := make(map[string]*jsonschema.Schema, len(tools))
	for _, t := range tools {
		m[t.Name] = t
		if len(t.Schema) == 0 {
			continue
		}
		schema, err := compileSchema(t.Name, t.Schema)
		if err == nil {
			compiled[t.Name] = schema
		}
	}
	return &Validator{Tools: m, compiled: compiled}
}

// compileSchema follows the registry package's validatePayloadJSONAgainstSchema
// shape: unmarshal the schema document, register it under a resource name,
// compile, done once here instead of per call.
func compileSchema(name string, schemaBytes []byte) (*jsonschema.Schema, error) {
	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal schema for %s: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	resource := name + ".json"
	if err := c.AddResource(resource, schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", name, err)
	}
	return c.Compile(resource)
}

// Validate runs all three sub-validators for one tool call. overall valid =
// structural.ok ∧ safety.ok ∧ semantic.score ≥ 0.6 (spec §4.5).
func (v *Validator) Validate(call provider.ToolCall) ValidationResult {
	result := ValidationResult{Risk: RiskForTool(call.Name, v.Tools)}

	args, structuralErrs := v.validateStructural(call)
	result.StructuralOK = len(structuralErrs) == 0
	result.ParsedArguments = args
	result.Errors = append(result.Errors, structuralErrs...)

	semScore, semErrs := validateSemantic(args)
	result.SemanticScore = semScore
	result.Errors = append(result.Errors, semErrs...)

	safetyOK, safetyErrs := validateSafety(call, args, result.Risk)
	result.SafetyOK = safetyOK
	result.Errors = append(result.Errors, safetyErrs...)

	result.Valid = result.StructuralOK && result.SafetyOK && result.SemanticScore >= 0.6
	return result
}

func (v *Validator) validateStructural(call provider.ToolCall) (map[string]any, []string) {
	var errs []string

	var args map[string]any
	if call.Arguments == "" {
		args = map[string]any{}
	} else if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return nil, []string{"arguments is not valid JSON: " + err.Error()}
	}

	def, known := v.Tools[call.Name]
	if !known {
		// Unknown tools pass structural checks on JSON-validity alone; the
		// caller's tool_executor is the authority on whether it can run.
		return args, nil
	}

	if schema, ok := v.compiled[call.Name]; ok {
		if err := schema.Validate(args); err != nil {
			return args, []string{"schema validation failed: " + err.Error()}
		}
		return args, nil
	}

	for _, p := range def.Params {
		raw, present := args[p.Name]
		if !present {
			if p.Required {
				errs = append(errs, "missing required parameter: "+p.Name)
			}
			continue
		}
		if !typeCompatible(raw, p.Type) {
			errs = append(errs, "parameter "+p.Name+" has wrong type, expected "+p.Type)
		}
	}

	return args, errs
}

func typeCompatible(value any, want string) bool {
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	default:
		return true
	}
}

// validateSemantic scores [0,1]: 1.0 minus a penalty per placeholder value
// found among the arguments (spec §4.5: "no placeholder values").
func validateSemantic(args map[string]any) (float64, []string) {
	if len(args) == 0 {
		return 1.0, nil
	}

	score := 1.0
	var errs []string
	for key, value := range args {
		str, ok := value.(string)
		if !ok {
			continue
		}
		trimmed := strings.ToLower(strings.TrimSpace(str))
		if trimmed == "" || placeholderValues[trimmed] {
			score -= 1.0 / float64(len(args))
			errs = append(errs, "placeholder value for parameter: "+key)
		}
	}
	if score < 0 {
		score = 0
	}
	return score, errs
}

// validateSafety rejects destructive shell/SQL patterns, leaked secrets, or
// an empty required field on a high/critical-risk tool (spec §4.5).
func validateSafety(call provider.ToolCall, args map[string]any, risk cascade.RiskTier) (bool, []string) {
	var errs []string

	if destructivePatterns.MatchString(call.Arguments) {
		errs = append(errs, "destructive pattern detected in arguments")
	}
	if secretPatterns.MatchString(call.Arguments) {
		errs = append(errs, "possible secret detected in arguments")
	}

	if risk == cascade.RiskHigh || risk == cascade.RiskCritical {
		for key, value := range args {
			if str, ok := value.(string); ok && strings.TrimSpace(str) == "" {
				errs = append(errs, "empty value for high-risk field: "+key)
			}
		}
	}

	return len(errs) == 0, errs
}

var riskNamePatterns = []struct {
	re   *regexp.Regexp
	risk cascade.RiskTier
}{
	{regexp.MustCompile(`(?i)delete|drop|truncate|destroy|purge|wipe`), cascade.RiskCritical},
	{regexp.MustCompile(`(?i)write|update|modify|execute|shell|exec|deploy|send|post`), cascade.RiskHigh},
	{regexp.MustCompile(`(?i)create|insert|upload|schedule`), cascade.RiskMedium},
}

// RiskForTool derives a tool's risk tier from its name/description patterns
// (spec §4.5). An explicit ToolDef.Risk always wins over name-derived
// inference.
func RiskForTool(name string, tools map[string]ToolDef) cascade.RiskTier {
	if def, ok := tools[name]; ok && def.Risk != "" {
		return def.Risk
	}
	for _, p := range riskNamePatterns {
		if p.re.MatchString(name) {
			return p.risk
		}
	}
	return cascade.RiskLow
}
