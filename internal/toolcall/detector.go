// Package toolcall implements the 4-layer tool-call intent detector and the
// structural/semantic/safety validator from spec §4.5, grounded on the
// teacher's internal/llm/parser.ReActParser (regex fallback parsing) and
// pkg/security's validation/sanitize patterns (destructive-pattern checks).
package toolcall

import (
	"regexp"
	"strings"

	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
	"github.com/lemony-ai/cascadeflow-sub010/pkg/provider"
)

// Layer weights from spec §4.5, strongest evidence first.
const (
	weightExplicit   = 1.0
	weightStructured = 0.8
	weightHeuristic  = 0.6
	weightFallback   = 0.4

	shouldCallThreshold = 0.5
)

var (
	jsonShapedRe    = regexp.MustCompile(`(?s)\{[^{}]*"(name|tool|function)"\s*:\s*"[^"]+"[^{}]*\}`)
	heuristicVerbRe = regexp.MustCompile(`(?i)\b(search|fetch|call|lookup|look up|download|query|invoke|retrieve|post to|send a request)\b`)
)

// Detector implements the 4-layer tool-call intent detection of spec §4.5.
// Every layer is evaluated; layers are additive evidence — each layer that
// fires contributes its weight (capped at 1.0) and is recorded by name.
type Detector struct {
	RegisteredTools []string
}

// NewDetector builds a Detector aware of the tool names the caller
// registered (used by the fallback layer).
func NewDetector(registeredTools []string) *Detector {
	return &Detector{RegisteredTools: registeredTools}
}

// Detect evaluates all 4 layers against the query text and any explicit
// tool calls the caller already attached to the conversation.
func (d *Detector) Detect(queryText string, explicitToolCalls []provider.ToolCall) cascade.ToolCallIntent {
	var layers []string
	var hints []string
	confidence := 0.0

	if len(explicitToolCalls) > 0 {
		layers = append(layers, "explicit")
		confidence += weightExplicit
		for _, tc := range explicitToolCalls {
			hints = append(hints, "explicit:"+tc.Name)
		}
	}

	if jsonShapedRe.MatchString(queryText) {
		layers = append(layers, "structured")
		confidence += weightStructured
		hints = append(hints, "structured:json-shaped")
	}

	if match := heuristicVerbRe.FindString(queryText); match != "" {
		layers = append(layers, "heuristic")
		confidence += weightHeuristic
		hints = append(hints, "heuristic:"+strings.ToLower(match))
	}

	lower := strings.ToLower(queryText)
	for _, tool := range d.RegisteredTools {
		if tool == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(tool)) {
			layers = append(layers, "fallback")
			confidence += weightFallback
			hints = append(hints, "fallback:"+tool)
			break
		}
	}

	if confidence > 1.0 {
		confidence = 1.0
	}

	return cascade.ToolCallIntent{
		ShouldCall: confidence >= shouldCallThreshold,
		Confidence: confidence,
		Layers:     layers,
		Hints:      hints,
	}
}
