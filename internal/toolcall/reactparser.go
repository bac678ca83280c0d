package toolcall

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// FreeTextCall is a tool call recovered from unstructured model output by
// the ReAct-style fallback parser — for providers/local model servers that
// emit "Action: tool_name\nAction Input: {...}" text instead of a
// structured tool_calls array (supplemented per SPEC_FULL.md; grounded on
// the teacher's parser.ReActParser).
type FreeTextCall struct {
	Name       string
	Arguments  map[string]any
	Confidence float64
}

var (
	actionRe      = regexp.MustCompile(`(?i)Action:\s*(\w+)`)
	jsonInputRe   = regexp.MustCompile(`(?i)Action Input:\s*` + "```" + `(?:json)?\s*(\{[\s\S]*?\})\s*` + "```")
	inlineJSONRe  = regexp.MustCompile(`(?i)Action Input:\s*(\{[^\n]*\})`)
	keyValueRe    = regexp.MustCompile(`(?i)(?:Action )?Input:\s*([^\n]+)`)
	functionCallRe = regexp.MustCompile(`(\w+)\s*\(\s*([^)]*)\s*\)`)
)

// ParseFreeText attempts, in order of decreasing confidence, to recover a
// tool call from free-text model output: fenced/inline JSON action input,
// key=value pairs, then a bare function(arg=val, ...) call shape. Returns
// ok=false if nothing matched, in which case the text should be treated as
// a final answer rather than a tool call.
func ParseFreeText(text string) (FreeTextCall, bool) {
	if actionMatch := actionRe.FindStringSubmatch(text); actionMatch != nil {
		call := FreeTextCall{Name: actionMatch[1], Arguments: map[string]any{}}

		if m := jsonInputRe.FindStringSubmatch(text); m != nil {
			if args, ok := parseJSONLenient(m[1]); ok {
				call.Arguments = args
				call.Confidence = 1.0
				return call, true
			}
		}
		if m := inlineJSONRe.FindStringSubmatch(text); m != nil {
			if args, ok := parseJSONLenient(m[1]); ok {
				call.Arguments = args
				call.Confidence = 0.9
				return call, true
			}
		}
		if m := keyValueRe.FindStringSubmatch(text); m != nil {
			call.Arguments = parseKeyValue(m[1])
			call.Confidence = 0.7
			return call, true
		}

		call.Confidence = 0.6
		return call, true
	}

	if m := functionCallRe.FindStringSubmatch(text); m != nil {
		call := FreeTextCall{Name: m[1], Arguments: map[string]any{}, Confidence: 0.5}
		for i, arg := range strings.Split(m[2], ",") {
			arg = strings.TrimSpace(arg)
			if arg == "" {
				continue
			}
			if idx := strings.Index(arg, "="); idx > 0 {
				call.Arguments[strings.TrimSpace(arg[:idx])] = parseScalar(strings.TrimSpace(arg[idx+1:]))
			} else {
				call.Arguments["arg"+strconv.Itoa(i)] = parseScalar(arg)
			}
		}
		return call, true
	}

	return FreeTextCall{}, false
}

func parseJSONLenient(input string) (map[string]any, bool) {
	var result map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(input)), &result); err == nil {
		return result, true
	}
	return nil, false
}

func parseKeyValue(input string) map[string]any {
	result := make(map[string]any)
	for _, pair := range strings.Split(input, ",") {
		sep := "="
		if !strings.Contains(pair, "=") && strings.Contains(pair, ":") {
			sep = ":"
		}
		parts := strings.SplitN(pair, sep, 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		result[key] = parseScalar(strings.TrimSpace(parts[1]))
	}
	return result
}

func parseScalar(value string) any {
	value = strings.Trim(value, `"'`)
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return n
	}
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	return value
}
