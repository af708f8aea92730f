package tools

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	apperrors "ragcore/internal/errors"
)

// maxLoggedOutput bounds the observation text kept in trace log entries.
const maxLoggedOutput = 2000

// HardStopMarker prefixes observations that must terminate the agent loop
// immediately, e.g. after repeated invalid tool calls.
const HardStopMarker = "[TOOL_LOOP_ABORTED]"

// IsHardStop reports whether an observation demands loop termination.
func IsHardStop(observation string) bool {
	return strings.HasPrefix(strings.TrimSpace(observation), HardStopMarker)
}

// Tool is one callable the agent can dispatch. Execute returns the
// observation text; errors are converted to observations by the registry.
type Tool interface {
	Name() string
	Description() string
	InputSchema() *jsonschema.Schema
	Execute(ctx context.Context, tc *ToolContext, input string) (string, error)
}

// timeoutOverride lets a tool replace the registry's default call budget,
// e.g. graph_search needs the longer graph window.
type timeoutOverride interface {
	CallTimeout() time.Duration
}

// reflectSchema builds an inline schema (no $defs indirection) for a tool
// input struct, so catalogs can list the fields directly.
func reflectSchema(v any) *jsonschema.Schema {
	r := jsonschema.Reflector{DoNotReference: true}
	return r.Reflect(v)
}

// decodeString extracts a string argument from a tool input that may
// arrive as a JSON object (checked against keys in order), a JSON-quoted
// string, or bare text.
func decodeString(raw string, keys ...string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", apperrors.Validation("TOOL_INPUT_EMPTY", "tool input must not be empty")
	}

	if strings.HasPrefix(s, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return "", apperrors.Validation("TOOL_INPUT_MALFORMED", "tool input is not valid JSON: "+err.Error())
		}
		for _, key := range keys {
			if v, ok := obj[key].(string); ok {
				if v = strings.TrimSpace(v); v != "" {
					return v, nil
				}
			}
		}
		return "", apperrors.Validation("TOOL_INPUT_MISSING", "tool input is missing required field "+strings.Join(keys, "/"))
	}

	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			if v = strings.TrimSpace(v); v != "" {
				return v, nil
			}
			return "", apperrors.Validation("TOOL_INPUT_EMPTY", "tool input must not be empty")
		}
	}

	return s, nil
}

// decodeOptional pulls an optional field out of a JSON-object input,
// returning "" when absent or when the input is not an object.
func decodeOptional(raw, key string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "{") {
		return ""
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return ""
	}
	if v, ok := obj[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// truncate clips s to n runes, appending an ellipsis when cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
