package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var tokenPattern = regexp.MustCompile(`\{(.*?)\}`)

// ResolveTemplate substitutes {key} tokens in a template with values from the
// context. A token may also be a jsonpath expression ({$.order.amount}).
// Missing keys substitute to the empty string, never an error.
func ResolveTemplate(template string, context map[string]any) string {
	result := template
	for _, token := range tokenPattern.FindAllString(template, -1) {
		name := strings.TrimSuffix(strings.TrimPrefix(token, "{"), "}")
		var value any
		var ok bool
		if strings.HasPrefix(name, "$") {
			v, err := jsonpath.JsonPathLookup(context, name)
			value, ok = v, err == nil
		} else {
			value, ok = context[name]
		}
		if !ok || value == nil {
			result = strings.ReplaceAll(result, token, "")
			continue
		}
		result = strings.ReplaceAll(result, token, fmt.Sprintf("%v", value))
	}
	return result
}

// ResolveParams walks a configuration bag and resolves every string value:
// whole-string jsonpath references ($.key) resolve to the looked-up value
// preserving its type, everything else goes through template substitution.
// Nested maps and lists are resolved recursively.
func ResolveParams(context map[string]any, params map[string]any) map[string]any {
	output := make(map[string]any)
	resolveParams(context, params, output)
	return output
}

func resolveParams(context map[string]any, params map[string]any, output map[string]any) {
	for k, v := range params {
		output[k] = resolveValue(context, v)
	}
}

func resolveValue(context map[string]any, v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any)
		resolveParams(context, val, out)
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, resolveValue(context, item))
		}
		return out
	case string:
		if strings.HasPrefix(val, "$") {
			value, err := jsonpath.JsonPathLookup(context, val)
			if err != nil {
				return ""
			}
			return value
		}
		return ResolveTemplate(val, context)
	default:
		return v
	}
}
