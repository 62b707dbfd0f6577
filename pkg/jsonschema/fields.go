package jsonschema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Type tags for the compact fieldName -> tag schema maps stored in
// skill manifests.
const (
	TagString  = "string"
	TagNumber  = "number"
	TagBoolean = "boolean"
	TagNull    = "null"
	TagArray   = "array"
	TagObject  = "object"
)

const maxSummaryKeys = 12

// TagOf returns the type tag for a parsed JSON value.
func TagOf(v any) string {
	switch v.(type) {
	case nil:
		return TagNull
	case bool:
		return TagBoolean
	case float64:
		return TagNumber
	case string:
		return TagString
	case []any:
		return TagArray
	case map[string]any:
		return TagObject
	default:
		return TagString
	}
}

// GeneralTag merges two type tags observed for the same field. Null is
// sticky: a field seen null in any sample keeps the null tag so callers
// know not to rely on a concrete type. Any other mismatch widens to
// string, the one tag every JSON value has a rendering for.
func GeneralTag(a, b string) string {
	if a == b {
		return a
	}
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if a == TagNull || b == TagNull {
		return TagNull
	}
	return TagString
}

// FieldTypes builds a fieldName -> type tag map from parsed body samples.
// Object samples contribute their top-level keys. Array samples are
// flattened one level so list responses map their item fields. Scalar
// samples contribute nothing.
func FieldTypes(samples ...any) map[string]string {
	tags := make(map[string]string)
	for _, sample := range samples {
		collectFieldTags(sample, tags)
	}
	return tags
}

func collectFieldTags(sample any, tags map[string]string) {
	switch v := sample.(type) {
	case map[string]any:
		for key, value := range v {
			tags[key] = GeneralTag(tags[key], TagOf(value))
		}
	case []any:
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				collectFieldTags(obj, tags)
			}
		}
	}
}

// SafeParse parses text as JSON and returns nil instead of an error when
// it does not parse. Bare scalars ("42", "true", quoted strings) parse
// to their values.
func SafeParse(text string) any {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil
	}
	return v
}

// SummarizeBody renders a short human-readable shape string for a parsed
// body, like `array[2]<object{id,name}>`. Nesting is cut off at three
// levels.
func SummarizeBody(v any) string {
	return summarize(v, 0)
}

func summarize(v any, depth int) string {
	switch val := v.(type) {
	case nil:
		return TagNull
	case bool:
		return TagBoolean
	case float64:
		return TagNumber
	case string:
		return TagString
	case []any:
		if len(val) == 0 {
			return "array[0]"
		}
		if depth >= 3 {
			return fmt.Sprintf("array[%d]", len(val))
		}
		return fmt.Sprintf("array[%d]<%s>", len(val), summarize(val[0], depth+1))
	case map[string]any:
		if depth >= 3 {
			return "object{...}"
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > maxSummaryKeys {
			keys = append(keys[:maxSummaryKeys], "...")
		}
		return "object{" + strings.Join(keys, ",") + "}"
	default:
		return TagString
	}
}
