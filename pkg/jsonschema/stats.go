package jsonschema

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
)

// FieldStat describes one field of a JSON body across samples. The
// capture pipeline embeds these in reference docs next to the schema.
type FieldStat struct {
	Path          string   `json:"path"`
	Type          string   `json:"type"`
	Frequency     float64  `json:"frequency"`
	Required      bool     `json:"required"`
	Nullable      bool     `json:"nullable,omitempty"`
	DistinctCount int      `json:"distinct_count"`
	Examples      []any    `json:"examples,omitempty"`
	Format        string   `json:"format,omitempty"`
	EnumValues    []string `json:"enum_values,omitempty"`
}

const (
	maxStatsDepth       = 4
	maxExamples         = 3
	minSamplesForFormat = 2
	maxEnumDistinct     = 10
)

var formatMatchers = []struct {
	name string
	re   *regexp.Regexp
}{
	{"uuid", regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)},
	{"iso8601", regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+-]\d{2}:?\d{2})?)?$`)},
	{"url", regexp.MustCompile(`^https?://\S+$`)},
	{"email", regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)},
}

// ComputeFieldStats walks an inferred schema and computes per-field
// frequency, nullability, distinct counts and format hints from parsed
// samples.
func ComputeFieldStats(schema *jsonschema.Schema, samples []any) []FieldStat {
	if schema == nil || len(samples) == 0 {
		return nil
	}

	// An array root is described by its item fields.
	if schema.Type == "array" && schema.Items != nil {
		var items []any
		for _, sample := range samples {
			if arr, ok := sample.([]any); ok {
				for _, item := range arr {
					if item != nil {
						items = append(items, item)
					}
				}
			}
		}
		var stats []FieldStat
		walkSchema(schema.Items, "[]", items, 0, &stats)
		return stats
	}

	var stats []FieldStat
	walkSchema(schema, "", samples, 0, &stats)
	return stats
}

func walkSchema(schema *jsonschema.Schema, path string, samples []any, depth int, stats *[]FieldStat) {
	if depth >= maxStatsDepth || schema == nil {
		return
	}
	if schema.Type != "object" || schema.Properties == nil {
		return
	}

	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		name := pair.Key
		propSchema := pair.Value

		fieldPath := name
		if path != "" {
			fieldPath = path + "." + name
		}

		*stats = append(*stats, fieldStat(fieldPath, propSchema, name, samples))

		if propSchema.Type == "object" && propSchema.Properties != nil {
			walkSchema(propSchema, fieldPath, childValues(name, samples), depth+1, stats)
		}
		if propSchema.Type == "array" && propSchema.Items != nil && propSchema.Items.Type == "object" {
			walkSchema(propSchema.Items, fieldPath+"[]", arrayItems(name, samples), depth+1, stats)
		}
	}
}

func fieldStat(path string, schema *jsonschema.Schema, name string, samples []any) FieldStat {
	stat := FieldStat{Path: path, Type: schemaType(schema)}

	present, nulls := 0, 0
	distinct := make(map[string]bool)
	var examples []any
	var stringValues []string

	for _, sample := range samples {
		obj, ok := sample.(map[string]any)
		if !ok {
			continue
		}
		value, exists := obj[name]
		if !exists {
			continue
		}
		present++
		if value == nil {
			nulls++
			continue
		}

		key := fmt.Sprintf("%v", value)
		if !distinct[key] {
			distinct[key] = true
			// Containers are described by their child stats, not examples.
			switch value.(type) {
			case map[string]any, []any:
			default:
				if len(examples) < maxExamples {
					examples = append(examples, value)
				}
			}
		}
		if s, ok := value.(string); ok {
			stringValues = append(stringValues, s)
		}
	}

	if len(samples) > 0 {
		stat.Frequency = float64(present) / float64(len(samples))
	}
	stat.Required = present == len(samples) && nulls == 0
	stat.Nullable = nulls > 0
	stat.DistinctCount = len(distinct)
	stat.Examples = examples

	if stat.Type == "string" && len(stringValues) >= minSamplesForFormat {
		stat.Format, stat.EnumValues = detectFormat(stringValues)
	}
	return stat
}

func detectFormat(values []string) (string, []string) {
	for _, m := range formatMatchers {
		all := true
		for _, v := range values {
			if !m.re.MatchString(v) {
				all = false
				break
			}
		}
		if all {
			return m.name, nil
		}
	}

	distinct := make(map[string]bool)
	for _, v := range values {
		distinct[v] = true
	}
	if len(distinct) <= maxEnumDistinct {
		enum := make([]string, 0, len(distinct))
		for v := range distinct {
			enum = append(enum, v)
		}
		sort.Strings(enum)
		return "enum", enum
	}
	return "", nil
}

func childValues(name string, samples []any) []any {
	var out []any
	for _, sample := range samples {
		if obj, ok := sample.(map[string]any); ok {
			if v, exists := obj[name]; exists && v != nil {
				out = append(out, v)
			}
		}
	}
	return out
}

func arrayItems(name string, samples []any) []any {
	var out []any
	for _, sample := range samples {
		obj, ok := sample.(map[string]any)
		if !ok {
			continue
		}
		if arr, ok := obj[name].([]any); ok {
			for _, item := range arr {
				if item != nil {
					out = append(out, item)
				}
			}
		}
	}
	return out
}

func schemaType(schema *jsonschema.Schema) string {
	if schema.Type != "" {
		return schema.Type
	}
	if len(schema.AnyOf) > 0 {
		types := make([]string, 0, len(schema.AnyOf))
		for _, s := range schema.AnyOf {
			if s.Type != "" {
				types = append(types, s.Type)
			}
		}
		return strings.Join(types, "|")
	}
	return "unknown"
}
