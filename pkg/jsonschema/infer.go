// Package jsonschema infers schemas from captured JSON bodies. It
// produces two views: a lightweight fieldName -> type-tag map used in
// skill manifests, and a full JSON Schema (Draft 2020-12) used for
// reference documentation and input validation.
package jsonschema

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/invopop/jsonschema"
)

// InferredSchema is a full JSON Schema inferred from sample bodies.
type InferredSchema struct {
	Schema      *jsonschema.Schema `json:"schema"`
	SampleCount int                `json:"sample_count"`
	AllMatch    bool               `json:"all_match"`
}

// InferOptions controls full-schema inference.
type InferOptions struct {
	// StrictRequired marks a property required only when present in every
	// sample. With a single sample every present field is required.
	StrictRequired bool
	// AdditionalProperties, when non-nil, is stamped on every object schema.
	AdditionalProperties *bool
	// MarkNullableAsOptional keeps fields that were ever null out of required.
	MarkNullableAsOptional bool
}

// DefaultInferOptions returns the defaults used by the capture pipeline.
func DefaultInferOptions() *InferOptions {
	return &InferOptions{StrictRequired: true, MarkNullableAsOptional: true}
}

// Infer generates a merged JSON Schema from one or more raw JSON samples.
// Unparseable samples are skipped; nil is returned when nothing parses.
func Infer(samples ...[]byte) (*InferredSchema, error) {
	return InferWithOptions(DefaultInferOptions(), samples...)
}

// InferWithOptions is Infer with explicit options.
func InferWithOptions(opts *InferOptions, samples ...[]byte) (*InferredSchema, error) {
	if opts == nil {
		opts = DefaultInferOptions()
	}

	parsed := make([]any, 0, len(samples))
	for _, data := range samples {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			continue
		}
		parsed = append(parsed, v)
	}
	if len(parsed) == 0 {
		return nil, nil
	}

	schemas := make([]*jsonschema.Schema, 0, len(parsed))
	for _, v := range parsed {
		schemas = append(schemas, InferFromValue(v))
	}

	allMatch := true
	if len(schemas) > 1 {
		first, _ := json.Marshal(schemas[0])
		for _, s := range schemas[1:] {
			other, _ := json.Marshal(s)
			if string(first) != string(other) {
				allMatch = false
				break
			}
		}
	}

	merged := mergeSchemas(schemas)
	if opts.StrictRequired && merged.Type == "object" {
		computeRequiredFields(merged, parsed, opts.MarkNullableAsOptional)
	}
	if opts.AdditionalProperties != nil {
		applyAdditionalProperties(merged, *opts.AdditionalProperties)
	}

	return &InferredSchema{Schema: merged, SampleCount: len(schemas), AllMatch: allMatch}, nil
}

// InferFromValue generates a JSON Schema from an already-parsed value.
// json.Unmarshal into any only ever yields nil, bool, float64, string,
// []any and map[string]any, so those are the cases handled.
func InferFromValue(v any) *jsonschema.Schema {
	switch val := v.(type) {
	case nil:
		return &jsonschema.Schema{Type: "null"}
	case bool:
		return &jsonschema.Schema{Type: "boolean"}
	case float64:
		if math.Trunc(val) == val && !math.IsInf(val, 0) {
			return &jsonschema.Schema{Type: "integer"}
		}
		return &jsonschema.Schema{Type: "number"}
	case string:
		return &jsonschema.Schema{Type: "string"}
	case []any:
		schema := &jsonschema.Schema{Type: "array"}
		if len(val) == 0 {
			return schema
		}
		items := make([]*jsonschema.Schema, 0, len(val))
		for _, item := range val {
			items = append(items, InferFromValue(item))
		}
		schema.Items = mergeSchemas(items)
		return schema
	case map[string]any:
		schema := &jsonschema.Schema{Type: "object", Properties: jsonschema.NewProperties()}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			schema.Properties.Set(k, InferFromValue(val[k]))
		}
		return schema
	default:
		return &jsonschema.Schema{}
	}
}

func mergeSchemas(schemas []*jsonschema.Schema) *jsonschema.Schema {
	if len(schemas) == 0 {
		return &jsonschema.Schema{}
	}
	if len(schemas) == 1 {
		return schemas[0]
	}

	types := make(map[string]bool)
	var objects, arrays []*jsonschema.Schema
	for _, s := range schemas {
		if s.Type == "" {
			continue
		}
		types[s.Type] = true
		switch s.Type {
		case "object":
			objects = append(objects, s)
		case "array":
			arrays = append(arrays, s)
		}
	}

	if len(types) == 1 {
		switch {
		case len(objects) > 0:
			return mergeObjectSchemas(objects)
		case len(arrays) > 0:
			return mergeArraySchemas(arrays)
		default:
			return schemas[0]
		}
	}

	// Mixed types become anyOf; invopop has no direct type-array support.
	typeList := make([]string, 0, len(types))
	for t := range types {
		if t != "object" && t != "array" {
			typeList = append(typeList, t)
		}
	}
	sort.Strings(typeList)

	anyOf := make([]*jsonschema.Schema, 0, len(typeList)+2)
	if len(objects) > 0 {
		anyOf = append(anyOf, mergeObjectSchemas(objects))
	}
	if len(arrays) > 0 {
		anyOf = append(anyOf, mergeArraySchemas(arrays))
	}
	for _, t := range typeList {
		anyOf = append(anyOf, &jsonschema.Schema{Type: t})
	}
	if len(anyOf) == 1 {
		return anyOf[0]
	}
	return &jsonschema.Schema{AnyOf: anyOf}
}

func mergeObjectSchemas(schemas []*jsonschema.Schema) *jsonschema.Schema {
	if len(schemas) == 1 {
		return schemas[0]
	}
	props := make(map[string][]*jsonschema.Schema)
	for _, s := range schemas {
		if s.Properties == nil {
			continue
		}
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			props[pair.Key] = append(props[pair.Key], pair.Value)
		}
	}

	merged := &jsonschema.Schema{Type: "object", Properties: jsonschema.NewProperties()}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged.Properties.Set(k, mergeSchemas(props[k]))
	}
	return merged
}

func mergeArraySchemas(schemas []*jsonschema.Schema) *jsonschema.Schema {
	if len(schemas) == 1 {
		return schemas[0]
	}
	items := make([]*jsonschema.Schema, 0, len(schemas))
	for _, s := range schemas {
		if s.Items != nil {
			items = append(items, s.Items)
		}
	}
	return &jsonschema.Schema{Type: "array", Items: mergeSchemas(items)}
}

// computeRequiredFields marks properties present (and never null, when
// markNullableAsOptional) in every sample as required, recursing into
// nested objects and arrays of objects.
func computeRequiredFields(schema *jsonschema.Schema, samples []any, markNullableAsOptional bool) {
	if schema.Type != "object" || schema.Properties == nil {
		return
	}

	counts := make(map[string]int)
	nullable := make(map[string]bool)
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		counts[pair.Key] = 0
	}
	for _, sample := range samples {
		obj, ok := sample.(map[string]any)
		if !ok {
			continue
		}
		for key, value := range obj {
			if _, tracked := counts[key]; tracked {
				counts[key]++
				if value == nil {
					nullable[key] = true
				}
			}
		}
	}

	var required []string
	for key, count := range counts {
		if count != len(samples) {
			continue
		}
		if markNullableAsOptional && nullable[key] {
			continue
		}
		required = append(required, key)
	}
	sort.Strings(required)
	if len(required) > 0 {
		schema.Required = required
	}

	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		switch {
		case pair.Value.Type == "object":
			var nested []any
			for _, sample := range samples {
				if obj, ok := sample.(map[string]any); ok {
					if child, exists := obj[pair.Key]; exists && child != nil {
						nested = append(nested, child)
					}
				}
			}
			if len(nested) > 0 {
				computeRequiredFields(pair.Value, nested, markNullableAsOptional)
			}
		case pair.Value.Type == "array" && pair.Value.Items != nil && pair.Value.Items.Type == "object":
			var nested []any
			for _, sample := range samples {
				obj, ok := sample.(map[string]any)
				if !ok {
					continue
				}
				if arr, ok := obj[pair.Key].([]any); ok {
					for _, item := range arr {
						if item != nil {
							nested = append(nested, item)
						}
					}
				}
			}
			if len(nested) > 0 {
				computeRequiredFields(pair.Value.Items, nested, markNullableAsOptional)
			}
		}
	}
}

// applyAdditionalProperties recursively stamps additionalProperties on
// every object schema, including those under array items and anyOf.
func applyAdditionalProperties(schema *jsonschema.Schema, allowed bool) {
	if schema == nil {
		return
	}
	if schema.Type == "object" {
		if allowed {
			schema.AdditionalProperties = jsonschema.TrueSchema
		} else {
			schema.AdditionalProperties = jsonschema.FalseSchema
		}
		if schema.Properties != nil {
			for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
				applyAdditionalProperties(pair.Value, allowed)
			}
		}
	}
	if schema.Type == "array" && schema.Items != nil {
		applyAdditionalProperties(schema.Items, allowed)
	}
	for _, s := range schema.AnyOf {
		applyAdditionalProperties(s, allowed)
	}
}
