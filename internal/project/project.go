// Package project narrows raw skill results to the fields a caller
// actually needs. Stored per-endpoint recipes and ad-hoc projections
// share one pipeline; the transform order is fixed: path, extract,
// limit, filter, require, compact, jq, rename. Each step is a no-op
// when its field is unset, and steps that only make sense on arrays
// pass other shapes through untouched.
package project

import (
	"reflect"
	"strings"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/pkg/jsonpath"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// Apply runs recipe over result. The boolean reports whether any
// transform ran; callers slim the execution trace when it did.
func Apply(result any, recipe *types.Recipe) (any, bool, error) {
	if recipe.Empty() {
		return result, false, nil
	}
	out := result
	if recipe.Path != "" {
		v, ok := jsonpath.Expand(out, recipe.Path)
		if !ok {
			v = nil
		}
		out = v
	}
	if recipe.Extract != "" {
		out = extract(out, parseExtract(recipe.Extract))
	}
	if recipe.Limit > 0 {
		if arr, ok := out.([]any); ok && len(arr) > recipe.Limit {
			out = arr[:recipe.Limit]
		}
	}
	if recipe.Filter != nil && recipe.Filter.Field != "" {
		out = filter(out, recipe.Filter)
	}
	if len(recipe.Require) > 0 {
		out = require(out, recipe.Require)
	}
	if recipe.Compact {
		out, _ = compact(out)
	}
	if recipe.JQ != "" {
		v, err := applyJQ(out, recipe.JQ)
		if err != nil {
			return nil, false, err
		}
		out = v
	}
	if len(recipe.Rename) > 0 {
		out = rename(out, recipe.Rename)
	}
	return out, true, nil
}

// Validate rejects recipes that could never apply cleanly. Stored
// recipes are checked once at save time so the resolve path never
// fails on recipe syntax.
func Validate(r *types.Recipe) error {
	if r.Empty() {
		return fault.New(fault.CodeInput, "recipe has no transforms")
	}
	if r.Limit < 0 {
		return fault.Input("recipe limit cannot be negative, got %d", r.Limit)
	}
	if r.Filter != nil && r.Filter.Field == "" {
		return fault.New(fault.CodeInput, "recipe filter requires a field")
	}
	for _, f := range r.Require {
		if strings.TrimSpace(f) == "" {
			return fault.New(fault.CodeInput, "recipe require lists an empty field")
		}
	}
	if r.Extract != "" && len(parseExtract(r.Extract)) == 0 {
		return fault.Input("recipe extract %q has no usable fields", r.Extract)
	}
	if r.JQ != "" {
		if err := ValidateJQ(r.JQ); err != nil {
			return err
		}
	}
	return nil
}

// extractField is one "alias:path" entry of an extract spec.
type extractField struct {
	alias string
	path  string
}

// parseExtract splits "name:user.name,text:text" into fields. The
// alias defaults to the last path segment; entries with no usable
// alias or path are dropped.
func parseExtract(spec string) []extractField {
	var out []extractField
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		alias, path, ok := strings.Cut(part, ":")
		if !ok {
			path = part
			alias = lastSegment(part)
		}
		alias = strings.TrimSpace(alias)
		path = strings.TrimSpace(path)
		if alias == "" || path == "" {
			continue
		}
		out = append(out, extractField{alias: alias, path: path})
	}
	return out
}

func lastSegment(path string) string {
	segs := strings.Split(path, ".")
	last := segs[len(segs)-1]
	for strings.HasSuffix(last, "[]") {
		last = last[:len(last)-2]
	}
	return last
}

// extract builds {alias: value} rows. Array inputs drop rows where no
// field resolved, which handles decorator-pattern feeds whose items
// have disjoint shapes. A lone object becomes one row; scalars pass
// through.
func extract(v any, fields []extractField) any {
	if len(fields) == 0 {
		return v
	}
	switch val := v.(type) {
	case []any:
		rows := make([]any, 0, len(val))
		for _, item := range val {
			row := extractRow(item, fields)
			if len(row) == 0 {
				continue
			}
			rows = append(rows, row)
		}
		return rows
	case map[string]any:
		return extractRow(val, fields)
	default:
		return v
	}
}

func extractRow(item any, fields []extractField) map[string]any {
	row := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := jsonpath.Get(item, f.path); ok {
			row[f.alias] = v
		}
	}
	return row
}

// filter keeps array items whose field strictly equals the literal.
// A missing field never matches, even against null.
func filter(v any, f *types.RecipeFilter) any {
	arr, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, 0, len(arr))
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		got, ok := m[f.Field]
		if !ok {
			continue
		}
		if literalEqual(got, f.Equals) {
			out = append(out, item)
		}
	}
	return out
}

// literalEqual compares JSON values, folding Go integer literals into
// the float64 family json.Unmarshal produces.
func literalEqual(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// require drops array items missing any named field, or carrying it
// as null or an empty string. Non-object items cannot satisfy a
// requirement and are dropped too.
func require(v any, fields []string) any {
	arr, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, 0, len(arr))
	for _, item := range arr {
		if hasRequired(item, fields) {
			out = append(out, item)
		}
	}
	return out
}

func hasRequired(item any, fields []string) bool {
	m, ok := item.(map[string]any)
	if !ok {
		return false
	}
	for _, f := range fields {
		v, ok := m[f]
		if !ok || v == nil {
			return false
		}
		if s, isStr := v.(string); isStr && s == "" {
			return false
		}
	}
	return true
}

// compact recursively strips null, empty strings, empty arrays, and
// empty objects. Zero and false survive. The boolean reports whether
// a parent container should keep v; the root is kept regardless.
func compact(v any) (any, bool) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			if c, keep := compact(child); keep {
				out[k] = c
			}
		}
		return out, len(out) > 0
	case []any:
		out := make([]any, 0, len(val))
		for _, child := range val {
			if c, keep := compact(child); keep {
				out = append(out, c)
			}
		}
		return out, len(out) > 0
	case string:
		return val, val != ""
	case nil:
		return nil, false
	default:
		return v, true
	}
}

// rename maps top-level row keys to new names. It copies rather than
// mutating so the raw result stays intact for the trace.
func rename(v any, names map[string]string) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = rename(item, names)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if to, ok := names[k]; ok && to != "" {
				k = to
			}
			out[k] = inner
		}
		return out
	default:
		return v
	}
}
