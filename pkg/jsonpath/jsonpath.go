// Package jsonpath implements the dot-path dialect used across
// correlation, replay injection, and projection: segments separated by
// dots, with "[]" marking array items ("data.items[].user.name").
//
// The dialect is deliberately tiny. "[]" means "any item" on reads
// (first non-nil match wins), "every item" on writes, and "flatten"
// when expanding for projection. Numeric segments address array
// indices. There are no filters or wildcards.
package jsonpath

import (
	"sort"
	"strconv"
	"strings"
)

// Leaf is one scalar leaf of a JSON value, addressed by dot-path.
type Leaf struct {
	Path  string
	Value any
}

// splitPath breaks "a.b[].c" into walkable segments. A segment may be
// "items[]", "items[][]" or bare "[]"; each trailing marker becomes its
// own segment.
func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	var out []string
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			continue
		}
		base := seg
		var markers int
		for strings.HasSuffix(base, "[]") {
			base = base[:len(base)-2]
			markers++
		}
		if base != "" {
			out = append(out, base)
		}
		for i := 0; i < markers; i++ {
			out = append(out, "[]")
		}
	}
	return out
}

// Get returns the first value reachable at path. For "[]" segments the
// array items are tried in order and the first non-nil resolution wins.
// The boolean is false when nothing resolves.
func Get(v any, path string) (any, bool) {
	return get(v, splitPath(path))
}

func get(v any, segs []string) (any, bool) {
	if len(segs) == 0 {
		if v == nil {
			return nil, false
		}
		return v, true
	}
	seg, rest := segs[0], segs[1:]

	switch val := v.(type) {
	case map[string]any:
		if seg == "[]" {
			return nil, false
		}
		child, ok := val[seg]
		if !ok {
			return nil, false
		}
		return get(child, rest)
	case []any:
		if seg == "[]" {
			for _, item := range val {
				if out, ok := get(item, rest); ok {
					return out, true
				}
			}
			return nil, false
		}
		if idx, err := strconv.Atoi(seg); err == nil && idx >= 0 && idx < len(val) {
			return get(val[idx], rest)
		}
		return nil, false
	default:
		return nil, false
	}
}

// Expand resolves path with "[]" flattening: each marker flattens one
// array level and the remaining segments apply to every element.
// Elements that do not resolve are dropped. When the path contains no
// marker the result is the single resolved value (or nil, false).
func Expand(v any, path string) (any, bool) {
	segs := splitPath(path)
	hasMarker := false
	for _, s := range segs {
		if s == "[]" {
			hasMarker = true
			break
		}
	}
	if !hasMarker {
		return get(v, segs)
	}
	out := expand(v, segs)
	if out == nil {
		return nil, false
	}
	return out, true
}

func expand(v any, segs []string) []any {
	if len(segs) == 0 {
		if v == nil {
			return nil
		}
		return []any{v}
	}
	seg, rest := segs[0], segs[1:]

	switch val := v.(type) {
	case map[string]any:
		if seg == "[]" {
			return nil
		}
		child, ok := val[seg]
		if !ok {
			return nil
		}
		return expandOrGet(child, rest)
	case []any:
		if seg == "[]" {
			var out []any
			for _, item := range val {
				out = append(out, expandOrGet(item, rest)...)
			}
			return out
		}
		if idx, err := strconv.Atoi(seg); err == nil && idx >= 0 && idx < len(val) {
			return expandOrGet(val[idx], rest)
		}
		return nil
	default:
		return nil
	}
}

// expandOrGet keeps single-result walks scalar until the next marker.
func expandOrGet(v any, segs []string) []any {
	hasMarker := false
	for _, s := range segs {
		if s == "[]" {
			hasMarker = true
			break
		}
	}
	if !hasMarker {
		if out, ok := get(v, segs); ok {
			return []any{out}
		}
		return nil
	}
	return expand(v, segs)
}

// Set writes val at path, creating intermediate objects for missing map
// segments. "[]" applies the write to every array element. Returns the
// (possibly replaced) root.
func Set(v any, path string, val any) any {
	segs := splitPath(path)
	if len(segs) == 0 {
		return val
	}
	return set(v, segs, val)
}

func set(v any, segs []string, val any) any {
	seg, rest := segs[0], segs[1:]

	if seg == "[]" {
		arr, ok := v.([]any)
		if !ok {
			return v
		}
		for i := range arr {
			if len(rest) == 0 {
				arr[i] = val
			} else {
				arr[i] = set(arr[i], rest, val)
			}
		}
		return arr
	}

	if idx, err := strconv.Atoi(seg); err == nil {
		if arr, ok := v.([]any); ok {
			if idx < 0 || idx >= len(arr) {
				return arr
			}
			if len(rest) == 0 {
				arr[idx] = val
			} else {
				arr[idx] = set(arr[idx], rest, val)
			}
			return arr
		}
	}

	obj, ok := v.(map[string]any)
	if !ok {
		obj = make(map[string]any)
	}
	if len(rest) == 0 {
		obj[seg] = val
	} else {
		obj[seg] = set(obj[seg], rest, val)
	}
	return obj
}

// Leaves enumerates every scalar leaf of v with its dot-path, arrays
// marked by "[]". A scalar root yields one leaf with an empty path.
func Leaves(v any) []Leaf {
	var out []Leaf
	walkLeaves(v, "", &out)
	return out
}

func walkLeaves(v any, path string, out *[]Leaf) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkLeaves(val[k], joinPath(path, k), out)
		}
	case []any:
		for _, item := range val {
			walkLeaves(item, path+"[]", out)
		}
	case nil:
		// nulls are not candidate values
	default:
		*out = append(*out, Leaf{Path: path, Value: val})
	}
}

func joinPath(base, seg string) string {
	if base == "" {
		return seg
	}
	return base + "." + seg
}
