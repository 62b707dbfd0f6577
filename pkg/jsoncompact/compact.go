// Package jsoncompact shrinks JSON values that would blow a display
// budget. Long arrays keep a head sample with a marker noting how many
// items were dropped, long strings keep a prefix, and deep trees can
// be floored. Tool handlers compact oversized results instead of
// failing them; the markers tell the caller to narrow the result with
// a projection rather than re-fetch.
package jsoncompact

import (
	"encoding/json"
	"fmt"
)

// Options bound the compacted shape. A zero bound disables that axis.
type Options struct {
	MaxArrayItems int // keep at most this many items per array
	MaxStringLen  int // truncate strings beyond this many bytes
	MaxDepth      int // replace subtrees at this depth with a marker
}

// Defaults used when no options are supplied.
const (
	DefaultMaxArrayItems = 3
	DefaultMaxStringLen  = 500
	DefaultMaxDepth      = 0 // unlimited
)

// DefaultOptions returns the stock display budget.
func DefaultOptions() *Options {
	return &Options{
		MaxArrayItems: DefaultMaxArrayItems,
		MaxStringLen:  DefaultMaxStringLen,
		MaxDepth:      DefaultMaxDepth,
	}
}

// Compact decodes data, compacts the value, and re-encodes it. Nil
// opts use DefaultOptions. Non-JSON input is an error.
func Compact(data []byte, opts *Options) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return json.Marshal(CompactValue(v, opts))
}

// CompactValue compacts a decoded JSON value. Nil opts use
// DefaultOptions. The input is never mutated; containers are copied.
func CompactValue(v any, opts *Options) any {
	if opts == nil {
		opts = DefaultOptions()
	}
	return opts.compact(v, 0)
}

func (o *Options) compact(v any, depth int) any {
	if o.MaxDepth > 0 && depth >= o.MaxDepth {
		return "[max depth]"
	}
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = o.compact(child, depth+1)
		}
		return out
	case []any:
		return o.compactArray(val, depth)
	case string:
		return o.compactString(val)
	default:
		return v
	}
}

func (o *Options) compactArray(arr []any, depth int) []any {
	keep := len(arr)
	if o.MaxArrayItems > 0 && keep > o.MaxArrayItems {
		keep = o.MaxArrayItems
	}
	out := make([]any, 0, keep+1)
	for _, item := range arr[:keep] {
		out = append(out, o.compact(item, depth+1))
	}
	if dropped := len(arr) - keep; dropped > 0 {
		out = append(out, fmt.Sprintf("... (%d more items)", dropped))
	}
	return out
}

func (o *Options) compactString(s string) string {
	if o.MaxStringLen <= 0 || len(s) <= o.MaxStringLen {
		return s
	}
	return s[:o.MaxStringLen] + fmt.Sprintf("... (%d more chars)", len(s)-o.MaxStringLen)
}
