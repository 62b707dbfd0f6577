package jsoncompact

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compactJSON(t *testing.T, input string, opts *Options) map[string]any {
	t.Helper()
	out, err := Compact([]byte(input), opts)
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(out, &parsed))
	return parsed
}

func TestCompactTrimsLongArrays(t *testing.T) {
	parsed := compactJSON(t, `{"items": [1, 2, 3, 4, 5, 6, 7, 8, 9, 10]}`, &Options{MaxArrayItems: 3})

	items := parsed["items"].([]any)
	assert.Equal(t, []any{float64(1), float64(2), float64(3), "... (7 more items)"}, items)
}

func TestCompactKeepsArraysWithinLimit(t *testing.T) {
	parsed := compactJSON(t, `{"items": [1, 2, 3]}`, &Options{MaxArrayItems: 5})

	items := parsed["items"].([]any)
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, items)
}

func TestCompactRecursesIntoKeptItems(t *testing.T) {
	input := `{
		"orders": [
			{"id": "ord_1", "lines": ["a", "b", "c", "d", "e"]},
			{"id": "ord_2", "lines": ["x", "y", "z", "w"]},
			{"id": "ord_3", "lines": ["1", "2"]},
			{"id": "ord_4", "lines": []},
			{"id": "ord_5", "lines": ["only"]}
		]
	}`
	parsed := compactJSON(t, input, &Options{MaxArrayItems: 3})

	orders := parsed["orders"].([]any)
	require.Len(t, orders, 4, "three orders plus the marker")
	assert.Equal(t, "... (2 more items)", orders[3])

	// Arrays inside kept items are trimmed too.
	first := orders[0].(map[string]any)
	lines := first["lines"].([]any)
	require.Len(t, lines, 4)
	assert.Equal(t, "... (2 more items)", lines[3])
}

func TestCompactEmptyContainers(t *testing.T) {
	parsed := compactJSON(t, `{"items": [], "meta": {}}`, &Options{MaxArrayItems: 3})

	assert.Empty(t, parsed["items"])
	assert.Empty(t, parsed["meta"])
}

func TestCompactEmptyInput(t *testing.T) {
	out, err := Compact(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCompactNilOptionsUseDefaults(t *testing.T) {
	parsed := compactJSON(t, `{"items": [1, 2, 3, 4, 5]}`, nil)

	// DefaultMaxArrayItems is 3, so two items collapse into the marker.
	items := parsed["items"].([]any)
	require.Len(t, items, 4)
	assert.Equal(t, "... (2 more items)", items[3])
}

func TestCompactRejectsNonJSON(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"truncated", `{"items": [1, 2, 3`},
		{"html", `<html><body>login</body></html>`},
		{"xml", `<?xml version="1.0"?><feed></feed>`},
		{"plain text", `service unavailable`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compact([]byte(tc.input), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid JSON")
		})
	}
}

func TestCompactFloorsDeepTrees(t *testing.T) {
	input := `{"data": {"page": {"rows": {"cells": [1, 2, 3]}}}}`
	parsed := compactJSON(t, input, &Options{MaxArrayItems: 3, MaxDepth: 3})

	data := parsed["data"].(map[string]any)
	page := data["page"].(map[string]any)
	assert.Equal(t, "[max depth]", page["rows"])
}

func TestCompactZeroBoundsDisable(t *testing.T) {
	long := strings.Repeat("x", 600)
	input := `{"items": [1, 2, 3, 4, 5], "note": "` + long + `"}`
	parsed := compactJSON(t, input, &Options{})

	assert.Len(t, parsed["items"], 5)
	assert.Equal(t, long, parsed["note"])
}

func TestCompactValueDoesNotMutateInput(t *testing.T) {
	input := map[string]any{
		"hits": []any{"a", "b", "c", "d"},
	}

	got := CompactValue(input, &Options{MaxArrayItems: 2})

	hits := got.(map[string]any)["hits"].([]any)
	require.Len(t, hits, 3)
	assert.Equal(t, "... (2 more items)", hits[2])
	assert.Len(t, input["hits"], 4, "caller's value stays intact")
}

func TestCompactPreservesScalars(t *testing.T) {
	input := `{
		"name": "list invoices",
		"count": 42,
		"score": 0.93,
		"active": true,
		"deleted_at": null,
		"meta": {"domain": "shop.example.com"}
	}`
	parsed := compactJSON(t, input, &Options{MaxArrayItems: 3})

	assert.Equal(t, "list invoices", parsed["name"])
	assert.Equal(t, float64(42), parsed["count"])
	assert.Equal(t, 0.93, parsed["score"])
	assert.Equal(t, true, parsed["active"])
	assert.Nil(t, parsed["deleted_at"])
	assert.Equal(t, "shop.example.com", parsed["meta"].(map[string]any)["domain"])
}

func TestCompactTruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("token", 20) // 100 chars
	parsed := compactJSON(t, `{"body": "`+long+`"}`, &Options{MaxStringLen: 40})

	body := parsed["body"].(string)
	assert.True(t, strings.HasPrefix(body, long[:40]))
	assert.Contains(t, body, "... (60 more chars)")

	// Strings within the bound pass through untouched.
	parsed = compactJSON(t, `{"body": "short"}`, &Options{MaxStringLen: 40})
	assert.Equal(t, "short", parsed["body"])
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, DefaultMaxArrayItems, opts.MaxArrayItems)
	assert.Equal(t, DefaultMaxStringLen, opts.MaxStringLen)
	assert.Equal(t, DefaultMaxDepth, opts.MaxDepth)
}
