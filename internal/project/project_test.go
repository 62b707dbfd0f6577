package project

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/pkg/types"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func asJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}

func TestApplyPathExtractLimit(t *testing.T) {
	raw := decode(t, `{"data":{"items":[
		{"user":{"name":"a"},"text":"t1"},
		{"user":{"name":"b"},"text":"t2"}
	]}}`)

	out, ran, err := Apply(raw, &types.Recipe{
		Path:    "data.items[]",
		Extract: "name:user.name,text:text",
		Limit:   1,
	})
	require.NoError(t, err)
	require.True(t, ran)
	require.JSONEq(t, `[{"name":"a","text":"t1"}]`, asJSON(t, out))
}

func TestApplyEmptyRecipeIsIdentity(t *testing.T) {
	raw := decode(t, `{"keep":"me"}`)

	out, ran, err := Apply(raw, nil)
	require.NoError(t, err)
	require.False(t, ran)
	require.Equal(t, raw, out)

	out, ran, err = Apply(raw, &types.Recipe{})
	require.NoError(t, err)
	require.False(t, ran)
	require.Equal(t, raw, out)
}

func TestApplyPathMissingBecomesNull(t *testing.T) {
	raw := decode(t, `{"data":{"items":[1,2]}}`)

	out, ran, err := Apply(raw, &types.Recipe{Path: "data.rows[]"})
	require.NoError(t, err)
	require.True(t, ran)
	require.Nil(t, out)
}

func TestExtractDefaultsAliasAndDropsEmptyRows(t *testing.T) {
	// Decorator-pattern feed: the second item is an ad unit with none
	// of the extracted fields and must vanish from the rows.
	raw := decode(t, `[
		{"user":{"name":"a"},"text":"t1"},
		{"ad":{"campaign":"c9"}},
		{"user":{"name":"b"}}
	]`)

	out, _, err := Apply(raw, &types.Recipe{Extract: "user.name,text"})
	require.NoError(t, err)
	require.JSONEq(t, `[{"name":"a","text":"t1"},{"name":"b"}]`, asJSON(t, out))
}

func TestExtractOnSingleObject(t *testing.T) {
	raw := decode(t, `{"user":{"name":"a","id":7},"noise":true}`)

	out, _, err := Apply(raw, &types.Recipe{Extract: "name:user.name,id:user.id"})
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"a","id":7}`, asJSON(t, out))
}

func TestApplyFilter(t *testing.T) {
	raw := decode(t, `[
		{"status":"active","n":1},
		{"status":"archived","n":2},
		{"n":3},
		{"status":"active","n":4}
	]`)

	out, _, err := Apply(raw, &types.Recipe{
		Filter: &types.RecipeFilter{Field: "status", Equals: "active"},
	})
	require.NoError(t, err)
	require.JSONEq(t, `[{"status":"active","n":1},{"status":"active","n":4}]`, asJSON(t, out))
}

func TestApplyFilterNumericLiteral(t *testing.T) {
	raw := decode(t, `[{"n":1},{"n":2},{"n":2.0}]`)

	// Handler code builds filters with Go ints; data carries float64.
	out, _, err := Apply(raw, &types.Recipe{
		Filter: &types.RecipeFilter{Field: "n", Equals: 2},
	})
	require.NoError(t, err)
	require.JSONEq(t, `[{"n":2},{"n":2}]`, asJSON(t, out))
}

func TestApplyFilterMissingFieldNeverMatchesNull(t *testing.T) {
	raw := decode(t, `[{"flag":null},{"other":1}]`)

	out, _, err := Apply(raw, &types.Recipe{
		Filter: &types.RecipeFilter{Field: "flag", Equals: nil},
	})
	require.NoError(t, err)
	require.JSONEq(t, `[{"flag":null}]`, asJSON(t, out))
}

func TestApplyRequire(t *testing.T) {
	raw := decode(t, `[
		{"email":"a@x.io","name":"a"},
		{"email":"","name":"blank"},
		{"email":null,"name":"null"},
		{"name":"missing"},
		{"email":"b@x.io"}
	]`)

	out, _, err := Apply(raw, &types.Recipe{Require: []string{"email"}})
	require.NoError(t, err)
	require.JSONEq(t, `[{"email":"a@x.io","name":"a"},{"email":"b@x.io"}]`, asJSON(t, out))
}

func TestApplyCompact(t *testing.T) {
	raw := decode(t, `{
		"id": 7,
		"zero": 0,
		"off": false,
		"empty": "",
		"none": null,
		"hollow": {"a": null, "b": ""},
		"list": [1, null, "", {"x": null}, 2]
	}`)

	out, _, err := Apply(raw, &types.Recipe{Compact: true})
	require.NoError(t, err)
	require.JSONEq(t, `{"id":7,"zero":0,"off":false,"list":[1,2]}`, asJSON(t, out))
}

func TestApplyJQ(t *testing.T) {
	raw := decode(t, `{"items":[{"name":"a","n":1},{"name":"b","n":2},{"name":"c","n":3}]}`)

	out, ran, err := Apply(raw, &types.Recipe{JQ: `.items[] | select(.n > 1) | .name`})
	require.NoError(t, err)
	require.True(t, ran)
	require.JSONEq(t, `["b","c"]`, asJSON(t, out))

	// A single output comes back bare, not wrapped in an array.
	out, _, err = Apply(raw, &types.Recipe{JQ: `.items | length`})
	require.NoError(t, err)
	require.JSONEq(t, `3`, asJSON(t, out))
}

func TestApplyJQAfterPath(t *testing.T) {
	raw := decode(t, `{"data":{"items":[{"n":1},{"n":2}]}}`)

	out, _, err := Apply(raw, &types.Recipe{
		Path: "data.items[]",
		JQ:   `map(.n) | add`,
	})
	require.NoError(t, err)
	require.JSONEq(t, `3`, asJSON(t, out))
}

func TestApplyJQInvalidExpression(t *testing.T) {
	_, _, err := Apply(decode(t, `{}`), &types.Recipe{JQ: `.items[`})
	require.Error(t, err)
	require.True(t, fault.Is(err, fault.CodeInput))
	require.Contains(t, err.Error(), "invalid jq expression")
}

func TestApplyJQRuntimeErrorCarriesHint(t *testing.T) {
	_, _, err := Apply(decode(t, `{"items":null}`), &types.Recipe{JQ: `.items[]`})
	require.Error(t, err)
	require.True(t, fault.Is(err, fault.CodeInput))
	require.Contains(t, err.Error(), "may not exist")
}

func TestApplyRenameCopies(t *testing.T) {
	raw := decode(t, `[{"name":"a","text":"t1"},{"name":"b"}]`)

	out, _, err := Apply(raw, &types.Recipe{Rename: map[string]string{"name": "author"}})
	require.NoError(t, err)
	require.JSONEq(t, `[{"author":"a","text":"t1"},{"author":"b"}]`, asJSON(t, out))

	// The raw result backs the unslimmed trace and must not mutate.
	require.JSONEq(t, `[{"name":"a","text":"t1"},{"name":"b"}]`, asJSON(t, raw))
}

func TestApplyProjectionAsRecipe(t *testing.T) {
	p := &types.Projection{Path: "data.items[]", Extract: "id", Limit: 2}
	raw := decode(t, `{"data":{"items":[{"id":1},{"id":2},{"id":3}]}}`)

	out, ran, err := Apply(raw, p.AsRecipe())
	require.NoError(t, err)
	require.True(t, ran)
	require.JSONEq(t, `[{"id":1},{"id":2}]`, asJSON(t, out))
}

func TestValidate(t *testing.T) {
	require.Error(t, Validate(&types.Recipe{}))
	require.Error(t, Validate(&types.Recipe{Limit: -1}))
	require.Error(t, Validate(&types.Recipe{Filter: &types.RecipeFilter{Equals: "x"}}))
	require.Error(t, Validate(&types.Recipe{Require: []string{"ok", " "}}))
	require.Error(t, Validate(&types.Recipe{Extract: " : , "}))
	require.Error(t, Validate(&types.Recipe{JQ: ".foo["}))

	require.NoError(t, Validate(&types.Recipe{
		Path:    "data.items[]",
		Extract: "name:user.name",
		Limit:   5,
		Filter:  &types.RecipeFilter{Field: "status", Equals: "active"},
		Require: []string{"name"},
		Compact: true,
		JQ:      `map(.name)`,
		Rename:  map[string]string{"name": "author"},
	}))
}

func TestParseExtract(t *testing.T) {
	fields := parseExtract("name:user.name, text:text ,id,tags[]")
	require.Len(t, fields, 4)
	require.Equal(t, extractField{alias: "name", path: "user.name"}, fields[0])
	require.Equal(t, extractField{alias: "text", path: "text"}, fields[1])
	require.Equal(t, extractField{alias: "id", path: "id"}, fields[2])
	require.Equal(t, extractField{alias: "tags", path: "tags[]"}, fields[3])
}
