package types

// RecipeFilter keeps only items whose field equals a literal value.
type RecipeFilter struct {
	Field  string `json:"field"`
	Equals any    `json:"equals"`
}

// Recipe is a stored post-processing description that turns a raw skill
// response into the shape useful for the caller. Persisted per endpoint.
type Recipe struct {
	Path    string            `json:"path,omitempty"`
	Extract string            `json:"extract,omitempty"`
	Limit   int               `json:"limit,omitempty"`
	Filter  *RecipeFilter     `json:"filter,omitempty"`
	Require []string          `json:"require,omitempty"`
	Compact bool              `json:"compact,omitempty"`
	JQ      string            `json:"jq,omitempty"`
	Rename  map[string]string `json:"rename,omitempty"`
}

// Empty reports whether the recipe would leave its input untouched.
func (r *Recipe) Empty() bool {
	if r == nil {
		return true
	}
	return r.Path == "" && r.Extract == "" && r.Limit == 0 &&
		r.Filter == nil && len(r.Require) == 0 && !r.Compact &&
		r.JQ == "" && len(r.Rename) == 0
}

// Projection is the ad-hoc variant supplied on a single call.
type Projection struct {
	Path    string `json:"path,omitempty"`
	Extract string `json:"extract,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	JQ      string `json:"jq,omitempty"`
}

// AsRecipe converts an ad-hoc projection to recipe form.
func (p *Projection) AsRecipe() *Recipe {
	if p == nil {
		return nil
	}
	return &Recipe{Path: p.Path, Extract: p.Extract, Limit: p.Limit, JQ: p.JQ}
}
