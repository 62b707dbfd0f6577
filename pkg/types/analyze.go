package types

// EndpointCategory buckets an endpoint by its observed role.
type EndpointCategory string

const (
	CategoryRead   EndpointCategory = "read"
	CategoryWrite  EndpointCategory = "write"
	CategoryDelete EndpointCategory = "delete"
	CategoryAuth   EndpointCategory = "auth"
)

// ParamSpec describes one path or query parameter of an endpoint group.
// Required is true for query params appearing on at least 80% of the
// group's requests; path params are always required.
type ParamSpec struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Example  string `json:"example,omitempty"`
	Pattern  string `json:"pattern,omitempty"`
}

// EndpointGroup is the equivalence class of exchanges under
// (method, normalized path); the unit of documentation and replay.
type EndpointGroup struct {
	Method             string            `json:"method"`
	NormalizedPath     string            `json:"normalizedPath"`
	Description        string            `json:"description,omitempty"`
	Category           EndpointCategory  `json:"category"`
	PathParams         []ParamSpec       `json:"pathParams,omitempty"`
	QueryParams        []ParamSpec       `json:"queryParams,omitempty"`
	RequestBodySchema  map[string]string `json:"requestBodySchema,omitempty"`
	ResponseBodySchema map[string]string `json:"responseBodySchema,omitempty"`
	Produces           []string          `json:"produces,omitempty"`
	Consumes           []string          `json:"consumes,omitempty"`
	Dependencies       []string          `json:"dependencies,omitempty"`
	ExampleCount       int               `json:"exampleCount"`
	ExampleIndices     []int             `json:"exampleIndices,omitempty"`
	Verified           bool              `json:"verified,omitempty"`
	FromSpec           bool              `json:"fromSpec,omitempty"`
}

// Key returns the canonical "METHOD path" group identity.
func (g *EndpointGroup) Key() string {
	return g.Method + " " + g.NormalizedPath
}
