package routes

import (
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/unbrowse/unbrowse/pkg/jsonschema"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// idLikePattern matches parameter and field names that carry
// identifiers or tokens between endpoints.
var idLikePattern = regexp.MustCompile(`^id$|Id$|Token$|Uuid$|Key$|uuid$|token$|key$`)

// authPathMarkers flag authentication endpoints by path substring.
var authPathMarkers = []string{
	"login", "logout", "signin", "signup", "register", "oauth",
	"/session", "/token", "/refresh",
}

// observation is one exchange with its normalized path state.
// Cross-request generalization mutates segments and params in place.
type observation struct {
	ex       *types.CapturedExchange
	method   string
	segments []string
	params   []PathParam
}

// insertParam adds p keeping params ordered by position.
func (o *observation) insertParam(p PathParam) {
	at := len(o.params)
	for i, q := range o.params {
		if q.Pos > p.Pos {
			at = i
			break
		}
	}
	o.params = append(o.params, PathParam{})
	copy(o.params[at+1:], o.params[at:])
	o.params[at] = p
}

func (o *observation) path() string {
	return joinPath(o.segments, true)
}

// Analyze groups captured exchanges by method and normalized path and
// derives each group's category, parameters, body shapes and
// dependency edges. Exchanges with unparseable URLs are skipped.
func Analyze(exchanges []types.CapturedExchange) []*types.EndpointGroup {
	obs := make([]*observation, 0, len(exchanges))
	for i := range exchanges {
		ex := &exchanges[i]
		u, err := url.Parse(ex.Request.URL)
		if err != nil {
			slog.Warn("skipping exchange with unparseable url",
				slog.Int("index", ex.Index),
				slog.String("error", err.Error()))
			continue
		}
		normalized, params := NormalizePath(u.Path)
		obs = append(obs, &observation{
			ex:       ex,
			method:   strings.ToUpper(ex.Request.Method),
			segments: splitPath(normalized),
			params:   params,
		})
	}

	generalizeAcross(obs)

	grouped := make(map[string][]*observation)
	var order []string
	for _, o := range obs {
		key := o.method + " " + o.path()
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], o)
	}

	groups := make([]*types.EndpointGroup, 0, len(grouped))
	for _, key := range order {
		groups = append(groups, buildGroup(grouped[key]))
	}
	wireDependencies(groups)
	sortGroups(groups)
	return groups
}

func buildGroup(members []*observation) *types.EndpointGroup {
	first := members[0]
	g := &types.EndpointGroup{
		Method:         first.method,
		NormalizedPath: first.path(),
		ExampleCount:   len(members),
	}
	g.Category = Categorize(g.Method, g.NormalizedPath)

	for _, p := range first.params {
		g.PathParams = append(g.PathParams, types.ParamSpec{
			Name:     p.Name,
			Required: true,
			Example:  p.Value,
			Pattern:  p.Kind,
		})
	}
	g.QueryParams = analyzeQuery(members)

	var reqBodies, respBodies []any
	for _, o := range members {
		g.ExampleIndices = append(g.ExampleIndices, o.ex.Index)
		if body := requestBody(o.ex); body != nil {
			reqBodies = append(reqBodies, body)
		}
		if o.ex.Response != nil {
			if body := responseBody(o.ex); body != nil {
				respBodies = append(respBodies, body)
			}
		}
	}
	if len(reqBodies) > 0 {
		g.RequestBodySchema = jsonschema.FieldTypes(reqBodies...)
	}
	if len(respBodies) > 0 {
		g.ResponseBodySchema = jsonschema.FieldTypes(respBodies...)
	}

	g.Produces = producedNames(g.ResponseBodySchema)
	g.Consumes = consumedNames(g)
	g.Description = describeGroup(g)
	return g
}

func requestBody(ex *types.CapturedExchange) any {
	if ex.Request.Body != nil {
		return ex.Request.Body
	}
	return jsonschema.SafeParse(ex.Request.BodyRaw)
}

func responseBody(ex *types.CapturedExchange) any {
	if ex.Response.Body != nil {
		return ex.Response.Body
	}
	return jsonschema.SafeParse(ex.Response.BodyRaw)
}

// analyzeQuery collects query parameters in first-seen order. A
// parameter is required when present on at least 80% of the group's
// requests; the example is the first observed value.
func analyzeQuery(members []*observation) []types.ParamSpec {
	var names []string
	counts := make(map[string]int)
	examples := make(map[string]string)
	for _, o := range members {
		seen := make(map[string]bool)
		for _, qp := range o.ex.Request.QueryParams {
			if seen[qp.Key] {
				continue
			}
			seen[qp.Key] = true
			if _, ok := counts[qp.Key]; !ok {
				names = append(names, qp.Key)
				examples[qp.Key] = qp.Value
			}
			counts[qp.Key]++
		}
	}
	if len(names) == 0 {
		return nil
	}
	total := float64(len(members))
	specs := make([]types.ParamSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, types.ParamSpec{
			Name:     name,
			Required: float64(counts[name]) >= 0.8*total,
			Example:  examples[name],
		})
	}
	return specs
}

// Categorize applies the category rules in priority order: auth path
// markers beat everything, then the method decides.
func Categorize(method, path string) types.EndpointCategory {
	lower := strings.ToLower(path)
	for _, marker := range authPathMarkers {
		if strings.Contains(lower, marker) {
			return types.CategoryAuth
		}
	}
	switch method {
	case "DELETE":
		return types.CategoryDelete
	case "POST", "PUT", "PATCH":
		return types.CategoryWrite
	default:
		return types.CategoryRead
	}
}

func producedNames(schema map[string]string) []string {
	var names []string
	for name := range schema {
		if idLikePattern.MatchString(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// consumedNames is the union of all path parameter names, id-like query
// parameter names and id-like request body fields.
func consumedNames(g *types.EndpointGroup) []string {
	set := make(map[string]bool)
	for _, p := range g.PathParams {
		set[p.Name] = true
	}
	for _, p := range g.QueryParams {
		if idLikePattern.MatchString(p.Name) {
			set[p.Name] = true
		}
	}
	for name := range g.RequestBodySchema {
		if idLikePattern.MatchString(name) {
			set[name] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// wireDependencies links every non-auth group to all auth groups plus
// the producers of each name it consumes. Auth groups depend on
// nothing, and no group depends on itself.
func wireDependencies(groups []*types.EndpointGroup) {
	var authKeys []string
	producers := make(map[string][]string)
	for _, g := range groups {
		if g.Category == types.CategoryAuth {
			authKeys = append(authKeys, g.Key())
		}
		for _, name := range g.Produces {
			producers[name] = append(producers[name], g.Key())
		}
	}

	for _, g := range groups {
		if g.Category == types.CategoryAuth {
			continue
		}
		set := make(map[string]bool)
		for _, key := range authKeys {
			set[key] = true
		}
		for _, name := range g.Consumes {
			for _, key := range producers[name] {
				if key == g.Key() {
					continue
				}
				set[key] = true
			}
		}
		if len(set) == 0 {
			continue
		}
		deps := make([]string, 0, len(set))
		for key := range set {
			deps = append(deps, key)
		}
		sort.Strings(deps)
		g.Dependencies = deps
	}
}

var categoryRank = map[types.EndpointCategory]int{
	types.CategoryRead:   0,
	types.CategoryWrite:  1,
	types.CategoryDelete: 2,
}

// sortGroups orders groups for emission: auth endpoints first, then by
// dependency count, category and path.
func sortGroups(groups []*types.EndpointGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		aAuth := a.Category == types.CategoryAuth
		bAuth := b.Category == types.CategoryAuth
		if aAuth != bAuth {
			return aAuth
		}
		if len(a.Dependencies) != len(b.Dependencies) {
			return len(a.Dependencies) < len(b.Dependencies)
		}
		if categoryRank[a.Category] != categoryRank[b.Category] {
			return categoryRank[a.Category] < categoryRank[b.Category]
		}
		return a.NormalizedPath < b.NormalizedPath
	})
}

// describeGroup renders a short summary like "Fetch orders by orderId".
func describeGroup(g *types.EndpointGroup) string {
	verb := "Fetch"
	switch {
	case g.Category == types.CategoryAuth:
		verb = "Authenticate"
	case g.Method == "POST":
		verb = "Create"
	case g.Method == "PUT", g.Method == "PATCH":
		verb = "Update"
	case g.Method == "DELETE":
		verb = "Delete"
	}

	segments := splitPath(g.NormalizedPath)
	resource := ""
	for i := len(segments) - 1; i >= 0; i-- {
		if !isParamSegment(segments[i]) && !versionPattern.MatchString(strings.ToLower(segments[i])) {
			resource = segments[i]
			break
		}
	}

	byParam := ""
	if len(segments) > 0 {
		last := segments[len(segments)-1]
		if isParamSegment(last) {
			if end := strings.Index(last, "}"); end > 1 {
				byParam = last[1:end]
			}
		}
	}

	out := verb
	if resource != "" {
		out += " " + resource
	}
	if byParam != "" {
		out += " by " + byParam
	}
	return out
}
