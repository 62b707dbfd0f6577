package skill

import (
	"errors"
	"strings"

	"github.com/pb33f/libopenapi"
	"github.com/pb33f/libopenapi/datamodel/high/base"
	v3 "github.com/pb33f/libopenapi/datamodel/high/v3"
	"github.com/pb33f/libopenapi/orderedmap"
	"gopkg.in/yaml.v3"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/internal/routes"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// ImportOpenAPI turns an OpenAPI 3 document into endpoint groups flagged
// fromSpec, ready to merge into a learned skill. Returns the groups and
// the first server URL.
func ImportOpenAPI(data []byte) ([]*types.EndpointGroup, string, error) {
	doc, err := libopenapi.NewDocument(data)
	if err != nil {
		return nil, "", fault.Wrap(fault.CodeInput, "parse openapi document", err)
	}
	model, buildErrs := doc.BuildV3Model()
	if len(buildErrs) > 0 {
		return nil, "", fault.Wrap(fault.CodeInput, "build openapi model", errors.Join(buildErrs...))
	}

	baseURL := ""
	if len(model.Model.Servers) > 0 {
		baseURL = strings.TrimRight(model.Model.Servers[0].URL, "/")
	}

	var groups []*types.EndpointGroup
	if model.Model.Paths == nil {
		return groups, baseURL, nil
	}
	for pathPair := model.Model.Paths.PathItems.First(); pathPair != nil; pathPair = pathPair.Next() {
		pathName := pathPair.Key()
		item := pathPair.Value()
		for opPair := item.GetOperations().First(); opPair != nil; opPair = opPair.Next() {
			method := strings.ToUpper(opPair.Key())
			groups = append(groups, groupFromOperation(method, pathName, item, opPair.Value()))
		}
	}
	return groups, baseURL, nil
}

func groupFromOperation(method, pathName string, item *v3.PathItem, op *v3.Operation) *types.EndpointGroup {
	g := &types.EndpointGroup{
		Method:         method,
		NormalizedPath: pathName,
		Description:    op.Summary,
		Category:       routes.Categorize(method, pathName),
		FromSpec:       true,
	}
	if g.Description == "" {
		g.Description = specDescription(method, pathName)
	}

	declared := make(map[string]bool)
	params := append(append([]*v3.Parameter(nil), item.Parameters...), op.Parameters...)
	for _, p := range params {
		if p == nil {
			continue
		}
		spec := types.ParamSpec{
			Name:     p.Name,
			Required: p.Required != nil && *p.Required,
			Example:  scalarExample(p.Example),
			Pattern:  schemaTypeTag(p.Schema),
		}
		switch p.In {
		case "path":
			spec.Required = true
			g.PathParams = append(g.PathParams, spec)
			declared[p.Name] = true
		case "query":
			g.QueryParams = append(g.QueryParams, spec)
		}
	}
	// Template placeholders without a parameter entry still become params.
	for _, seg := range strings.Split(pathName, "/") {
		if !strings.HasPrefix(seg, "{") || !strings.HasSuffix(seg, "}") {
			continue
		}
		name := strings.Trim(seg, "{}")
		if name != "" && !declared[name] {
			g.PathParams = append(g.PathParams, types.ParamSpec{Name: name, Required: true})
		}
	}

	g.RequestBodySchema = bodyFields(requestSchema(op))
	g.ResponseBodySchema = bodyFields(responseSchema(op))
	return g
}

func requestSchema(op *v3.Operation) *base.SchemaProxy {
	if op.RequestBody == nil || op.RequestBody.Content == nil {
		return nil
	}
	return jsonMediaSchema(op.RequestBody.Content)
}

// responseSchema picks the first 2xx response carrying a JSON schema.
func responseSchema(op *v3.Operation) *base.SchemaProxy {
	if op.Responses == nil || op.Responses.Codes == nil {
		return nil
	}
	for pair := op.Responses.Codes.First(); pair != nil; pair = pair.Next() {
		if !strings.HasPrefix(pair.Key(), "2") {
			continue
		}
		resp := pair.Value()
		if resp == nil || resp.Content == nil {
			continue
		}
		if proxy := jsonMediaSchema(resp.Content); proxy != nil {
			return proxy
		}
	}
	return nil
}

func jsonMediaSchema(content *orderedmap.Map[string, *v3.MediaType]) *base.SchemaProxy {
	for pair := content.First(); pair != nil; pair = pair.Next() {
		mime := strings.ToLower(pair.Key())
		if strings.Contains(mime, "json") && pair.Value() != nil {
			return pair.Value().Schema
		}
	}
	return nil
}

// bodyFields flattens a schema's top-level properties into the compact
// field→type-tag map the analyzer produces for captured bodies.
func bodyFields(proxy *base.SchemaProxy) map[string]string {
	if proxy == nil {
		return nil
	}
	schema := proxy.Schema()
	if schema == nil {
		return nil
	}
	// Arrays report their item object's fields, matching capture-side
	// inference.
	if hasType(schema, "array") && schema.Items != nil && schema.Items.A != nil {
		return bodyFields(schema.Items.A)
	}
	if schema.Properties == nil {
		return nil
	}
	fields := make(map[string]string)
	for pair := schema.Properties.First(); pair != nil; pair = pair.Next() {
		fields[pair.Key()] = schemaTypeTag(pair.Value())
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func schemaTypeTag(proxy *base.SchemaProxy) string {
	if proxy == nil {
		return ""
	}
	schema := proxy.Schema()
	if schema == nil || len(schema.Type) == 0 {
		return ""
	}
	switch schema.Type[0] {
	case "integer":
		return "number"
	case "string", "number", "boolean", "object", "array", "null":
		return schema.Type[0]
	}
	return "other"
}

func hasType(schema *base.Schema, t string) bool {
	for _, st := range schema.Type {
		if st == t {
			return true
		}
	}
	return false
}

func scalarExample(node *yaml.Node) string {
	if node != nil && node.Kind == yaml.ScalarNode {
		return node.Value
	}
	return ""
}

func specDescription(method, pathName string) string {
	verb := "Fetch"
	switch method {
	case "POST":
		verb = "Create"
	case "PUT", "PATCH":
		verb = "Update"
	case "DELETE":
		verb = "Delete"
	}
	resource := "resource"
	for _, seg := range strings.Split(strings.Trim(pathName, "/"), "/") {
		if seg != "" && !strings.HasPrefix(seg, "{") {
			resource = seg
		}
	}
	return verb + " " + resource
}
