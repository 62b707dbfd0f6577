package skillstore

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/unbrowse/unbrowse/pkg/types"
)

// RenderReference renders references/REFERENCE.md: one section per
// endpoint with parameters, schemas, and value flow, plus a correlation
// summary when a graph is present.
func RenderReference(m *types.SkillManifest, graph *types.CorrelationGraphV1) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s Reference\n\n", m.Name)
	fmt.Fprintf(&b, "Domain: `%s` | Version: `%s` | Endpoints: %d\n", m.Domain, short(m.Version), len(m.Endpoints))

	for i := range m.Endpoints {
		ep := &m.Endpoints[i]
		fmt.Fprintf(&b, "\n## %s %s\n\n", ep.Method, pathOf(ep.URLTemplate))
		if ep.Description != "" {
			b.WriteString(ep.Description + "\n\n")
		}
		fmt.Fprintf(&b, "- ID: `%s`\n", ep.EndpointID)
		fmt.Fprintf(&b, "- URL: `%s`\n", ep.URLTemplate)
		fmt.Fprintf(&b, "- Category: %s | Reliability: %.2f | Verification: %s\n",
			ep.Category, ep.ReliabilityScore, ep.VerificationStatus)
		if ep.FromSpec {
			b.WriteString("- Source: OpenAPI spec\n")
		}
		writeParams(&b, "Path parameters", ep.PathParams)
		writeParams(&b, "Query parameters", ep.QueryParams)
		writeSchema(&b, "Request body", ep.RequestBodySchema)
		writeSchema(&b, "Response", ep.ResponseSchema)
		if len(ep.Produces) > 0 {
			fmt.Fprintf(&b, "\nProduces: `%s`\n", strings.Join(ep.Produces, "`, `"))
		}
		if len(ep.Consumes) > 0 {
			fmt.Fprintf(&b, "\nConsumes: `%s`\n", strings.Join(ep.Consumes, "`, `"))
		}
		if ep.RefreshConfig != nil {
			fmt.Fprintf(&b, "\nToken refresh: %s %s\n", ep.RefreshConfig.Method, ep.RefreshConfig.URL)
		}
	}

	if graph != nil && len(graph.Links) > 0 {
		b.WriteString("\n## Value flow\n\n")
		fmt.Fprintf(&b, "%d correlation links across the capture (full graph in `DAG.json`):\n\n", len(graph.Links))
		for _, link := range graph.Links {
			fmt.Fprintf(&b, "- request %d %s `%s` feeds request %d %s `%s`\n",
				link.SourceRequestIndex, link.SourceLocation, link.SourcePath,
				link.TargetRequestIndex, link.TargetLocation, link.TargetPath)
		}
	}
	return b.Bytes()
}

func writeParams(b *bytes.Buffer, title string, params []types.ParamSpec) {
	if len(params) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n\n", title)
	b.WriteString("| Name | Required | Example | Pattern |\n|---|---|---|---|\n")
	for _, p := range params {
		fmt.Fprintf(b, "| %s | %t | %s | %s |\n", p.Name, p.Required, p.Example, p.Pattern)
	}
}

func writeSchema(b *bytes.Buffer, title string, schema map[string]string) {
	if len(schema) == 0 {
		return
	}
	fields := make([]string, 0, len(schema))
	for name := range schema {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	fmt.Fprintf(b, "\n%s fields:\n\n", title)
	for _, name := range fields {
		fmt.Fprintf(b, "- `%s`: %s\n", name, schema[name])
	}
}

func short(version string) string {
	if len(version) > 12 {
		return version[:12]
	}
	return version
}
