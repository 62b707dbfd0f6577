package skill

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/gowebpki/jcs"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// VersionHash computes the content hash of a manifest's stable fields:
// sorted endpoints, auth method, domain, and schemas. Mutable fields
// (reliability, verification status, timestamps) stay out so feedback
// and probing never change the version. Serialization goes through
// RFC 8785 canonical JSON, so key order can never leak into the hash.
func VersionHash(m *types.SkillManifest, authMethod string) (string, error) {
	doc := map[string]any{
		"domain":        m.Domain,
		"executionType": string(m.ExecutionType),
		"authMethod":    authMethod,
		"endpoints":     endpointDocs(m.Endpoints),
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fault.Wrap(fault.CodeInternal, "serialize version doc", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fault.Wrap(fault.CodeInternal, "canonicalize version doc", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// endpointDoc is the stable projection of one endpoint that feeds the
// version hash and merge change detection.
func endpointDoc(ep *types.SkillEndpoint) map[string]any {
	doc := map[string]any{
		"method":      ep.Method,
		"urlTemplate": ep.URLTemplate,
		"category":    string(ep.Category),
	}
	if len(ep.PathParams) > 0 {
		names := make([]string, 0, len(ep.PathParams))
		for _, p := range ep.PathParams {
			names = append(names, p.Name)
		}
		doc["pathParams"] = names
	}
	if len(ep.QueryParams) > 0 {
		params := make([]map[string]any, 0, len(ep.QueryParams))
		for _, p := range ep.QueryParams {
			params = append(params, map[string]any{"name": p.Name, "required": p.Required})
		}
		doc["queryParams"] = params
	}
	if len(ep.RequestBodySchema) > 0 {
		doc["requestBodySchema"] = ep.RequestBodySchema
	}
	if len(ep.ResponseSchema) > 0 {
		doc["responseSchema"] = ep.ResponseSchema
	}
	if len(ep.Produces) > 0 {
		doc["produces"] = ep.Produces
	}
	if len(ep.Consumes) > 0 {
		doc["consumes"] = ep.Consumes
	}
	return doc
}

func endpointDocs(endpoints []types.SkillEndpoint) []map[string]any {
	sorted := make([]*types.SkillEndpoint, 0, len(endpoints))
	for i := range endpoints {
		sorted = append(sorted, &endpoints[i])
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Method != sorted[j].Method {
			return sorted[i].Method < sorted[j].Method
		}
		return sorted[i].URLTemplate < sorted[j].URLTemplate
	})
	docs := make([]map[string]any, 0, len(sorted))
	for _, ep := range sorted {
		docs = append(docs, endpointDoc(ep))
	}
	return docs
}

// sameEndpointDoc reports whether two endpoints agree on every stable
// field.
func sameEndpointDoc(a, b *types.SkillEndpoint) bool {
	ra, errA := json.Marshal(endpointDoc(a))
	rb, errB := json.Marshal(endpointDoc(b))
	if errA != nil || errB != nil {
		return false
	}
	ca, errA := jcs.Transform(ra)
	cb, errB := jcs.Transform(rb)
	if errA != nil || errB != nil {
		return false
	}
	return string(ca) == string(cb)
}
