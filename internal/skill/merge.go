package skill

import (
	"fmt"
	"sort"
	"time"

	"github.com/unbrowse/unbrowse/pkg/jsonschema"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// Merge folds a newly generated manifest into an existing skill: union
// of endpoints by (method, template path), verified examples winning
// over unverified, example values kept from the first capture, produces
// and consumes unioned, reliability taking the max. Returns the merged
// manifest and a diff summary like "+2 ~1 -0 endpoints".
func Merge(existing, incoming *types.SkillManifest, authMethod string, now time.Time) (*types.SkillManifest, string, error) {
	merged := *existing
	merged.Endpoints = append([]types.SkillEndpoint(nil), existing.Endpoints...)

	byKey := make(map[string]int, len(merged.Endpoints))
	for i := range merged.Endpoints {
		byKey[endpointKey(&merged.Endpoints[i])] = i
	}

	var added, changed int
	seen := make(map[string]int)
	for i := range merged.Endpoints {
		seen[merged.Endpoints[i].EndpointID]++
	}

	for i := range incoming.Endpoints {
		inc := &incoming.Endpoints[i]
		idx, ok := byKey[endpointKey(inc)]
		if !ok {
			ep := *inc
			ep.EndpointID = uniqueID(ep.EndpointID, seen)
			merged.Endpoints = append(merged.Endpoints, ep)
			added++
			continue
		}
		old := merged.Endpoints[idx]
		next := mergeEndpoint(&old, inc)
		if !sameEndpointDoc(&old, &next) {
			changed++
		}
		merged.Endpoints[idx] = next
	}

	if len(merged.Endpoints) > 0 {
		merged.Lifecycle = types.LifecycleActive
	}
	merged.UpdatedAt = types.Timestamp(now)
	merged.Description = describeSkill(merged.Domain, merged.Endpoints)
	merged.IntentSignature = IntentSignature(merged.Domain, merged.Endpoints)
	if incoming.DiscoveryCost != nil {
		merged.DiscoveryCost = incoming.DiscoveryCost
	}

	version, err := VersionHash(&merged, authMethod)
	if err != nil {
		return nil, "", err
	}
	merged.Version = version

	diff := fmt.Sprintf("+%d ~%d -0 endpoints", added, changed)
	return &merged, diff, nil
}

// endpointKey identifies an endpoint across captures: method plus the
// path part of the template, so a base-URL change does not fork it.
func endpointKey(ep *types.SkillEndpoint) string {
	return ep.Method + " " + templatePath(ep.URLTemplate)
}

// mergeEndpoint combines two observations of the same endpoint. The
// verified one provides the base; example values stay with the first
// capture.
func mergeEndpoint(old, inc *types.SkillEndpoint) types.SkillEndpoint {
	base, other := old, inc
	if inc.VerificationStatus == types.VerifyVerified && old.VerificationStatus != types.VerifyVerified {
		base, other = inc, old
	}

	out := *base
	out.EndpointID = old.EndpointID
	out.PathParams = keepFirstExamples(base.PathParams, old.PathParams)
	out.QueryParams = keepFirstExamples(base.QueryParams, old.QueryParams)
	out.RequestBodySchema = mergeSchema(old.RequestBodySchema, inc.RequestBodySchema)
	out.ResponseSchema = mergeSchema(old.ResponseSchema, inc.ResponseSchema)
	out.Produces = unionSorted(old.Produces, inc.Produces)
	out.Consumes = unionSorted(old.Consumes, inc.Consumes)
	out.ExampleIndex = old.ExampleIndex

	if inc.ReliabilityScore > out.ReliabilityScore {
		out.ReliabilityScore = inc.ReliabilityScore
	}
	if old.ReliabilityScore > out.ReliabilityScore {
		out.ReliabilityScore = old.ReliabilityScore
	}
	out.VerificationStatus = mergeVerification(old.VerificationStatus, inc.VerificationStatus)

	if out.DOMExtraction == nil {
		out.DOMExtraction = other.DOMExtraction
	}
	if out.RefreshConfig == nil {
		out.RefreshConfig = other.RefreshConfig
	}
	return out
}

// keepFirstExamples carries example values from the first capture onto
// the surviving parameter specs.
func keepFirstExamples(specs, first []types.ParamSpec) []types.ParamSpec {
	out := append([]types.ParamSpec(nil), specs...)
	byName := make(map[string]types.ParamSpec, len(first))
	for _, p := range first {
		byName[p.Name] = p
	}
	for i := range out {
		if p, ok := byName[out[i].Name]; ok && p.Example != "" {
			out[i].Example = p.Example
		}
	}
	return out
}

func mergeSchema(a, b map[string]string) map[string]string {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := make(map[string]string, len(a))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if existing, ok := out[k]; ok {
			out[k] = jsonschema.GeneralTag(existing, v)
		} else {
			out[k] = v
		}
	}
	return out
}

func unionSorted(a, b []string) []string {
	set := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		set[s] = true
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func mergeVerification(a, b types.VerificationStatus) types.VerificationStatus {
	if a == types.VerifyVerified || b == types.VerifyVerified {
		return types.VerifyVerified
	}
	if a == types.VerifyFailing && b == types.VerifyFailing {
		return types.VerifyFailing
	}
	return types.VerifyUnverified
}
