// Package skill turns analyzed exchange sets into skill manifests and
// keeps them healthy: content-hash versioning, merge across captures,
// endpoint verification, and parameter validation.
package skill

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/pkg/types"
)

const (
	// initialReliability is assigned to fresh, unprobed endpoints.
	initialReliability = 0.5
	// verifiedReliability is assigned once a probe has succeeded.
	verifiedReliability = 0.8
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// GenerateOptions tunes manifest generation.
type GenerateOptions struct {
	SkillID       string
	Name          string
	ExecutionType types.ExecutionType
	RefreshConfig *types.RefreshConfig
	DiscoveryCost *types.DiscoveryCost
}

// Generate builds a skill manifest from an analyzed exchange set. The
// output is deterministic given the set and the clock: the same capture
// always produces the same version hash.
func Generate(set *types.AnalyzedExchangeSet, now time.Time, opts *GenerateOptions) (*types.SkillManifest, error) {
	if set == nil {
		return nil, fault.New(fault.CodeInput, "no analyzed exchanges")
	}
	if opts == nil {
		opts = &GenerateOptions{}
	}

	domain := primaryDomain(set)
	if domain == "" {
		return nil, fault.New(fault.CodeInput, "no domain in capture")
	}
	baseURL := primaryBaseURL(set, domain)

	m := &types.SkillManifest{
		SkillID:       opts.SkillID,
		SchemaVersion: types.SchemaVersion,
		Name:          opts.Name,
		Domain:        domain,
		OwnerType:     "local",
		ExecutionType: opts.ExecutionType,
		Lifecycle:     types.LifecycleDraft,
		CreatedAt:     types.Timestamp(now),
		UpdatedAt:     types.Timestamp(now),
		DiscoveryCost: opts.DiscoveryCost,
	}
	if m.SkillID == "" {
		m.SkillID = Slugify(domain)
	}
	if m.Name == "" {
		m.Name = serviceName(domain) + " API"
	}
	if m.ExecutionType == "" {
		m.ExecutionType = types.ExecutionAPI
	}

	seen := make(map[string]int)
	for _, g := range set.EndpointGroups {
		if g == nil {
			continue
		}
		ep := endpointFromGroup(g, baseURL)
		ep.EndpointID = uniqueID(ep.EndpointID, seen)
		m.Endpoints = append(m.Endpoints, ep)
	}
	if len(m.Endpoints) > 0 {
		m.Lifecycle = types.LifecycleActive
	}

	if opts.RefreshConfig != nil {
		attachRefreshConfig(m, opts.RefreshConfig)
	}

	m.Description = describeSkill(domain, m.Endpoints)
	m.IntentSignature = IntentSignature(domain, m.Endpoints)

	version, err := VersionHash(m, set.AuthMethod)
	if err != nil {
		return nil, err
	}
	m.Version = version
	return m, nil
}

func endpointFromGroup(g *types.EndpointGroup, baseURL string) types.SkillEndpoint {
	ep := types.SkillEndpoint{
		EndpointID:         endpointID(g.Method, g.NormalizedPath),
		Method:             g.Method,
		URLTemplate:        strings.TrimRight(baseURL, "/") + g.NormalizedPath,
		Description:        g.Description,
		Category:           g.Category,
		PathParams:         append([]types.ParamSpec(nil), g.PathParams...),
		QueryParams:        append([]types.ParamSpec(nil), g.QueryParams...),
		RequestBodySchema:  g.RequestBodySchema,
		ResponseSchema:     g.ResponseBodySchema,
		Produces:           append([]string(nil), g.Produces...),
		Consumes:           append([]string(nil), g.Consumes...),
		ReliabilityScore:   initialReliability,
		VerificationStatus: types.VerifyUnverified,
		FromSpec:           g.FromSpec,
	}
	if g.Verified {
		ep.ReliabilityScore = verifiedReliability
		ep.VerificationStatus = types.VerifyVerified
	}
	if len(g.ExampleIndices) > 0 {
		ep.ExampleIndex = g.ExampleIndices[0]
	}
	return ep
}

// attachRefreshConfig hangs the refresh recipe off the auth endpoint
// whose path matches the refresh URL, falling back to the first auth
// endpoint.
func attachRefreshConfig(m *types.SkillManifest, cfg *types.RefreshConfig) {
	refreshPath := ""
	if u, err := url.Parse(cfg.URL); err == nil {
		refreshPath = u.Path
	}
	var firstAuth *types.SkillEndpoint
	for i := range m.Endpoints {
		ep := &m.Endpoints[i]
		if ep.Category != types.CategoryAuth {
			continue
		}
		if firstAuth == nil {
			firstAuth = ep
		}
		if refreshPath != "" && strings.HasSuffix(templatePath(ep.URLTemplate), refreshPath) {
			ep.RefreshConfig = cfg
			return
		}
	}
	if firstAuth != nil {
		firstAuth.RefreshConfig = cfg
	}
}

// IntentSignature renders the natural-language sentence the semantic
// index embeds. Deterministic given the endpoint list.
func IntentSignature(domain string, endpoints []types.SkillEndpoint) string {
	if len(endpoints) == 0 {
		return "Browse " + domain + "."
	}
	var phrases []string
	for _, ep := range endpoints {
		if ep.Description == "" {
			continue
		}
		phrases = append(phrases, lowerFirst(ep.Description))
		if len(phrases) == 6 {
			break
		}
	}
	if len(phrases) == 0 {
		return "Call the " + domain + " API."
	}
	return "Use " + domain + " to " + strings.Join(phrases, ", ") + "."
}

func describeSkill(domain string, endpoints []types.SkillEndpoint) string {
	counts := map[types.EndpointCategory]int{}
	for _, ep := range endpoints {
		counts[ep.Category]++
	}
	return fmt.Sprintf("Learned API skill for %s: %d endpoints (%d read, %d write, %d delete, %d auth).",
		domain, len(endpoints),
		counts[types.CategoryRead], counts[types.CategoryWrite],
		counts[types.CategoryDelete], counts[types.CategoryAuth])
}

// Slugify renders a domain as a filesystem- and id-safe slug.
func Slugify(domain string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(domain), "-")
	return strings.Trim(slug, "-")
}

// serviceName picks the registrable label out of a domain and title-cases
// it: "app.example.com" becomes "Example".
func serviceName(domain string) string {
	host := domain
	if h, _, ok := strings.Cut(domain, ":"); ok {
		host = h
	}
	labels := strings.Split(host, ".")
	name := labels[0]
	if len(labels) >= 2 {
		name = labels[len(labels)-2]
	}
	return cases.Title(language.English).String(name)
}

func endpointID(method, path string) string {
	return Slugify(strings.ToLower(method) + path)
}

func uniqueID(id string, seen map[string]int) string {
	seen[id]++
	if n := seen[id]; n > 1 {
		return fmt.Sprintf("%s-%d", id, n)
	}
	return id
}

func primaryDomain(set *types.AnalyzedExchangeSet) string {
	if len(set.Domains) > 0 {
		return set.Domains[0]
	}
	if len(set.BaseURLs) > 0 {
		if u, err := url.Parse(set.BaseURLs[0]); err == nil {
			return u.Host
		}
	}
	return ""
}

func primaryBaseURL(set *types.AnalyzedExchangeSet, domain string) string {
	if len(set.BaseURLs) > 0 {
		return set.BaseURLs[0]
	}
	return "https://" + domain
}

func templatePath(urlTemplate string) string {
	if u, err := url.Parse(urlTemplate); err == nil && u.Path != "" {
		return u.Path
	}
	return urlTemplate
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
