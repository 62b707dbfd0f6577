package resolver

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/unbrowse/unbrowse/pkg/types"
)

// ConfidenceThreshold is the minimum composite score a marketplace
// candidate needs to enter the race.
const ConfidenceThreshold = 0.3

// Auto-execution gates for freshly captured endpoints.
const (
	autoExecuteMinScore = 15
	autoExecuteMargin   = 3
)

// CompositeScore ranks a marketplace candidate: semantic similarity,
// mean endpoint reliability, freshness decaying over months, and a
// verification bonus.
func CompositeScore(embedding float64, m *types.SkillManifest, now time.Time) float64 {
	days := now.Sub(m.UpdatedAt.Time()).Hours() / 24
	if days < 0 {
		days = 0
	}
	freshness := 1 / (1 + days/30)
	return 0.40*embedding + 0.30*m.AvgReliability() + 0.15*freshness + 0.15*verificationBonus(m)
}

func verificationBonus(m *types.SkillManifest) float64 {
	if len(m.Endpoints) == 0 {
		return 0
	}
	verified := 0
	for _, e := range m.Endpoints {
		if e.VerificationStatus == types.VerifyVerified {
			verified++
		}
	}
	switch {
	case verified == len(m.Endpoints):
		return 1.0
	case verified > 0:
		return 0.5
	default:
		return 0
	}
}

// usableCandidate rejects fetched marketplace skills that could never
// serve: inactive, endpoint-less, entirely off the target site, or
// with nothing executable (no response schema, no /api/ path, no DOM
// extraction anywhere).
func usableCandidate(m *types.SkillManifest, targetDomain string) bool {
	if m == nil || m.Lifecycle != types.LifecycleActive || len(m.Endpoints) == 0 {
		return false
	}
	refDomain := targetDomain
	if refDomain == "" {
		refDomain = m.Domain
	}
	if targetDomain != "" && !sameSite(m.Domain, targetDomain) {
		return false
	}
	onSite := false
	executable := false
	for _, e := range m.Endpoints {
		if sameSite(hostOf(e.URLTemplate), refDomain) {
			onSite = true
		}
		if len(e.ResponseSchema) > 0 || strings.Contains(e.URLTemplate, "/api/") || e.DOMExtraction != nil {
			executable = true
		}
	}
	return onSite && executable
}

// sameSite reports whether two hosts share a registrable domain.
// Hosts the public suffix list cannot place (localhost, bare IPs)
// fall back to suffix matching.
func sameSite(hostA, hostB string) bool {
	hostA, hostB = strings.ToLower(hostA), strings.ToLower(hostB)
	if hostA == "" || hostB == "" {
		return false
	}
	ra, errA := publicsuffix.EffectiveTLDPlusOne(hostA)
	rb, errB := publicsuffix.EffectiveTLDPlusOne(hostB)
	if errA == nil && errB == nil {
		return ra == rb
	}
	return hostA == hostB ||
		strings.HasSuffix(hostA, "."+hostB) ||
		strings.HasSuffix(hostB, "."+hostA)
}

func hostOf(urlTemplate string) string {
	if u, err := url.Parse(urlTemplate); err == nil {
		return u.Hostname()
	}
	return ""
}

// EndpointOption is one ranked endpoint offered back to the agent when
// auto-execution does not apply.
type EndpointOption struct {
	EndpointID  string `json:"endpoint_id"`
	Method      string `json:"method"`
	URLTemplate string `json:"url_template"`
	Description string `json:"description,omitempty"`
	Score       int    `json:"score"`
}

// rankEndpoint scores a learned endpoint for auto-execution. Response
// schemas and /api/ paths mark real data endpoints; reads beat writes;
// auth endpoints are never worth calling on their own; exampled
// parameters mean the template can be filled without the caller.
func rankEndpoint(e *types.SkillEndpoint) int {
	score := 0
	if len(e.ResponseSchema) > 0 {
		score += 10
	}
	if strings.Contains(e.URLTemplate, "/api/") {
		score += 5
	}
	switch e.Category {
	case types.CategoryRead:
		score += 5
	case types.CategoryWrite:
		score++
	case types.CategoryAuth:
		score -= 10
	}
	if len(e.PathParams) > 0 && allExampled(e.PathParams) {
		score += 3
	}
	if len(e.QueryParams) > 0 && allExampled(e.QueryParams) {
		score += 2
	}
	return score
}

func allExampled(params []types.ParamSpec) bool {
	for _, p := range params {
		if p.Required && p.Example == "" {
			return false
		}
	}
	return true
}

// rankEndpoints returns every endpoint of a skill ordered best-first.
func rankEndpoints(m *types.SkillManifest) []EndpointOption {
	out := make([]EndpointOption, 0, len(m.Endpoints))
	for i := range m.Endpoints {
		e := &m.Endpoints[i]
		out = append(out, EndpointOption{
			EndpointID:  e.EndpointID,
			Method:      e.Method,
			URLTemplate: e.URLTemplate,
			Description: e.Description,
			Score:       rankEndpoint(e),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].EndpointID < out[j].EndpointID
	})
	return out
}

// shouldAutoExecute applies the post-capture gate: a clear winner with
// a response schema, and no auth wall we cannot climb.
func shouldAutoExecute(ranked []EndpointOption, m *types.SkillManifest, auth *types.AuthState) bool {
	if len(ranked) == 0 || ranked[0].Score < autoExecuteMinScore {
		return false
	}
	if len(ranked) > 1 && ranked[0].Score-ranked[1].Score < autoExecuteMargin {
		return false
	}
	top := m.Endpoint(ranked[0].EndpointID)
	if top == nil || len(top.ResponseSchema) == 0 {
		return false
	}
	if len(top.Consumes) > 0 && !auth.HasUsableAuth() {
		return false
	}
	return true
}
