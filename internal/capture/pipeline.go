package capture

import (
	"sort"
	"strings"
	"time"

	"github.com/unbrowse/unbrowse/internal/authstate"
	"github.com/unbrowse/unbrowse/internal/correlate"
	"github.com/unbrowse/unbrowse/internal/exchange"
	"github.com/unbrowse/unbrowse/internal/routes"
	"github.com/unbrowse/unbrowse/internal/skill"
	"github.com/unbrowse/unbrowse/internal/tokens"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// PageState is the browser-side state snapshot taken when a session is
// sealed. HAR imports have none; everything then derives from the
// exchanges themselves.
type PageState struct {
	Cookies        types.Cookies
	LocalStorage   map[string]string
	SessionStorage map[string]string
	MetaTokens     map[string]string
}

// Analysis bundles everything one capture produced.
type Analysis struct {
	Set   *types.AnalyzedExchangeSet
	Skill *types.SkillManifest
	Graph *types.CorrelationGraphV1
	Auth  *types.AuthState
}

// Analyze runs the exchange pipeline over a sealed capture: auth-header
// extraction, storage token promotion, CSRF provenance, endpoint
// grouping. The returned set is immutable from the caller's point of
// view.
func Analyze(exchanges []types.CapturedExchange, page PageState) *types.AnalyzedExchangeSet {
	st := authstate.Storage{
		Local:   page.LocalStorage,
		Session: page.SessionStorage,
		Meta:    page.MetaTokens,
	}
	cookies := mergeCookies(CookiesFromExchanges(exchanges), page.Cookies)
	headers := authstate.PromoteStorageTokens(authstate.ExtractAuthHeaders(exchanges), st)

	set := &types.AnalyzedExchangeSet{
		Exchanges:      exchanges,
		AuthHeaders:    headers,
		CookieJar:      cookies,
		LocalStorage:   st.Local,
		SessionStorage: st.Session,
		MetaTokens:     st.Meta,
		AuthMethod:     authstate.InferAuthMethod(headers, cookies),
		EndpointGroups: routes.Analyze(exchanges),
		BaseURLs:       exchange.CollectBaseURLs(exchanges),
		Domains:        exchange.CollectDomains(exchanges),
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.Contains(name, "csrf") || strings.Contains(name, "xsrf") {
			set.CSRF = authstate.InferCSRFProvenance(name, headers[name], cookies, st, exchanges)
			break
		}
	}
	return set
}

// BuildOptions tunes skill construction from an analyzed set.
type BuildOptions struct {
	SkillID       string
	Name          string
	ExecutionType types.ExecutionType
	DiscoveryCost *types.DiscoveryCost
}

// Build turns an analyzed set into the full skill artifact family:
// manifest, correlation graph and auth state.
func Build(set *types.AnalyzedExchangeSet, now time.Time, opts BuildOptions) (*Analysis, error) {
	execType := opts.ExecutionType
	if execType == "" {
		execType = types.ExecutionAPI
		if len(set.EndpointGroups) == 0 {
			execType = types.ExecutionDOMExtraction
		}
	}
	refresh := FindRefreshConfig(set.Exchanges, now)

	manifest, err := skill.Generate(set, now, &skill.GenerateOptions{
		SkillID:       opts.SkillID,
		Name:          opts.Name,
		ExecutionType: execType,
		RefreshConfig: refresh,
		DiscoveryCost: opts.DiscoveryCost,
	})
	if err != nil {
		return nil, err
	}

	ptrs := make([]*types.CapturedExchange, len(set.Exchanges))
	for i := range set.Exchanges {
		ptrs[i] = &set.Exchanges[i]
	}
	graph := correlate.Infer(ptrs)

	baseURL := ""
	if len(set.BaseURLs) > 0 {
		baseURL = set.BaseURLs[0]
	}
	st := authstate.Storage{Local: set.LocalStorage, Session: set.SessionStorage, Meta: set.MetaTokens}
	auth := authstate.BuildAuthState(baseURL, set.Exchanges, set.CookieJar, st, types.Timestamp(now))
	auth.RefreshConfig = refresh

	return &Analysis{Set: set, Skill: manifest, Graph: graph, Auth: auth}, nil
}

// BuildDOMFallback constructs the skill for a page without observable
// API traffic: everything it serves is rendered server-side, so the
// only endpoint is the page itself with a DOM extraction spec.
func BuildDOMFallback(domain, pageURL string, set *types.AnalyzedExchangeSet, now time.Time, cost *types.DiscoveryCost) (*Analysis, error) {
	m := &types.SkillManifest{
		SkillID:         skill.Slugify(domain),
		SchemaVersion:   types.SchemaVersion,
		Name:            domain + " page",
		IntentSignature: "Use " + domain + " to read page content.",
		Domain:          domain,
		Description:     "Server-rendered content extracted from " + pageURL + ".",
		OwnerType:       "local",
		ExecutionType:   types.ExecutionDOMExtraction,
		Lifecycle:       types.LifecycleActive,
		CreatedAt:       types.Timestamp(now),
		UpdatedAt:       types.Timestamp(now),
		DiscoveryCost:   cost,
		Endpoints: []types.SkillEndpoint{{
			EndpointID:         "dom-page",
			Method:             "GET",
			URLTemplate:        pageURL,
			Description:        "Fetch the rendered page",
			Category:           types.CategoryRead,
			ReliabilityScore:   0.5,
			VerificationStatus: types.VerifyUnverified,
			DOMExtraction:      &types.DOMExtraction{Selector: "body"},
		}},
	}
	version, err := skill.VersionHash(m, set.AuthMethod)
	if err != nil {
		return nil, err
	}
	m.Version = version

	st := authstate.Storage{Local: set.LocalStorage, Session: set.SessionStorage, Meta: set.MetaTokens}
	auth := authstate.BuildAuthState(baseOf(pageURL), set.Exchanges, set.CookieJar, st, types.Timestamp(now))
	return &Analysis{Set: set, Skill: m, Auth: auth}, nil
}

// FindRefreshConfig scans a capture for a token-refresh exchange and
// extracts its replayable config. The last refresh wins; an initial
// grant without a refresh leaves nothing to replay.
func FindRefreshConfig(exchanges []types.CapturedExchange, now time.Time) *types.RefreshConfig {
	var cfg *types.RefreshConfig
	for i := range exchanges {
		ex := &exchanges[i]
		respBody := ""
		if ex.Response != nil {
			respBody = ex.Response.BodyRaw
		}
		det := tokens.Detect(ex.Request.URL, ex.Request.Method, ex.Request.BodyRaw, respBody)
		if !det.IsRefresh {
			continue
		}
		if c := tokens.ExtractRefreshConfig(ex, now); c != nil {
			cfg = c
		}
	}
	return cfg
}

// CookiesFromExchanges rebuilds a jar from captured traffic: request
// Cookie headers establish the baseline, response Set-Cookie values
// override in capture order.
func CookiesFromExchanges(exchanges []types.CapturedExchange) types.Cookies {
	var jar types.Cookies
	for i := range exchanges {
		for _, c := range exchanges[i].Request.Cookies {
			if jar.Get(c.Name) == "" {
				jar.Set(c.Name, c.Value)
			}
		}
		if exchanges[i].Response != nil {
			for _, c := range exchanges[i].Response.Cookies {
				jar.Set(c.Name, c.Value)
			}
		}
	}
	return jar
}

func mergeCookies(base, live types.Cookies) types.Cookies {
	for _, c := range live {
		base.Set(c.Name, c.Value)
	}
	return base
}
