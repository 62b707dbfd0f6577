// Package resolver turns intents into executed API calls. Resolution
// walks a fixed ladder: route cache, local skill index, marketplace
// candidate race, live browser capture; every rung that succeeds is
// cheaper than the one below it.
package resolver

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unbrowse/unbrowse/internal/browser"
	"github.com/unbrowse/unbrowse/internal/cache"
	"github.com/unbrowse/unbrowse/internal/capture"
	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/internal/marketplace"
	"github.com/unbrowse/unbrowse/internal/project"
	"github.com/unbrowse/unbrowse/internal/replay"
	"github.com/unbrowse/unbrowse/internal/skillindex"
	"github.com/unbrowse/unbrowse/internal/skillstore"
	"github.com/unbrowse/unbrowse/pkg/types"
)

const (
	defaultRouteTTL      = 5 * time.Minute
	defaultCapturedTTL   = 5 * time.Minute
	defaultRaceTimeout   = 30 * time.Second
	localSearchLimit     = 5
	domainSearchK        = 5
	globalSearchK        = 10
	raceWidth            = 3
	defaultBaselineMs    = 22_000
	defaultBaselineToken = 30_000
)

// Resolver orchestrates intent resolution across cache, disk,
// marketplace and live capture.
type Resolver struct {
	store    *skillstore.Store
	index    *skillindex.Index
	market   *marketplace.Client
	captures *capture.Manager
	exec     *Executor

	routes   *cache.RouteCache
	captured *cache.CapturedDomains

	raceTimeout time.Duration
	routeTTL    time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithMarketplace sets the skill index client.
func WithMarketplace(c *marketplace.Client) ResolverOption {
	return func(r *Resolver) { r.market = c }
}

// WithCapture enables the live-capture rung.
func WithCapture(m *capture.Manager) ResolverOption {
	return func(r *Resolver) { r.captures = m }
}

// WithExecutor replaces the endpoint executor.
func WithExecutor(e *Executor) ResolverOption {
	return func(r *Resolver) { r.exec = e }
}

// WithRaceTimeout caps each marketplace candidate in the race.
func WithRaceTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.raceTimeout = d }
}

// WithRouteTTL overrides the route and captured-domain cache TTL.
func WithRouteTTL(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.routeTTL = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// New wires a resolver over the skill store and intent index. Without
// WithCapture the live-capture rung reports itself unavailable.
func New(store *skillstore.Store, index *skillindex.Index, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:       store,
		index:       index,
		raceTimeout: defaultRaceTimeout,
		routeTTL:    defaultRouteTTL,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.market == nil {
		r.market = marketplace.New()
	}
	if r.exec == nil {
		r.exec = NewExecutor()
	}
	r.routes = cache.NewRouteCache(256, r.routeTTL)
	r.captured = cache.NewCapturedDomains(64, r.routeTTL)
	return r
}

// IntentContext is the page the agent is looking at when it asks.
type IntentContext struct {
	URL     string           `json:"url,omitempty"`
	Actions []browser.Action `json:"actions,omitempty"`
}

// Request is one intent resolution.
type Request struct {
	Intent        string         `json:"intent"`
	Params        map[string]any `json:"params,omitempty"`
	EndpointID    string         `json:"endpoint_id,omitempty"`
	Context       *IntentContext `json:"context,omitempty"`
	Projection    *types.Recipe  `json:"projection,omitempty"`
	DryRun        bool           `json:"dry_run,omitempty"`
	ForceCapture  bool           `json:"force_capture,omitempty"`
	ConfirmUnsafe bool           `json:"confirm_unsafe,omitempty"`
}

func (q Request) domainHint() string {
	if q.Context == nil || q.Context.URL == "" {
		return ""
	}
	return hostOf(q.Context.URL)
}

func (q Request) executeOptions() ExecuteOptions {
	return ExecuteOptions{
		EndpointID:    q.EndpointID,
		Params:        q.Params,
		DryRun:        q.DryRun,
		ConfirmUnsafe: q.ConfirmUnsafe,
	}
}

// SkillRef identifies the skill that served a resolution.
type SkillRef struct {
	SkillID string `json:"skill_id"`
	Name    string `json:"name,omitempty"`
	Domain  string `json:"domain,omitempty"`
}

// Response is a finished resolution. Result is absent when the resolver
// defers endpoint choice to the caller; AvailableEndpoints then lists
// the candidates.
type Response struct {
	Result             any                        `json:"result,omitempty"`
	Trace              map[string]any             `json:"trace,omitempty"`
	Skill              *SkillRef                  `json:"skill,omitempty"`
	Source             types.ResolveSource        `json:"source"`
	Timing             *types.OrchestrationTiming `json:"timing,omitempty"`
	AvailableEndpoints []EndpointOption           `json:"available_endpoints,omitempty"`
	Message            string                     `json:"message,omitempty"`
}

// Resolve walks the resolution ladder for one intent.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Response, error) {
	intent := strings.TrimSpace(req.Intent)
	if intent == "" {
		return nil, fault.New(fault.CodeInput, "intent is required")
	}
	req.Intent = intent

	started := r.now()
	domain := req.domainHint()
	timing := &types.OrchestrationTiming{}
	var lastErr error

	if !req.ForceCapture {
		// Rung 1: route cache.
		if route, ok := r.routes.Get(domain, intent); ok {
			if m := r.localManifest(route.SkillID); m != nil {
				exec, err := r.executeManifest(ctx, m, req.executeOptions())
				if err == nil {
					timing.CacheHit = true
					return r.respond(m, exec, types.SourceRouteCache, req, started, timing)
				}
				lastErr = err
				r.logger.Debug("route cache entry failed", "skill", route.SkillID, "error", err)
			}
			r.routes.Evict(domain, intent)
		}

		// Rung 2: local disk.
		searchStart := r.now()
		hits := r.index.Search(intent, domain, localSearchLimit)
		timing.SearchMs = r.sinceMs(searchStart)
		for _, hit := range hits {
			if !usableCandidate(hit.Manifest, domain) {
				continue
			}
			exec, err := r.executeManifest(ctx, hit.Manifest, req.executeOptions())
			if err != nil {
				lastErr = err
				continue
			}
			r.routes.Put(domain, intent, hit.Manifest.SkillID)
			return r.respond(hit.Manifest, exec, types.SourceLocal, req, started, timing)
		}

		// Rungs 3 and 4: marketplace search plus candidate race.
		m, exec, err := r.tryMarketplace(ctx, intent, domain, req, timing)
		if exec != nil {
			r.routes.Put(domain, intent, m.SkillID)
			return r.respond(m, exec, types.SourceMarketplace, req, started, timing)
		}
		if err != nil {
			lastErr = err
		}
	}

	// Rungs 5 and 6: live capture and post-capture decision.
	return r.captureAndDecide(ctx, req, domain, started, timing, lastErr)
}

// localManifest prefers the in-memory index, falling back to disk.
func (r *Resolver) localManifest(skillID string) *types.SkillManifest {
	if m := r.index.Get(skillID); m != nil {
		return m
	}
	m, err := r.store.Manifest(skillID)
	if err != nil {
		return nil
	}
	return m
}

func (r *Resolver) executeManifest(ctx context.Context, m *types.SkillManifest, opts ExecuteOptions) (*Execution, error) {
	auth, err := r.store.Auth(m.SkillID)
	if err != nil {
		return nil, err
	}
	return r.exec.Execute(ctx, m, auth, opts)
}

// tryMarketplace searches the index, fetches candidates, and races the
// top scorers. Search and fetch failures degrade to a miss; only the
// race's execution errors are reported.
func (r *Resolver) tryMarketplace(ctx context.Context, intent, domain string, req Request, timing *types.OrchestrationTiming) (*types.SkillManifest, *Execution, error) {
	searchStart := r.now()
	candidates := r.marketplaceCandidates(ctx, intent, domain)
	timing.GetSkillMs = r.sinceMs(searchStart)
	timing.CandidatesFound = len(candidates)
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	race := make([]candidate, 0, raceWidth)
	for _, c := range candidates {
		if c.score < ConfidenceThreshold {
			continue
		}
		race = append(race, c)
		if len(race) == raceWidth {
			break
		}
	}
	timing.CandidatesTried = len(race)
	if len(race) == 0 {
		return nil, nil, nil
	}

	m, exec, err := r.raceCandidates(ctx, race, req)
	if exec == nil {
		return nil, nil, err
	}
	if !req.DryRun {
		r.persistMarketplaceWin(m)
	}
	return m, exec, nil
}

type candidate struct {
	manifest *types.SkillManifest
	score    float64
}

// marketplaceCandidates merges a domain-scoped and a global search,
// fetches each hit's manifest in parallel, and keeps the usable ones
// with their composite score. All remote errors are swallowed; the
// caller falls through to capture on an empty result.
func (r *Resolver) marketplaceCandidates(ctx context.Context, intent, domain string) []candidate {
	var domainHits, globalHits []types.SkillSearchHit
	var g errgroup.Group
	if domain != "" {
		g.Go(func() error {
			hits, err := r.market.SearchDomain(ctx, domain, intent, domainSearchK)
			if err != nil {
				r.logger.Debug("marketplace domain search failed", "domain", domain, "error", err)
				return nil
			}
			domainHits = hits
			return nil
		})
	}
	g.Go(func() error {
		hits, err := r.market.Search(ctx, intent, globalSearchK)
		if err != nil {
			r.logger.Debug("marketplace search failed", "error", err)
			return nil
		}
		globalHits = hits
		return nil
	})
	g.Wait()

	seen := make(map[string]bool)
	var merged []types.SkillSearchHit
	for _, hit := range append(domainHits, globalHits...) {
		if hit.SkillID == "" || seen[hit.SkillID] {
			continue
		}
		seen[hit.SkillID] = true
		merged = append(merged, hit)
	}
	if len(merged) == 0 {
		return nil
	}

	manifests := make([]*types.SkillManifest, len(merged))
	var fetch errgroup.Group
	for i, hit := range merged {
		fetch.Go(func() error {
			m, err := r.market.GetSkill(ctx, hit.SkillID)
			if err != nil {
				r.logger.Debug("marketplace fetch failed", "skill", hit.SkillID, "error", err)
				return nil
			}
			manifests[i] = m
			return nil
		})
	}
	fetch.Wait()

	now := r.now()
	var out []candidate
	for i, m := range manifests {
		if m == nil || !usableCandidate(m, domain) {
			continue
		}
		out = append(out, candidate{manifest: m, score: CompositeScore(merged[i].Score, m, now)})
	}
	return out
}

// raceCandidates executes candidates concurrently; the first success
// wins and cancels the rest. When every candidate fails, the first
// error is returned so auth problems stay visible.
func (r *Resolver) raceCandidates(ctx context.Context, cands []candidate, req Request) (*types.SkillManifest, *Execution, error) {
	type attempt struct {
		manifest *types.SkillManifest
		exec     *Execution
		err      error
	}
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan attempt, len(cands))
	var wg sync.WaitGroup
	for _, c := range cands {
		wg.Add(1)
		go func(c candidate) {
			defer wg.Done()
			execCtx, execCancel := context.WithTimeout(raceCtx, r.raceTimeout)
			defer execCancel()
			exec, err := r.executeManifest(execCtx, c.manifest, req.executeOptions())
			results <- attempt{manifest: c.manifest, exec: exec, err: err}
		}(c)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	for a := range results {
		if a.err == nil {
			cancel()
			return a.manifest, a.exec, nil
		}
		if firstErr == nil {
			firstErr = a.err
		}
	}
	return nil, nil, firstErr
}

// persistMarketplaceWin saves a fetched skill locally so the next
// resolution is served from disk.
func (r *Resolver) persistMarketplaceWin(m *types.SkillManifest) {
	if err := r.store.SaveManifest(m); err != nil {
		r.logger.Warn("persist marketplace skill", "skill", m.SkillID, "error", err)
		return
	}
	meta := &skillstore.MarketplaceMeta{SkillID: m.SkillID, IndexURL: r.market.BaseURL(), Name: m.Name}
	if err := r.store.SaveMarketplaceMeta(m.SkillID, meta); err != nil {
		r.logger.Warn("persist marketplace meta", "skill", m.SkillID, "error", err)
	}
	r.index.Upsert(m)
}

// captureAndDecide runs the live-capture rung: reuse a just-captured
// skill when one is fresh, otherwise drive the browser and decide
// whether to auto-execute what was learned.
func (r *Resolver) captureAndDecide(ctx context.Context, req Request, domain string, started time.Time, timing *types.OrchestrationTiming, lastErr error) (*Response, error) {
	if req.Context == nil || req.Context.URL == "" {
		if lastErr != nil && fault.Is(lastErr, fault.CodeAuthRequired) {
			return nil, lastErr
		}
		return nil, fault.New(fault.CodeInput,
			"no saved skill matched this intent; provide context.url so it can be learned live")
	}
	if r.captures == nil {
		return nil, fault.New(fault.CodeInternal, "live capture is not configured on this resolver")
	}

	if !req.ForceCapture {
		if m, ok := r.captured.Get(domain); ok {
			exec, err := r.executeManifest(ctx, m, req.executeOptions())
			if err == nil {
				timing.CacheHit = true
				return r.respond(m, exec, types.SourceLiveCapture, req, started, timing)
			}
			r.captured.Evict(domain)
		}
	}

	captureStart := r.now()
	outcome, err := r.captures.Run(ctx, capture.Request{
		URL:     req.Context.URL,
		Intent:  req.Intent,
		Actions: req.Context.Actions,
	})
	if err != nil {
		return nil, err
	}
	captureMs := r.sinceMs(captureStart)
	m := outcome.Skill
	if m != nil {
		r.captured.Put(domain, m)
		r.routes.Put(domain, req.Intent, m.SkillID)
	}

	// The page itself is the data when nothing API-shaped was captured.
	if m == nil || m.ExecutionType == types.ExecutionDOMExtraction {
		return r.domFallback(m, outcome, req, started, timing, captureMs)
	}

	if req.EndpointID != "" {
		ep := m.Endpoint(req.EndpointID)
		if ep == nil {
			return nil, fault.NotFound("endpoint", req.EndpointID)
		}
		return r.executeCaptured(ctx, m, ep, outcome, req, started, timing)
	}

	ranked := rankEndpoints(m)
	if shouldAutoExecute(ranked, m, outcome.Auth) {
		ep := m.Endpoint(ranked[0].EndpointID)
		return r.executeCaptured(ctx, m, ep, outcome, req, started, timing)
	}

	// Defer: hand the ranked endpoints back for the agent to choose.
	resp := &Response{
		Skill:              &SkillRef{SkillID: m.SkillID, Name: m.Name, Domain: m.Domain},
		Source:             types.SourceLiveCapture,
		Timing:             timing,
		AvailableEndpoints: ranked,
		Message:            "capture learned " + m.Name + "; pick an endpoint_id to execute",
	}
	r.stampTiming(timing, types.SourceLiveCapture, m, started, 0)
	return resp, nil
}

// domFallback serves the rendered page snapshot as the result.
func (r *Resolver) domFallback(m *types.SkillManifest, outcome *capture.Outcome, req Request, started time.Time, timing *types.OrchestrationTiming, captureMs int64) (*Response, error) {
	var result any
	var responseBytes int64
	if outcome.Snapshot != nil {
		result = map[string]any{
			"url":     outcome.Snapshot.URL,
			"title":   outcome.Snapshot.Title,
			"content": outcome.Snapshot.Content,
		}
		responseBytes = int64(len(outcome.Snapshot.Content))
	}
	projected, err := r.applyProjection(result, m, "", req.Projection)
	if err != nil {
		return nil, err
	}

	timing.ExecuteMs = captureMs
	saved := r.stampTiming(timing, types.SourceDOMFallback, m, started, responseBytes)
	resp := &Response{
		Result: projected,
		Source: types.SourceDOMFallback,
		Timing: timing,
	}
	if m != nil {
		resp.Skill = &SkillRef{SkillID: m.SkillID, Name: m.Name, Domain: m.Domain}
		r.market.PostPerf(&marketplace.PerfReport{
			SkillID:     m.SkillID,
			Success:     true,
			LatencyMs:   captureMs,
			TokensSaved: saved,
			Source:      string(types.SourceDOMFallback),
		})
	}
	return resp, nil
}

// executeCaptured replays the captured exchange chain for one endpoint,
// correlated values re-derived from the live capture.
func (r *Resolver) executeCaptured(ctx context.Context, m *types.SkillManifest, ep *types.SkillEndpoint, outcome *capture.Outcome, req Request, started time.Time, timing *types.OrchestrationTiming) (*Response, error) {
	if outcome.Set == nil {
		return nil, fault.New(fault.CodeInternal, "capture produced no exchange set")
	}
	exchanges := make([]*types.CapturedExchange, len(outcome.Set.Exchanges))
	for i := range outcome.Set.Exchanges {
		exchanges[i] = &outcome.Set.Exchanges[i]
	}
	prep := &replay.PrepareOptions{SessionHeaders: sessionHeaders(outcome.Auth)}

	execStart := r.now()
	chain, err := replay.ExecuteChain(ctx, exchanges, outcome.Graph, ep.ExampleIndex, r.exec.Transport(), prep)
	execMs := r.sinceMs(execStart)
	if err != nil {
		return nil, err
	}
	final := chain.Final
	if final == nil {
		return nil, fault.New(fault.CodeInternal, "capture chain produced no final response")
	}

	trace := &types.ExecutionTrace{
		TraceID:      newTraceID(),
		TraceVersion: types.TraceVersion,
		SkillID:      m.SkillID,
		EndpointID:   ep.EndpointID,
		StartedAt:    types.Timestamp(execStart),
		CompletedAt:  types.Timestamp(r.now()),
		StatusCode:   final.Status,
	}
	exec := &Execution{
		Trace:         trace,
		Endpoint:      ep,
		ResponseBytes: int64(len(final.BodyText)),
	}
	trace.TokensUsed = exec.ResponseBytes / 4
	if !final.OK() {
		if final.Status == 401 || final.Status == 403 {
			return nil, fault.Newf(fault.CodeAuthRequired,
				"%s rejected the captured session (status %d)", m.Domain, final.Status)
		}
		return nil, fault.Newf(fault.CodeUpstream, "endpoint %s returned status %d", ep.EndpointID, final.Status)
	}
	trace.Success = true
	if final.BodyJSON != nil {
		exec.Result = final.BodyJSON
	} else {
		exec.Result = final.BodyText
	}
	timing.ExecuteMs = execMs
	return r.respond(m, exec, types.SourceLiveCapture, req, started, timing)
}

// respond applies the projection, stamps timing and savings, emits perf
// telemetry, and shapes the final response.
func (r *Resolver) respond(m *types.SkillManifest, exec *Execution, source types.ResolveSource, req Request, started time.Time, timing *types.OrchestrationTiming) (*Response, error) {
	result := exec.Result
	endpointID := ""
	if exec.Endpoint != nil {
		endpointID = exec.Endpoint.EndpointID
	}
	if !req.DryRun {
		projected, err := r.applyProjection(result, m, endpointID, req.Projection)
		if err != nil {
			return nil, err
		}
		result = projected
	}

	if timing.ExecuteMs == 0 && exec.Trace != nil {
		timing.ExecuteMs = int64(exec.Trace.CompletedAt.Time().Sub(exec.Trace.StartedAt.Time()) / time.Millisecond)
	}
	saved := r.stampTiming(timing, source, m, started, exec.ResponseBytes)

	if exec.Trace != nil {
		exec.Trace.TokensSaved = saved
		exec.Trace.TokensSavedPc = timing.TokensSavedPct
	}

	resp := &Response{
		Result: result,
		Skill:  &SkillRef{SkillID: m.SkillID, Name: m.Name, Domain: m.Domain},
		Source: source,
		Timing: timing,
	}
	if exec.Trace != nil {
		resp.Trace = exec.Trace.Slim()
	}
	if req.DryRun && exec.Prepared != nil {
		resp.Message = "dry run: request prepared but not sent"
	}

	if !req.DryRun {
		r.market.PostPerf(&marketplace.PerfReport{
			SkillID:     m.SkillID,
			EndpointID:  endpointID,
			Success:     true,
			LatencyMs:   timing.ExecuteMs,
			TokensSaved: saved,
			Source:      string(source),
		})
	}
	return resp, nil
}

// applyProjection runs the explicit projection when given, else the
// recipe stored for the endpoint. A failing explicit projection is the
// caller's error; a failing stored recipe degrades to the raw result.
func (r *Resolver) applyProjection(result any, m *types.SkillManifest, endpointID string, explicit *types.Recipe) (any, error) {
	if explicit != nil {
		out, _, err := project.Apply(result, explicit)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	if m == nil || endpointID == "" {
		return result, nil
	}
	recipe, err := r.store.Recipe(m.SkillID, endpointID)
	if err != nil || recipe == nil {
		return result, nil
	}
	out, _, err := project.Apply(result, recipe)
	if err != nil {
		r.logger.Warn("stored recipe failed; returning raw result",
			"skill", m.SkillID, "endpoint", endpointID, "error", err)
		return result, nil
	}
	return out, nil
}

// stampTiming finalizes the timing record and returns tokens saved.
func (r *Resolver) stampTiming(timing *types.OrchestrationTiming, source types.ResolveSource, m *types.SkillManifest, started time.Time, responseBytes int64) int64 {
	baselineMs := int64(defaultBaselineMs)
	baselineTokens := int64(defaultBaselineToken)
	if m != nil && m.DiscoveryCost != nil {
		if m.DiscoveryCost.CaptureMs > 0 {
			baselineMs = m.DiscoveryCost.CaptureMs
		}
		if m.DiscoveryCost.CaptureTokens > 0 {
			baselineTokens = m.DiscoveryCost.CaptureTokens
		}
	}
	responseTokens := responseBytes / 4
	saved := baselineTokens - responseTokens
	if saved < 0 {
		saved = 0
	}

	timing.Source = source
	timing.TotalMs = r.sinceMs(started)
	timing.ResponseBytes = responseBytes
	timing.TokensSaved = saved
	if baselineTokens > 0 {
		timing.TokensSavedPct = float64(saved) * 100 / float64(baselineTokens)
	}
	if baselineMs > 0 && timing.TotalMs < baselineMs {
		timing.TimeSavedPct = float64(baselineMs-timing.TotalMs) * 100 / float64(baselineMs)
	}
	if m != nil {
		timing.SkillID = m.SkillID
	}
	return saved
}

func (r *Resolver) sinceMs(t time.Time) int64 {
	return int64(r.now().Sub(t) / time.Millisecond)
}

func sessionHeaders(auth *types.AuthState) map[string]string {
	if auth == nil {
		return nil
	}
	out := make(map[string]string, len(auth.Headers)+1)
	for name, value := range auth.Headers {
		out[name] = value
	}
	if cookie := auth.CookieJar.HeaderValue(); cookie != "" {
		out["cookie"] = cookie
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
