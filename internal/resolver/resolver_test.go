package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/internal/marketplace"
	"github.com/unbrowse/unbrowse/internal/skillindex"
	"github.com/unbrowse/unbrowse/internal/skillstore"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// quietMarketplace is an index stub whose searches find nothing.
func quietMarketplace(t *testing.T) *marketplace.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/skills/perf" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)
	return marketplace.New(marketplace.WithBaseURL(srv.URL), marketplace.WithHTTPClient(srv.Client()))
}

// localSkill writes a manifest plus auth into the store and index.
func localSkill(t *testing.T, store *skillstore.Store, index *skillindex.Index, base string) *types.SkillManifest {
	t.Helper()
	m := executorManifest(base)
	m.Name = "shop items"
	m.IntentSignature = "list shop items"
	require.NoError(t, store.SaveManifest(m))
	require.NoError(t, store.SaveAuth(m.SkillID, testAuth()))
	index.Upsert(m)
	return m
}

func newTestResolver(t *testing.T, opts ...ResolverOption) (*Resolver, *skillstore.Store, *skillindex.Index) {
	t.Helper()
	store := skillstore.New(t.TempDir())
	index := skillindex.New()
	base := []ResolverOption{
		WithMarketplace(quietMarketplace(t)),
		WithExecutor(NewExecutor(WithHTTPClient(&http.Client{Timeout: 5 * time.Second}))),
		WithRaceTimeout(2 * time.Second),
	}
	r := New(store, index, append(base, opts...)...)
	return r, store, index
}

func TestResolveRequiresIntent(t *testing.T) {
	r, _, _ := newTestResolver(t)
	_, err := r.Resolve(context.Background(), Request{Intent: "   "})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeInput))
}

func TestResolveLocalThenRouteCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"7","name":"widget"}`))
	}))
	defer srv.Close()

	r, store, index := newTestResolver(t)
	localSkill(t, store, index, srv.URL)

	resp, err := r.Resolve(context.Background(), Request{Intent: "list shop items"})
	require.NoError(t, err)
	assert.Equal(t, types.SourceLocal, resp.Source)
	require.NotNil(t, resp.Skill)
	assert.Equal(t, "sk_shop", resp.Skill.SkillID)
	require.NotNil(t, resp.Timing)
	assert.False(t, resp.Timing.CacheHit)
	assert.NotNil(t, resp.Result)
	assert.NotEmpty(t, resp.Trace["trace_id"])

	cached, err := r.Resolve(context.Background(), Request{Intent: "list shop items"})
	require.NoError(t, err)
	assert.Equal(t, types.SourceRouteCache, cached.Source)
	assert.True(t, cached.Timing.CacheHit)
}

func TestResolveTokenSavingsAccounting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"7"}`))
	}))
	defer srv.Close()

	r, store, index := newTestResolver(t)
	m := localSkill(t, store, index, srv.URL)
	m.DiscoveryCost = &types.DiscoveryCost{CaptureMs: 10_000, CaptureTokens: 4_000, ResponseBytes: 16_000}
	require.NoError(t, store.SaveManifest(m))
	index.Upsert(m)

	resp, err := r.Resolve(context.Background(), Request{Intent: "list shop items"})
	require.NoError(t, err)

	// Response is 10 bytes, 2 tokens; baseline from discovery cost.
	assert.Equal(t, int64(3998), resp.Timing.TokensSaved)
	assert.InDelta(t, 99.95, resp.Timing.TokensSavedPct, 0.01)
	assert.Positive(t, resp.Timing.TimeSavedPct)
	assert.Equal(t, int64(10), resp.Timing.ResponseBytes)
}

func TestResolveNoMatchNeedsContextURL(t *testing.T) {
	r, _, _ := newTestResolver(t)
	_, err := r.Resolve(context.Background(), Request{Intent: "find flights to mars"})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeInput))
	assert.Contains(t, err.Error(), "context.url")
}

func TestResolveCaptureUnconfigured(t *testing.T) {
	r, _, _ := newTestResolver(t)
	_, err := r.Resolve(context.Background(), Request{
		Intent:  "find flights to mars",
		Context: &IntentContext{URL: "https://flights.example.com"},
	})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeInternal))
	assert.Contains(t, err.Error(), "live capture")
}

func TestResolveSurfacesAuthFailure(t *testing.T) {
	var status atomic.Int32
	status.Store(200)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := int(status.Load())
		w.WriteHeader(code)
		if code == 200 {
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	r, store, index := newTestResolver(t)
	localSkill(t, store, index, srv.URL)

	_, err := r.Resolve(context.Background(), Request{Intent: "list shop items"})
	require.NoError(t, err)

	// Session expired upstream: the cached route fails, is evicted, and
	// the auth failure surfaces instead of a generic miss.
	status.Store(401)
	_, err = r.Resolve(context.Background(), Request{Intent: "list shop items"})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeAuthRequired))

	// Recovery goes through the full ladder again.
	status.Store(200)
	resp, err := r.Resolve(context.Background(), Request{Intent: "list shop items"})
	require.NoError(t, err)
	assert.Equal(t, types.SourceLocal, resp.Source)
}

func TestResolveMarketplaceWinIsPersisted(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rates":{"usd":1.0}}`))
	}))
	defer api.Close()

	remote := &types.SkillManifest{
		SkillID:       "sk_remote",
		SchemaVersion: 1,
		Name:          "currency rates",
		Domain:        "127.0.0.1",
		Lifecycle:     types.LifecycleActive,
		ExecutionType: types.ExecutionAPI,
		UpdatedAt:     types.Now(),
		Endpoints: []types.SkillEndpoint{{
			EndpointID:         "rates",
			Method:             "GET",
			URLTemplate:        api.URL + "/api/rates",
			Category:           types.CategoryRead,
			ResponseSchema:     map[string]string{"rates": "object"},
			ReliabilityScore:   0.9,
			VerificationStatus: types.VerifyVerified,
		}},
	}
	market := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/skills/search":
			json.NewEncoder(w).Encode([]types.SkillSearchHit{{SkillID: "sk_remote", Score: 0.9}})
		case "/skills/sk_remote":
			json.NewEncoder(w).Encode(remote)
		case "/skills/perf":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer market.Close()

	store := skillstore.New(t.TempDir())
	index := skillindex.New()
	r := New(store, index,
		WithMarketplace(marketplace.New(marketplace.WithBaseURL(market.URL), marketplace.WithHTTPClient(market.Client()))),
		WithExecutor(NewExecutor(WithHTTPClient(&http.Client{Timeout: 5 * time.Second}))),
		WithRaceTimeout(2*time.Second),
	)

	resp, err := r.Resolve(context.Background(), Request{Intent: "currency rates"})
	require.NoError(t, err)
	assert.Equal(t, types.SourceMarketplace, resp.Source)
	assert.Equal(t, "sk_remote", resp.Skill.SkillID)
	assert.Equal(t, 1, resp.Timing.CandidatesFound)
	assert.Equal(t, 1, resp.Timing.CandidatesTried)

	saved, err := store.Manifest("sk_remote")
	require.NoError(t, err)
	assert.Equal(t, "currency rates", saved.Name)
	meta, err := store.MarketplaceMeta("sk_remote")
	require.NoError(t, err)
	assert.Equal(t, market.URL, meta.IndexURL)
	require.NotNil(t, index.Get("sk_remote"))

	cached, err := r.Resolve(context.Background(), Request{Intent: "currency rates"})
	require.NoError(t, err)
	assert.Equal(t, types.SourceRouteCache, cached.Source)
}

func TestResolveMarketplaceRaceFirstSuccessWins(t *testing.T) {
	var slowCalls, badCalls atomic.Int32

	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rates":{"usd":1.0}}`))
	}))
	defer fast.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slowCalls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
		w.Write([]byte(`{"rates":{}}`))
	}))
	defer slow.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		badCalls.Add(1)
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	manifest := func(id, base string) *types.SkillManifest {
		return &types.SkillManifest{
			SkillID:       id,
			SchemaVersion: 1,
			Name:          id,
			Domain:        "127.0.0.1",
			Lifecycle:     types.LifecycleActive,
			ExecutionType: types.ExecutionAPI,
			UpdatedAt:     types.Now(),
			Endpoints: []types.SkillEndpoint{{
				EndpointID:         "rates",
				Method:             "GET",
				URLTemplate:        base + "/api/rates",
				Category:           types.CategoryRead,
				ResponseSchema:     map[string]string{"rates": "object"},
				ReliabilityScore:   0.9,
				VerificationStatus: types.VerifyVerified,
			}},
		}
	}
	byID := map[string]*types.SkillManifest{
		"sk_slow": manifest("sk_slow", slow.URL),
		"sk_fast": manifest("sk_fast", fast.URL),
		"sk_bad":  manifest("sk_bad", bad.URL),
	}
	market := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/skills/search":
			json.NewEncoder(w).Encode([]types.SkillSearchHit{
				{SkillID: "sk_slow", Score: 0.95},
				{SkillID: "sk_fast", Score: 0.9},
				{SkillID: "sk_bad", Score: 0.85},
			})
		case r.URL.Path == "/skills/perf":
			w.WriteHeader(http.StatusNoContent)
		case strings.HasPrefix(r.URL.Path, "/skills/"):
			if m := byID[strings.TrimPrefix(r.URL.Path, "/skills/")]; m != nil {
				json.NewEncoder(w).Encode(m)
				return
			}
			http.NotFound(w, r)
		default:
			http.NotFound(w, r)
		}
	}))
	defer market.Close()

	store := skillstore.New(t.TempDir())
	index := skillindex.New()
	r := New(store, index,
		WithMarketplace(marketplace.New(marketplace.WithBaseURL(market.URL), marketplace.WithHTTPClient(market.Client()))),
		WithExecutor(NewExecutor(WithHTTPClient(&http.Client{Timeout: 5 * time.Second}))),
		WithRaceTimeout(4*time.Second),
	)

	started := time.Now()
	resp, err := r.Resolve(context.Background(), Request{Intent: "currency rates"})
	elapsed := time.Since(started)
	require.NoError(t, err)

	assert.Equal(t, types.SourceMarketplace, resp.Source)
	assert.Equal(t, "sk_fast", resp.Skill.SkillID)
	assert.Equal(t, 3, resp.Timing.CandidatesFound)
	assert.Equal(t, 3, resp.Timing.CandidatesTried)

	// The win came back without waiting out the slow candidate.
	assert.Less(t, elapsed, 2*time.Second)
	assert.Equal(t, int32(1), slowCalls.Load())
	assert.Equal(t, int32(1), badCalls.Load())

	saved, err := store.Manifest("sk_fast")
	require.NoError(t, err)
	assert.Equal(t, "sk_fast", saved.SkillID)
}

func TestResolveAppliesStoredRecipe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"name":"a","noise":1},{"name":"b","noise":2}]}`))
	}))
	defer srv.Close()

	r, store, index := newTestResolver(t)
	m := localSkill(t, store, index, srv.URL)
	require.NoError(t, store.SaveRecipe(m.SkillID, "list-items", &types.Recipe{
		Path:    "items[]",
		Extract: "name",
	}))

	resp, err := r.Resolve(context.Background(), Request{
		Intent:     "list shop items",
		EndpointID: "list-items",
	})
	require.NoError(t, err)

	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"a"},{"name":"b"}]`, string(data))
}

func TestResolveExplicitProjectionOverridesStored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"name":"a"},{"name":"b"}]}`))
	}))
	defer srv.Close()

	r, store, index := newTestResolver(t)
	m := localSkill(t, store, index, srv.URL)
	require.NoError(t, store.SaveRecipe(m.SkillID, "list-items", &types.Recipe{Path: "items[]"}))

	resp, err := r.Resolve(context.Background(), Request{
		Intent:     "list shop items",
		EndpointID: "list-items",
		Projection: &types.Recipe{JQ: ".items | length"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, resp.Result)
}

func TestResolveDryRun(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	r, store, index := newTestResolver(t)
	localSkill(t, store, index, srv.URL)

	resp, err := r.Resolve(context.Background(), Request{
		Intent:     "list shop items",
		EndpointID: "list-items",
		DryRun:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(0), calls.Load())
	assert.Contains(t, resp.Message, "dry run")
	require.IsType(t, &types.PreparedRequest{}, resp.Result)
}

func TestExecuteSkillDirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	r, store, index := newTestResolver(t)
	m := localSkill(t, store, index, srv.URL)

	resp, err := r.ExecuteSkill(context.Background(), m.SkillID, ExecuteOptions{EndpointID: "list-items"}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.SourceLocal, resp.Source)
	assert.Equal(t, m.SkillID, resp.Skill.SkillID)
	assert.NotNil(t, resp.Result)

	_, err = r.ExecuteSkill(context.Background(), "sk_missing", ExecuteOptions{}, nil)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeNotFound))
}

func TestFeedbackBlendsReliability(t *testing.T) {
	r, store, index := newTestResolver(t)
	m := executorManifest("https://shop.example.com")
	m.Endpoints = m.Endpoints[:1]
	m.Endpoints[0].ReliabilityScore = 0.5
	require.NoError(t, store.SaveManifest(m))
	index.Upsert(m)

	require.NoError(t, r.Feedback(FeedbackRequest{
		SkillID:    m.SkillID,
		EndpointID: "list-items",
		Rating:     5,
		Outcome:    OutcomeSuccess,
	}))

	saved, err := store.Manifest(m.SkillID)
	require.NoError(t, err)
	assert.InDelta(t, 0.65, saved.Endpoints[0].ReliabilityScore, 1e-9)

	// A hard failure marks the endpoint failing; a later strong success
	// clears it back to unverified.
	require.NoError(t, r.Feedback(FeedbackRequest{
		SkillID: m.SkillID, EndpointID: "list-items", Rating: 1, Outcome: OutcomeFailure,
	}))
	saved, err = store.Manifest(m.SkillID)
	require.NoError(t, err)
	assert.Equal(t, types.VerifyFailing, saved.Endpoints[0].VerificationStatus)

	require.NoError(t, r.Feedback(FeedbackRequest{
		SkillID: m.SkillID, EndpointID: "list-items", Rating: 5, Outcome: OutcomeSuccess,
	}))
	saved, err = store.Manifest(m.SkillID)
	require.NoError(t, err)
	assert.Equal(t, types.VerifyUnverified, saved.Endpoints[0].VerificationStatus)

	// Index sees the update without a rebuild.
	assert.Equal(t, saved.Endpoints[0].ReliabilityScore, index.Get(m.SkillID).Endpoints[0].ReliabilityScore)
}

func TestFeedbackValidation(t *testing.T) {
	r, store, index := newTestResolver(t)
	m := executorManifest("https://shop.example.com")
	require.NoError(t, store.SaveManifest(m))
	index.Upsert(m)

	err := r.Feedback(FeedbackRequest{SkillID: m.SkillID, Rating: 6})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeInput))

	err = r.Feedback(FeedbackRequest{SkillID: m.SkillID, Rating: 3, Outcome: "meh"})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeInput))

	err = r.Feedback(FeedbackRequest{SkillID: "sk_missing", Rating: 3})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeNotFound))

	err = r.Feedback(FeedbackRequest{SkillID: m.SkillID, EndpointID: "nope", Rating: 3})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeNotFound))
}

func TestSessionHeaders(t *testing.T) {
	assert.Nil(t, sessionHeaders(nil))
	assert.Nil(t, sessionHeaders(&types.AuthState{}))

	got := sessionHeaders(&types.AuthState{
		Headers:   map[string]string{"authorization": "Bearer x"},
		CookieJar: types.Cookies{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}},
	})
	assert.Equal(t, map[string]string{
		"authorization": "Bearer x",
		"cookie":        "a=1; b=2",
	}, got)
}
