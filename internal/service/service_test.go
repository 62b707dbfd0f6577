package service

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unbrowse/unbrowse/internal/capture"
	"github.com/unbrowse/unbrowse/internal/config"
	"github.com/unbrowse/unbrowse/internal/marketplace"
	"github.com/unbrowse/unbrowse/internal/resolver"
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

func newTestService(t *testing.T, opts ...Option) (*Server, *skillstore.Store, *skillindex.Index) {
	t.Helper()
	store := skillstore.New(t.TempDir())
	index := skillindex.New()
	res := resolver.New(store, index,
		resolver.WithMarketplace(quietMarketplace(t)),
		resolver.WithExecutor(resolver.NewExecutor(resolver.WithHTTPClient(&http.Client{Timeout: 5 * time.Second}))),
		resolver.WithRaceTimeout(2*time.Second),
	)
	s := New(&config.Config{Port: 0}, store, res, opts...)
	return s, store, index
}

func seedSkill(t *testing.T, store *skillstore.Store, index *skillindex.Index, base string) *types.SkillManifest {
	t.Helper()
	m := &types.SkillManifest{
		SkillID:         "sk_shop",
		Name:            "shop items",
		Domain:          "127.0.0.1",
		Lifecycle:       types.LifecycleActive,
		ExecutionType:   types.ExecutionAPI,
		IntentSignature: "list shop items",
		UpdatedAt:       types.Now(),
		Endpoints: []types.SkillEndpoint{
			{
				EndpointID:       "list-items",
				Method:           "GET",
				URLTemplate:      base + "/api/items",
				Category:         types.CategoryRead,
				ResponseSchema:   map[string]string{"items": "array"},
				ReliabilityScore: 0.9,
			},
			{
				EndpointID:        "create-item",
				Method:            "POST",
				URLTemplate:       base + "/api/items",
				Category:          types.CategoryWrite,
				RequestBodySchema: map[string]string{"name": "string"},
				ReliabilityScore:  0.5,
			},
		},
	}
	require.NoError(t, store.SaveManifest(m))
	require.NoError(t, store.SaveAuth(m.SkillID, &types.AuthState{
		Headers:   map[string]string{"authorization": "Bearer tok-1"},
		CookieJar: types.Cookies{{Name: "sid", Value: "s1"}},
	}))
	index.Upsert(m)
	return m
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestService(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestResolveRoute(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"name":"widget"}]}`))
	}))
	defer backend.Close()

	s, store, index := newTestService(t)
	seedSkill(t, store, index, backend.URL)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/intent/resolve",
		map[string]any{"intent": "list shop items"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp resolver.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, types.SourceLocal, resp.Source)
	require.NotNil(t, resp.Skill)
	assert.Equal(t, "sk_shop", resp.Skill.SkillID)
	assert.NotEmpty(t, resp.Trace["trace_id"])
	assert.NotNil(t, resp.Result)
}

func TestResolveValidationError(t *testing.T) {
	s, _, _ := newTestService(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/intent/resolve",
		map[string]any{"intent": "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "input", body.Code)
	assert.NotEmpty(t, body.Error)
}

func TestResolveNoMatchAsksForContext(t *testing.T) {
	s, _, _ := newTestService(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/intent/resolve",
		map[string]any{"intent": "summon the kraken"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "context.url")
}

func TestExecuteRoute(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"1"}]`))
	}))
	defer backend.Close()

	s, store, index := newTestService(t)
	seedSkill(t, store, index, backend.URL)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/skills/sk_shop/execute",
		map[string]any{"endpoint_id": "list-items"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp resolver.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, types.SourceLocal, resp.Source)
	assert.NotNil(t, resp.Result)

	rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/skills/sk_missing/execute", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body.Code)
}

func TestExecuteMutationGuard(t *testing.T) {
	var calls atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer backend.Close()

	s, store, index := newTestService(t)
	seedSkill(t, store, index, backend.URL)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/skills/sk_shop/execute",
		map[string]any{"endpoint_id": "create-item", "params": map[string]any{"name": "widget"}})
	require.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.EqualValues(t, 0, calls.Load())

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "precondition", body.Code)

	rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/skills/sk_shop/execute",
		map[string]any{
			"endpoint_id":    "create-item",
			"params":         map[string]any{"name": "widget"},
			"confirm_unsafe": true,
		})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, calls.Load())
}

func TestAuthFailureBecomesRecommendation(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer backend.Close()

	s, store, index := newTestService(t)
	seedSkill(t, store, index, backend.URL)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/skills/sk_shop/execute",
		map[string]any{"endpoint_id": "list-items"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["auth_recommended"])
	assert.Equal(t, "/v1/auth/login", body["auth_hint"])
	assert.Equal(t, "auth_required", body["code"])
}

func TestFeedbackRoute(t *testing.T) {
	s, store, index := newTestService(t)
	seedSkill(t, store, index, "http://127.0.0.1:1")

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/feedback", map[string]any{
		"skill_id":    "sk_shop",
		"endpoint_id": "list-items",
		"rating":      5,
		"outcome":     "success",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())

	m, err := store.Manifest("sk_shop")
	require.NoError(t, err)
	assert.InDelta(t, 0.93, m.Endpoint("list-items").ReliabilityScore, 1e-9)

	rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/feedback", map[string]any{
		"skill_id": "sk_shop",
		"rating":   9,
		"outcome":  "success",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecipeRoutes(t *testing.T) {
	s, store, index := newTestService(t)
	seedSkill(t, store, index, "http://127.0.0.1:1")

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/skills/sk_shop/endpoints/list-items/recipe",
		map[string]any{"path": "items[]", "extract": "name"})
	require.Equal(t, http.StatusOK, rec.Code)

	saved, err := store.Recipe("sk_shop", "list-items")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "items[]", saved.Path)
	assert.Equal(t, "name", saved.Extract)

	rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/skills/sk_shop/endpoints/nope/recipe",
		map[string]any{"path": "items[]"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	// An empty recipe transforms nothing and is rejected.
	rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/skills/sk_shop/endpoints/list-items/recipe", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchRoutes(t *testing.T) {
	s, _, _ := newTestService(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/search",
		map[string]any{"intent": "currency rates"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/search/domain",
		map[string]any{"intent": "currency rates", "domain": "api.example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/search", map[string]any{"k": 5})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/search/domain",
		map[string]any{"intent": "currency rates"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSkillRoutes(t *testing.T) {
	s, store, index := newTestService(t)
	seedSkill(t, store, index, "http://127.0.0.1:1")

	rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/skills", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []skillSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "sk_shop", list[0].SkillID)
	assert.Equal(t, 2, list[0].Endpoints)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/v1/skills/sk_shop", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Skill   *types.SkillManifest `json:"skill"`
		HasAuth bool                 `json:"has_auth"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.Skill)
	assert.Equal(t, "sk_shop", got.Skill.SkillID)
	assert.True(t, got.HasAuth)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/v1/skills/sk_missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionsRoute(t *testing.T) {
	s, store, _ := newTestService(t)
	s.captures = capture.NewManager(nil, store)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/sessions/example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var h struct {
		Sessions []json.RawMessage `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.NotNil(t, h.Sessions)
	assert.Empty(t, h.Sessions)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/v1/sessions/example.com?limit=-2", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginRoute(t *testing.T) {
	s, store, _ := newTestService(t)

	// Without capture wired the route reports itself unavailable.
	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/auth/login",
		map[string]any{"url": "https://example.com/login"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	// URL validation runs before the browser is touched.
	s.captures = capture.NewManager(nil, store)
	rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/auth/login", map[string]any{"url": "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInstanceLock(t *testing.T) {
	s, _, _ := newTestService(t)

	require.NoError(t, s.acquireLock())
	data, err := os.ReadFile(s.lockPath)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	// Our own pid: a restart of the same process takes over.
	require.NoError(t, s.acquireLock())

	// A live foreign pid refuses startup. Pid 1 always exists.
	require.NoError(t, os.WriteFile(s.lockPath, []byte("1"), 0o644))
	err = s.acquireLock()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another instance")

	// Unreadable content counts as stale and is taken over.
	require.NoError(t, os.WriteFile(s.lockPath, []byte("not-a-pid"), 0o644))
	require.NoError(t, s.acquireLock())

	// Release leaves a foreign lock alone and removes our own.
	require.NoError(t, os.WriteFile(s.lockPath, []byte("1"), 0o644))
	s.releaseLock()
	_, err = os.ReadFile(s.lockPath)
	require.NoError(t, err)

	require.NoError(t, s.acquireLock())
	s.releaseLock()
	_, err = os.ReadFile(s.lockPath)
	assert.True(t, os.IsNotExist(err))
}
