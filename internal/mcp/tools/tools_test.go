package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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

func newTestDeps(t *testing.T) (*Deps, *skillindex.Index) {
	t.Helper()
	store := skillstore.New(t.TempDir())
	index := skillindex.New()
	res := resolver.New(store, index,
		resolver.WithMarketplace(quietMarketplace(t)),
		resolver.WithExecutor(resolver.NewExecutor(resolver.WithHTTPClient(&http.Client{Timeout: 5 * time.Second}))),
		resolver.WithRaceTimeout(2*time.Second),
	)
	d := &Deps{
		Config: &config.Config{
			ToolMaxBytes:         200_000,
			CompactMaxArrayItems: config.DefaultCompactMaxArrayItems,
			CompactMaxStringLen:  config.DefaultCompactMaxStringLen,
		},
		Store:    store,
		Resolver: res,
	}
	return d, index
}

func seedSkill(t *testing.T, d *Deps, index *skillindex.Index, base string) *types.SkillManifest {
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
	require.NoError(t, d.Store.SaveManifest(m))
	require.NoError(t, d.Store.SaveAuth(m.SkillID, &types.AuthState{
		Headers:   map[string]string{"authorization": "Bearer tok-1"},
		CookieJar: types.Cookies{{Name: "sid", Value: "s1"}},
	}))
	index.Upsert(m)
	return m
}

func TestToolResolveIntent(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"id":1,"name":"mug"}]}`))
	}))
	defer backend.Close()

	d, index := newTestDeps(t)
	seedSkill(t, d, index, backend.URL)

	_, out, err := ToolResolveIntent(d)(context.Background(), nil, ResolveIntentInput{
		Intent: "list shop items",
	})
	require.NoError(t, err)
	assert.Equal(t, types.SourceLocal, out.Source)
	require.NotNil(t, out.Skill)
	assert.Equal(t, "sk_shop", out.Skill.SkillID)
	assert.NotNil(t, out.Result)
	assert.False(t, out.ResultCompacted)
	assert.Contains(t, out.Trace, "trace_id")
	// A successful resolution links the manifest resource.
	assert.Contains(t, out.Hints[len(out.Hints)-1], "unbrowse://skill/sk_shop")
}

func TestToolResolveIntentValidation(t *testing.T) {
	d, _ := newTestDeps(t)

	_, _, err := ToolResolveIntent(d)(context.Background(), nil, ResolveIntentInput{})
	require.Error(t, err)
	var coded *CodedError
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ErrCodeInvalidInput, coded.Code)
}

func TestToolResolveIntentAuthRecommendation(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer backend.Close()

	d, index := newTestDeps(t)
	seedSkill(t, d, index, backend.URL)

	_, out, err := ToolResolveIntent(d)(context.Background(), nil, ResolveIntentInput{
		Intent: "list shop items",
	})
	require.NoError(t, err, "auth_required travels as output, not error")
	assert.True(t, out.AuthRecommended)
	assert.Equal(t, authHint, out.AuthHint)
	assert.Nil(t, out.Result)
	assert.NotEmpty(t, out.Message)
}

func TestToolExecuteSkillNotFound(t *testing.T) {
	d, _ := newTestDeps(t)

	_, _, err := ToolExecuteSkill(d)(context.Background(), nil, ExecuteSkillInput{SkillID: "sk_missing"})
	require.Error(t, err)
	var coded *CodedError
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ErrCodeNotFound, coded.Code)
}

func TestToolExecuteSkillMutationGuard(t *testing.T) {
	var calls atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"created":true}`))
	}))
	defer backend.Close()

	d, index := newTestDeps(t)
	seedSkill(t, d, index, backend.URL)

	_, _, err := ToolExecuteSkill(d)(context.Background(), nil, ExecuteSkillInput{
		SkillID:    "sk_shop",
		EndpointID: "create-item",
		Params:     map[string]any{"name": "mug"},
	})
	require.Error(t, err)
	var coded *CodedError
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ErrCodePrecondition, coded.Code)
	assert.Equal(t, int32(0), calls.Load(), "guarded write must not reach the backend")

	_, out, err := ToolExecuteSkill(d)(context.Background(), nil, ExecuteSkillInput{
		SkillID:       "sk_shop",
		EndpointID:    "create-item",
		Params:        map[string]any{"name": "mug"},
		ConfirmUnsafe: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.NotNil(t, out.Result)
}

func TestToolSearchSkills(t *testing.T) {
	d, _ := newTestDeps(t)

	_, _, err := ToolSearchSkills(d)(context.Background(), nil, SearchSkillsInput{Intent: "   "})
	require.Error(t, err)
	var coded *CodedError
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ErrCodeInvalidInput, coded.Code)

	_, out, err := ToolSearchSkills(d)(context.Background(), nil, SearchSkillsInput{
		Intent: "track shipment",
		Domain: "shop.example.com",
	})
	require.NoError(t, err)
	assert.Empty(t, out.Hits)
	require.NotEmpty(t, out.Hints)
	assert.Contains(t, out.Hints[0], "No marketplace hits")
}

func TestToolListSkills(t *testing.T) {
	d, index := newTestDeps(t)
	seedSkill(t, d, index, "http://127.0.0.1")

	_, out, err := ToolListSkills(d)(context.Background(), nil, ListSkillsInput{})
	require.NoError(t, err)
	require.Len(t, out.Skills, 1)
	assert.Equal(t, "sk_shop", out.Skills[0].SkillID)
	assert.Equal(t, 2, out.Skills[0].Endpoints)

	_, out, err = ToolListSkills(d)(context.Background(), nil, ListSkillsInput{Domain: "other.example.com"})
	require.NoError(t, err)
	assert.Empty(t, out.Skills)
	assert.NotEmpty(t, out.Hints)
}

func TestToolGetSkill(t *testing.T) {
	d, index := newTestDeps(t)
	seedSkill(t, d, index, "http://127.0.0.1")

	_, out, err := ToolGetSkill(d)(context.Background(), nil, GetSkillInput{SkillID: "sk_shop"})
	require.NoError(t, err)
	require.NotNil(t, out.Skill)
	assert.True(t, out.HasAuth)
	require.NotEmpty(t, out.Hints)
	assert.Contains(t, out.Hints[0], "unbrowse://skill/sk_shop/dag")

	_, _, err = ToolGetSkill(d)(context.Background(), nil, GetSkillInput{SkillID: "sk_missing"})
	require.Error(t, err)
	var coded *CodedError
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ErrCodeNotFound, coded.Code)
}

func TestToolCaptureSessionUnavailable(t *testing.T) {
	d, _ := newTestDeps(t)

	_, _, err := ToolCaptureSession(d)(context.Background(), nil, CaptureSessionInput{URL: "https://example.com"})
	require.Error(t, err)
	var coded *CodedError
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ErrCodePrecondition, coded.Code)
	assert.Contains(t, coded.Message, "browser gateway")
}

func TestToolCaptureSessionRequiresURL(t *testing.T) {
	d, _ := newTestDeps(t)
	d.Captures = capture.NewManager(nil, d.Store)

	_, _, err := ToolCaptureSession(d)(context.Background(), nil, CaptureSessionInput{URL: "  "})
	require.Error(t, err)
	var coded *CodedError
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ErrCodeInvalidInput, coded.Code)
}

func TestToolApplyProjection(t *testing.T) {
	d, index := newTestDeps(t)
	seedSkill(t, d, index, "http://127.0.0.1")

	data := map[string]any{"items": []any{
		map[string]any{"id": float64(1), "name": "mug", "price": 9.5},
		map[string]any{"id": float64(2), "name": "cap", "price": 14.0},
	}}

	_, out, err := ToolApplyProjection(d)(context.Background(), nil, ApplyProjectionInput{
		Data:       data,
		Projection: &types.Recipe{Path: "items[]", Extract: "name"},
	})
	require.NoError(t, err)
	assert.False(t, out.Saved)
	rows, ok := out.Result.([]any)
	require.True(t, ok)
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]any{"name": "mug"}, rows[0])

	// Persisting requires a real endpoint.
	_, _, err = ToolApplyProjection(d)(context.Background(), nil, ApplyProjectionInput{
		Data:       data,
		Projection: &types.Recipe{Path: "items[]"},
		SkillID:    "sk_shop",
		EndpointID: "nope",
	})
	require.Error(t, err)
	var coded *CodedError
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ErrCodeNotFound, coded.Code)

	_, out, err = ToolApplyProjection(d)(context.Background(), nil, ApplyProjectionInput{
		Data:       data,
		Projection: &types.Recipe{Path: "items[]", Limit: 1},
		SkillID:    "sk_shop",
		EndpointID: "list-items",
	})
	require.NoError(t, err)
	assert.True(t, out.Saved)
	stored, err := d.Store.Recipe("sk_shop", "list-items")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 1, stored.Limit)
}

func TestToolApplyProjectionRejectsEmptyRecipe(t *testing.T) {
	d, _ := newTestDeps(t)

	_, _, err := ToolApplyProjection(d)(context.Background(), nil, ApplyProjectionInput{
		Data:       map[string]any{"a": float64(1)},
		Projection: &types.Recipe{},
	})
	require.Error(t, err)
	var coded *CodedError
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ErrCodeInvalidInput, coded.Code)
}

func TestBudgetResult(t *testing.T) {
	d, _ := newTestDeps(t)
	d.Config.ToolMaxBytes = 120

	small := map[string]any{"ok": true}
	got, compacted := d.budgetResult(small)
	assert.False(t, compacted)
	assert.Equal(t, small, got)

	big := make([]any, 50)
	for i := range big {
		big[i] = map[string]any{"name": "item", "index": i}
	}
	got, compacted = d.budgetResult(big)
	assert.True(t, compacted)
	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "more items")
}
