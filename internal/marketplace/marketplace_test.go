package marketplace

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

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/pkg/types"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/skills/search", r.URL.Path)
		require.Equal(t, "key-1", r.Header.Get("X-API-Key"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "fetch orders", req["intent"])
		assert.Equal(t, float64(10), req["k"])

		json.NewEncoder(w).Encode([]types.SkillSearchHit{
			{SkillID: "mk-1", Score: 0.91},
			{SkillID: "mk-2", Score: 0.44},
		})
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithAPIKey("key-1"))
	hits, err := c.Search(context.Background(), "fetch orders", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "mk-1", hits[0].SkillID)
}

func TestSearchDomain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/skills/search/domain", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "example.com", req["domain"])
		json.NewEncoder(w).Encode([]types.SkillSearchHit{{SkillID: "mk-d", Score: 0.8}})
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	hits, err := c.SearchDomain(context.Background(), "example.com", "fetch orders", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "mk-d", hits[0].SkillID)
}

func TestGetSkillNotFoundNoBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "no such skill"})
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := c.GetSkill(context.Background(), "missing")
	assert.Equal(t, fault.CodeNotFound, fault.CodeOf(err))

	// 404 is an answer: the next call still reaches the server.
	_, err = c.GetSkill(context.Background(), "missing")
	assert.Equal(t, fault.CodeNotFound, fault.CodeOf(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestQualityGateBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "quality gate: too few endpoints"})
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := c.Publish(context.Background(), &types.SkillManifest{SkillID: "x"}, "0xabc")
	require.Error(t, err)
	assert.Equal(t, fault.CodeUpstream, fault.CodeOf(err))
	assert.Contains(t, err.Error(), "quality gate")

	// The host is now cooling down: no second request goes out.
	_, err = c.Search(context.Background(), "anything", 5)
	require.Error(t, err)
	assert.Equal(t, fault.CodeUpstream, fault.CodeOf(err))
	assert.Contains(t, err.Error(), "backoff")
	assert.Equal(t, int32(1), calls.Load())
}

func TestBackoffClearsOnSuccess(t *testing.T) {
	b := newHostBackoff()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return base }

	b.note("index.unbrowse.ai", 500)
	_, reason, ok := b.active("index.unbrowse.ai")
	require.True(t, ok)
	assert.Equal(t, "server error", reason)

	b.clear("index.unbrowse.ai")
	_, _, ok = b.active("index.unbrowse.ai")
	assert.False(t, ok)

	// Expired entries evict on read.
	b.note("index.unbrowse.ai", 0)
	base = base.Add(backoffUnknown + time.Second)
	_, _, ok = b.active("index.unbrowse.ai")
	assert.False(t, ok)
}

func TestClassifyBackoff(t *testing.T) {
	for status, want := range map[int]time.Duration{
		422: backoffQualityGate,
		401: backoffAuthRejected,
		403: backoffAuthRejected,
		500: backoffServerError,
		503: backoffServerError,
		0:   backoffUnknown,
		429: backoffUnknown,
	} {
		d, _ := classifyBackoff(status)
		assert.Equal(t, want, d, "status %d", status)
	}
}

func TestShorterWindowNeverShrinksBackoff(t *testing.T) {
	b := newHostBackoff()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return base }

	b.note("h", 422)
	until1, _, _ := b.active("h")
	b.note("h", 500)
	until2, _, _ := b.active("h")
	assert.Equal(t, until1, until2)
}

func TestPostPerf(t *testing.T) {
	got := make(chan PerfReport, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/skills/perf", r.URL.Path)
		var report PerfReport
		require.NoError(t, json.NewDecoder(r.Body).Decode(&report))
		got <- report
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	c.PostPerf(&PerfReport{SkillID: "mk-1", Success: true, LatencyMs: 120, TokensSaved: 29000})

	select {
	case report := <-got:
		assert.Equal(t, "mk-1", report.SkillID)
		assert.True(t, report.Success)
		assert.Equal(t, int64(29000), report.TokensSaved)
	case <-time.After(2 * time.Second):
		t.Fatal("perf report never arrived")
	}
}
