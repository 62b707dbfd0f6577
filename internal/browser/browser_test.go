package browser

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgePort(t *testing.T) {
	assert.Equal(t, 18792, BridgePort(18790))
}

func TestNavigateAndWait(t *testing.T) {
	var gotNavigate map[string]string
	var gotWait WaitOptions
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/navigate":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotNavigate))
		case "/wait":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotWait))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	}))
	defer server.Close()

	bridge := NewBridge(server.URL)
	ok, err := bridge.Navigate(context.Background(), "https://app.example.com/login")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://app.example.com/login", gotNavigate["url"])

	ok, err = bridge.Wait(context.Background(), WaitOptions{LoadState: "networkidle", TimeoutMs: 5000})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "networkidle", gotWait.LoadState)
	assert.Equal(t, 5000, gotWait.TimeoutMs)
}

func TestRequestsRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/requests", r.URL.Path)
		var body map[string]bool
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body["clear"])
		json.NewEncoder(w).Encode([]ObservedRequest{
			{
				Method:       "GET",
				URL:          "https://app.example.com/api/orders",
				Status:       200,
				ResourceType: "xhr",
				Headers:      map[string]string{"accept": "application/json"},
				ResponseBody: `{"orders":[]}`,
			},
		})
	}))
	defer server.Close()

	bridge := NewBridge(server.URL)
	reqs, err := bridge.Requests(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "https://app.example.com/api/orders", reqs[0].URL)
	assert.Equal(t, "xhr", reqs[0].ResourceType)
	assert.Equal(t, `{"orders":[]}`, reqs[0].ResponseBody)
}

func TestSnapshotAndAct(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/snapshot":
			var opts SnapshotOptions
			require.NoError(t, json.NewDecoder(r.Body).Decode(&opts))
			assert.True(t, opts.Interactive)
			json.NewEncoder(w).Encode(Snapshot{
				URL:   "https://app.example.com/login",
				Title: "Sign in",
				Elements: []Element{
					{Ref: "e12", Tag: "input", Role: "textbox", Name: "Email"},
				},
			})
		case "/act":
			var action Action
			require.NoError(t, json.NewDecoder(r.Body).Decode(&action))
			assert.Equal(t, "type", action.Kind)
			assert.Equal(t, "e12", action.Ref)
			json.NewEncoder(w).Encode(ActResult{OK: true})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	bridge := NewBridge(server.URL)
	snap, err := bridge.TakeSnapshot(context.Background(), SnapshotOptions{Interactive: true})
	require.NoError(t, err)
	require.Len(t, snap.Elements, 1)
	assert.Equal(t, "e12", snap.Elements[0].Ref)

	res, err := bridge.Act(context.Background(), Action{Kind: "type", Ref: "e12", Text: "user@example.com"})
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestStorageQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/storage", r.URL.Path)
		require.Equal(t, "local", r.URL.Query().Get("kind"))
		json.NewEncoder(w).Encode(map[string]string{"session": "abc"})
	}))
	defer server.Close()

	bridge := NewBridge(server.URL)
	storage, err := bridge.Storage(context.Background(), "local")
	require.NoError(t, err)
	assert.Equal(t, "abc", storage["session"])
}

func TestUnavailableWhenBridgeDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	bridge := NewBridge(server.URL)
	assert.False(t, bridge.IsAvailable(context.Background()))

	_, err := bridge.Navigate(context.Background(), "https://app.example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, Unavailable))

	_, err = bridge.Requests(context.Background(), false)
	assert.True(t, errors.Is(err, Unavailable))
}

func TestBridgeErrorIsNotUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "page crashed"})
	}))
	defer server.Close()

	bridge := NewBridge(server.URL)
	_, err := bridge.Act(context.Background(), Action{Kind: "click", Ref: "e1"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, Unavailable))
	assert.Contains(t, err.Error(), "page crashed")
}

func TestIsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	bridge := NewBridge(server.URL)
	assert.True(t, bridge.IsAvailable(context.Background()))
}

func TestEvaluate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body["js"], "document.title")
		json.NewEncoder(w).Encode(map[string]any{"result": "Sign in"})
	}))
	defer server.Close()

	bridge := NewBridge(server.URL)
	out, err := bridge.Evaluate(context.Background(), "document.title")
	require.NoError(t, err)
	assert.Equal(t, "Sign in", out)
}
