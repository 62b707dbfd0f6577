package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/unbrowse/unbrowse/pkg/types"
)

const (
	// healthTimeout bounds availability probes.
	healthTimeout = 2 * time.Second
	// callTimeout bounds everything else; page waits carry their own
	// timeout in the request body on top of this.
	callTimeout = 60 * time.Second
)

// BridgePort derives the browser-control port from the gateway port.
func BridgePort(gatewayPort int) int { return gatewayPort + 2 }

// Bridge is the HTTP implementation of Capability against the local
// gateway's browser-control server.
type Bridge struct {
	baseURL    string
	httpClient *http.Client
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) BridgeOption {
	return func(b *Bridge) { b.httpClient = httpClient }
}

// NewBridge connects to an explicit base URL, e.g. http://127.0.0.1:18792.
func NewBridge(baseURL string, opts ...BridgeOption) *Bridge {
	b := &Bridge{baseURL: baseURL, httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewBridgeForGateway connects to the control port derived from the
// gateway port.
func NewBridgeForGateway(gatewayPort int, opts ...BridgeOption) *Bridge {
	return NewBridge(fmt.Sprintf("http://127.0.0.1:%d", BridgePort(gatewayPort)), opts...)
}

func (b *Bridge) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (b *Bridge) EnsureRunning(ctx context.Context) (bool, error) {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := b.call(ctx, http.MethodPost, "/ensure", nil, &out); err != nil {
		return false, err
	}
	return out.OK, nil
}

func (b *Bridge) Navigate(ctx context.Context, target string) (bool, error) {
	var out struct {
		OK bool `json:"ok"`
	}
	err := b.call(ctx, http.MethodPost, "/navigate", map[string]string{"url": target}, &out)
	if err != nil {
		return false, err
	}
	return out.OK, nil
}

func (b *Bridge) Wait(ctx context.Context, opts WaitOptions) (bool, error) {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := b.call(ctx, http.MethodPost, "/wait", opts, &out); err != nil {
		return false, err
	}
	return out.OK, nil
}

func (b *Bridge) TakeSnapshot(ctx context.Context, opts SnapshotOptions) (*Snapshot, error) {
	var out Snapshot
	if err := b.call(ctx, http.MethodPost, "/snapshot", opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *Bridge) Act(ctx context.Context, action Action) (*ActResult, error) {
	var out ActResult
	if err := b.call(ctx, http.MethodPost, "/act", action, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *Bridge) Requests(ctx context.Context, clear bool) ([]ObservedRequest, error) {
	var out []ObservedRequest
	if err := b.call(ctx, http.MethodPost, "/requests", map[string]bool{"clear": clear}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bridge) Cookies(ctx context.Context) (types.Cookies, error) {
	var out types.Cookies
	if err := b.call(ctx, http.MethodGet, "/cookies", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bridge) Storage(ctx context.Context, kind string) (map[string]string, error) {
	var out map[string]string
	path := "/storage?kind=" + url.QueryEscape(kind)
	if err := b.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bridge) Evaluate(ctx context.Context, js string) (any, error) {
	var out struct {
		Result any `json:"result"`
	}
	if err := b.call(ctx, http.MethodPost, "/evaluate", map[string]string{"js": js}, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// call performs one bridge request. Transport failures wrap
// Unavailable; bridge-level errors come back as plain errors.
func (b *Bridge) call(ctx context.Context, method, path string, body, result any) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode bridge request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build bridge request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		slog.Debug("bridge request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return fmt.Errorf("%w: %v", Unavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var errBody struct {
			Error string `json:"error"`
		}
		message := string(data)
		if json.Unmarshal(data, &errBody) == nil && errBody.Error != "" {
			message = errBody.Error
		}
		slog.Debug("bridge request returned error",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return fmt.Errorf("bridge %d: %s", resp.StatusCode, message)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode bridge response: %w", err)
		}
	}
	slog.Debug("bridge request completed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}
