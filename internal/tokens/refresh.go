package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/internal/logging"
	"github.com/unbrowse/unbrowse/pkg/types"
)

const maxTokenResponseBytes = 1 << 20

// Refresher re-executes stored refresh configs over HTTP.
type Refresher struct {
	httpClient *http.Client
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) RefresherOption {
	return func(r *Refresher) {
		r.httpClient = httpClient
	}
}

// NewRefresher creates a refresher with the given request timeout.
func NewRefresher(timeout time.Duration, opts ...RefresherOption) *Refresher {
	r := &Refresher{httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute replays a refresh config and returns the token material from
// the response. Failures are upstream faults.
func (r *Refresher) Execute(ctx context.Context, cfg *types.RefreshConfig) (*types.TokenInfo, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fault.New(fault.CodeInput, "refresh config missing url")
	}
	start := time.Now()

	body, contentType := encodeRefreshBody(cfg)
	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, strings.NewReader(body))
	if err != nil {
		return nil, fault.Wrap(fault.CodeInput, "build refresh request", err)
	}
	for name, value := range cfg.Headers {
		req.Header.Set(name, value)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		slog.Debug("token refresh failed",
			slog.String("url", cfg.URL),
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return nil, fault.Wrap(fault.CodeUpstream, "execute refresh", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return nil, fault.Wrap(fault.CodeUpstream, "read refresh response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fault.New(fault.CodeUpstream, fmt.Sprintf("refresh endpoint returned %d", resp.StatusCode))
	}

	info := ExtractTokenInfo(string(raw))
	if info == nil {
		return nil, fault.New(fault.CodeUpstream, "refresh response carried no tokens")
	}

	slog.Debug("token refresh completed",
		slog.String("url", cfg.URL),
		slog.Int("status", resp.StatusCode),
		logging.SecretValue("access_token", info.AccessToken),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return info, nil
}

// encodeRefreshBody renders the stored body back to wire form, guided
// by the kept content-type header. The current refresh token replaces
// the captured one so rotation keeps working.
func encodeRefreshBody(cfg *types.RefreshConfig) (string, string) {
	contentType := cfg.Headers["content-type"]
	obj, _ := cfg.Body.(map[string]any)
	if obj == nil {
		return cfg.BodyRaw, contentType
	}

	if cfg.RefreshToken != "" {
		for _, key := range []string{"refresh_token", "refreshToken"} {
			if _, ok := obj[key]; ok {
				obj = cloneObject(obj)
				obj[key] = cfg.RefreshToken
				break
			}
		}
	}

	if strings.Contains(strings.ToLower(contentType), "form-urlencoded") {
		values := url.Values{}
		for key, value := range obj {
			values.Set(key, fmt.Sprint(value))
		}
		return values.Encode(), contentType
	}

	encoded, err := json.Marshal(obj)
	if err != nil {
		return cfg.BodyRaw, contentType
	}
	if contentType == "" {
		contentType = "application/json"
	}
	return string(encoded), contentType
}

func cloneObject(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	return out
}

// Apply folds a refresh result back into the config and auth headers:
// new expiry, rotated refresh token, bearer header value. When the
// response carries no expires_in, the access token's own exp claim
// supplies the deadline.
func Apply(cfg *types.RefreshConfig, info *types.TokenInfo, headers map[string]string, now time.Time) {
	if info == nil {
		return
	}
	if info.RefreshToken != "" {
		cfg.RefreshToken = info.RefreshToken
	}
	token := info.AccessToken
	if token == "" {
		token = info.IDToken
	}
	if info.ExpiresIn > 0 {
		cfg.ExpiresInSeconds = info.ExpiresIn
		ts := types.Timestamp(now.Add(time.Duration(info.ExpiresIn) * time.Second))
		cfg.ExpiresAt = &ts
	} else if exp := jwtExpiry(token); exp != nil {
		ts := types.Timestamp(*exp)
		cfg.ExpiresAt = &ts
	}
	if token != "" && headers != nil {
		tokenType := info.TokenType
		if tokenType == "" {
			tokenType = "Bearer"
		}
		headers["authorization"] = tokenType + " " + token
	}
}
