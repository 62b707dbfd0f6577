// Package marketplace is the HTTP client for the skill index: search,
// fetch, publish, and fire-and-forget performance telemetry, with
// per-host failure backoff and client-side rate limiting.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// DefaultIndexURL is the public skill index.
const DefaultIndexURL = "https://index.unbrowse.ai"

const (
	searchTimeout = 15 * time.Second
	fetchTimeout  = 30 * time.Second
)

// Client talks to the marketplace index.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	limiter    *rate.Limiter
	backoff    *hostBackoff
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithBaseURL sets a custom index base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIKey sets the publish credential sent as X-API-Key.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// New creates a marketplace client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultIndexURL,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Limit(5), 10),
		backoff:    newHostBackoff(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the index this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

type searchRequest struct {
	Intent string `json:"intent"`
	K      int    `json:"k"`
	Domain string `json:"domain,omitempty"`
}

// Search runs a global intent search, top k.
func (c *Client) Search(ctx context.Context, intent string, k int) ([]types.SkillSearchHit, error) {
	var hits []types.SkillSearchHit
	err := c.do(ctx, http.MethodPost, "/skills/search", searchRequest{Intent: intent, K: k}, &hits, searchTimeout)
	return hits, err
}

// SearchDomain runs a domain-scoped search, top k.
func (c *Client) SearchDomain(ctx context.Context, domain, intent string, k int) ([]types.SkillSearchHit, error) {
	var hits []types.SkillSearchHit
	err := c.do(ctx, http.MethodPost, "/skills/search/domain", searchRequest{Intent: intent, K: k, Domain: domain}, &hits, searchTimeout)
	return hits, err
}

// GetSkill fetches one published manifest.
func (c *Client) GetSkill(ctx context.Context, skillID string) (*types.SkillManifest, error) {
	var m types.SkillManifest
	if err := c.do(ctx, http.MethodGet, "/skills/"+url.PathEscape(skillID), nil, &m, fetchTimeout); err != nil {
		return nil, err
	}
	return &m, nil
}

type publishRequest struct {
	Skill         *types.SkillManifest `json:"skill"`
	CreatorWallet string               `json:"creatorWallet,omitempty"`
}

// PublishResult is the index's reply to a publish.
type PublishResult struct {
	SkillID    string `json:"skillId"`
	ListingURL string `json:"listingUrl,omitempty"`
}

// Publish uploads a sanitized manifest.
func (c *Client) Publish(ctx context.Context, m *types.SkillManifest, creatorWallet string) (*PublishResult, error) {
	var result PublishResult
	err := c.do(ctx, http.MethodPost, "/skills/publish", publishRequest{Skill: m, CreatorWallet: creatorWallet}, &result, fetchTimeout)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// PerfReport is one execution outcome, reported for reliability
// accounting on the index side.
type PerfReport struct {
	SkillID     string `json:"skill_id"`
	EndpointID  string `json:"endpoint_id,omitempty"`
	Success     bool   `json:"success"`
	LatencyMs   int64  `json:"latency_ms"`
	TokensSaved int64  `json:"tokens_saved"`
	Source      string `json:"source,omitempty"`
}

// PostPerf ships telemetry fire-and-forget: a failed report is logged
// at debug and never blocks or fails the caller.
func (c *Client) PostPerf(report *PerfReport) {
	if report == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
		defer cancel()
		if err := c.do(ctx, http.MethodPost, "/skills/perf", report, nil, searchTimeout); err != nil {
			slog.Debug("perf report dropped", "skill_id", report.SkillID, "error", err)
		}
	}()
}

// do performs one API call: backoff gate, rate limit, request, error
// classification, decode.
func (c *Client) do(ctx context.Context, method, path string, body, result any, timeout time.Duration) error {
	host := c.host()
	if until, reason, ok := c.backoff.active(host); ok {
		return fault.Newf(fault.CodeUpstream, "marketplace in backoff (%s) until %s", reason, until.UTC().Format(time.RFC3339))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fault.Wrap(fault.CodeUpstream, "marketplace rate limiter", err)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fault.Wrap(fault.CodeInternal, "encode marketplace request", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fault.Wrap(fault.CodeInternal, "build marketplace request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.backoff.note(host, 0)
		slog.Debug("marketplace request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return fault.Wrap(fault.CodeUpstream, "marketplace unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		message := parseError(resp)
		slog.Debug("marketplace request returned error",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		if resp.StatusCode == http.StatusNotFound {
			// A missing skill is an answer, not an outage.
			return fault.NotFound("marketplace skill", message)
		}
		c.backoff.note(host, resp.StatusCode)
		return fault.Newf(fault.CodeUpstream, "marketplace %d: %s", resp.StatusCode, message)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fault.Wrap(fault.CodeUpstream, "decode marketplace response", err)
		}
	}
	c.backoff.clear(host)

	slog.Debug("marketplace request completed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}

func (c *Client) host() string {
	if u, err := url.Parse(c.baseURL); err == nil && u.Host != "" {
		return u.Host
	}
	return c.baseURL
}

func parseError(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	if len(data) > 0 {
		return string(data)
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}
