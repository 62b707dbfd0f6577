package skill

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unbrowse/unbrowse/internal/headerprof"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// DefaultVerifyWorkers bounds concurrent verification probes.
const DefaultVerifyWorkers = 4

// Prober issues one verification probe and reports the status code.
type Prober func(ctx context.Context, method, rawURL string, headers map[string]string) (int, error)

// VerifyOutcome summarizes a verification pass.
type VerifyOutcome struct {
	Verified    int `json:"verified"`
	Removed     int `json:"removed"`
	NotTestable int `json:"not_testable"`
}

// VerifyEndpoints probes every GET endpoint with a concrete path using
// app-category headers plus the current cookie jar. Successful probes
// mark the endpoint verified; failing ones are removed from the
// manifest. Templated endpoints cannot be probed and are only counted.
func VerifyEndpoints(ctx context.Context, m *types.SkillManifest, headers map[string]string, cookies types.Cookies, prober Prober, workers int) VerifyOutcome {
	if workers <= 0 {
		workers = DefaultVerifyWorkers
	}
	probeHeaders := appHeaders(headers)
	if len(cookies) > 0 {
		probeHeaders["cookie"] = cookies.HeaderValue()
	}

	var outcome VerifyOutcome
	ok := make([]bool, len(m.Endpoints))
	eligible := make([]bool, len(m.Endpoints))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range m.Endpoints {
		ep := &m.Endpoints[i]
		if ep.Method != http.MethodGet {
			continue
		}
		if ep.Templated() {
			outcome.NotTestable++
			continue
		}
		eligible[i] = true
		i := i
		g.Go(func() error {
			status, err := prober(gctx, ep.Method, ep.URLTemplate, probeHeaders)
			ok[i] = err == nil && status >= 200 && status <= 299
			return nil
		})
	}
	g.Wait()

	kept := m.Endpoints[:0]
	for i := range m.Endpoints {
		ep := m.Endpoints[i]
		switch {
		case !eligible[i]:
			kept = append(kept, ep)
		case ok[i]:
			ep.VerificationStatus = types.VerifyVerified
			if ep.ReliabilityScore < verifiedReliability {
				ep.ReliabilityScore = verifiedReliability
			}
			outcome.Verified++
			kept = append(kept, ep)
		default:
			outcome.Removed++
		}
	}
	m.Endpoints = kept
	return outcome
}

// appHeaders keeps only app-category headers: probes must not replay
// auth material or browser fingerprints.
func appHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		if headerprof.Classify(name) == headerprof.CategoryApp {
			out[name] = value
		}
	}
	return out
}

// NewHTTPProber adapts an HTTP client into a Prober.
func NewHTTPProber(client *http.Client) Prober {
	return func(ctx context.Context, method, rawURL string, headers map[string]string) (int, error) {
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
		if err != nil {
			return 0, err
		}
		for name, value := range headers {
			req.Header.Set(name, value)
		}
		resp, err := client.Do(req)
		if err != nil {
			slog.Debug("verification probe failed",
				slog.String("url", rawURL),
				slog.String("error", err.Error()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()))
			return 0, err
		}
		resp.Body.Close()
		slog.Debug("verification probe",
			slog.String("url", rawURL),
			slog.Int("status", resp.StatusCode),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
		return resp.StatusCode, nil
	}
}
