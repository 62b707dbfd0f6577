package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unbrowse/unbrowse/internal/browser"
	"github.com/unbrowse/unbrowse/internal/exchange"
	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// State is one machine state of a live capture session. A session is
// driven by a single task; idle is both the created and the completed
// state, err is terminal.
type State string

const (
	StateIdle         State = "idle"
	StateNavigating   State = "navigating"
	StateSnapshotting State = "snapshotting"
	StateActing       State = "acting"
	StateCapturing    State = "capturing"
	StateFinalizing   State = "finalizing"
	StateError        State = "error"
)

const settleWaitMs = 5000

// metaTokenScript harvests CSRF-ish meta tags from the live page.
const metaTokenScript = `(() => {
  const out = {};
  for (const m of document.querySelectorAll('meta[name]')) {
    const name = m.getAttribute('name') || '';
    if (/csrf|xsrf|token/i.test(name)) out[name] = m.getAttribute('content') || '';
  }
  return out;
})()`

// Request describes one live capture run.
type Request struct {
	URL     string
	Intent  string
	Actions []browser.Action
	// SkipPersist leaves the learned skill in memory only.
	SkipPersist bool
}

// Outcome is what a finished capture hands back to the orchestrator.
type Outcome struct {
	SessionID string
	Analysis
	Snapshot *browser.Snapshot
	Dropped  int
}

// Session is one exclusive per-domain capture run.
type Session struct {
	ID        string
	Domain    string
	URL       string
	StartedAt time.Time

	mu     sync.Mutex
	state  State
	buffer *exchange.Buffer
	done   chan struct{}
}

func newSession(domain, rawURL string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Domain:    domain,
		URL:       rawURL,
		StartedAt: time.Now(),
		state:     StateIdle,
		buffer:    exchange.NewBuffer(exchange.DefaultMaxExchanges),
		done:      make(chan struct{}),
	}
}

// State reports the machine state, safe for concurrent readers.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	slog.Debug("capture state", slog.String("session", s.ID), slog.String("state", string(next)))
}

// Done closes when the driving task finishes, success or not.
func (s *Session) Done() <-chan struct{} { return s.done }

// run drives the session through the machine. It is the only writer of
// session state; callers block on Done or a context deadline.
func (s *Session) run(ctx context.Context, b browser.Capability, req Request) (*Outcome, error) {
	defer close(s.done)

	outcome, err := s.drive(ctx, b, req)
	if err != nil {
		s.setState(StateError)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fault.Wrap(fault.CodeSchedule, fmt.Sprintf("capture of %s timed out", s.Domain), err)
		}
		if errors.Is(err, browser.Unavailable) {
			return nil, fault.Wrap(fault.CodeUpstream, "browser control unavailable; start the gateway or import a HAR instead", err)
		}
		return nil, err
	}
	s.setState(StateIdle)
	return outcome, nil
}

func (s *Session) drive(ctx context.Context, b browser.Capability, req Request) (*Outcome, error) {
	start := time.Now()

	s.setState(StateNavigating)
	if !b.IsAvailable(ctx) {
		if _, err := b.EnsureRunning(ctx); err != nil {
			return nil, err
		}
	}
	if _, err := b.Navigate(ctx, req.URL); err != nil {
		return nil, err
	}
	if _, err := b.Wait(ctx, browser.WaitOptions{LoadState: "networkidle", TimeoutMs: settleWaitMs}); err != nil {
		return nil, err
	}

	s.setState(StateSnapshotting)
	snap, err := b.TakeSnapshot(ctx, browser.SnapshotOptions{Interactive: true})
	if err != nil {
		// A page that cannot be snapshotted can still be captured.
		slog.Warn("snapshot failed", slog.String("session", s.ID), slog.String("error", err.Error()))
	}

	if len(req.Actions) > 0 {
		s.setState(StateActing)
		for _, action := range req.Actions {
			res, err := b.Act(ctx, action)
			if err != nil {
				return nil, err
			}
			if !res.OK {
				slog.Warn("action failed",
					slog.String("session", s.ID),
					slog.String("kind", action.Kind),
					slog.String("ref", action.Ref),
					slog.String("error", res.Error),
				)
				continue
			}
			b.Wait(ctx, browser.WaitOptions{LoadState: "networkidle", TimeoutMs: settleWaitMs})
		}
		if fresh, err := b.TakeSnapshot(ctx, browser.SnapshotOptions{Interactive: true}); err == nil {
			snap = fresh
		}
	}

	s.setState(StateCapturing)
	observed, err := b.Requests(ctx, true)
	if err != nil {
		return nil, err
	}
	for _, obs := range observed {
		if ex, ok := exchange.FromEvent(eventFromObserved(obs)); ok {
			s.buffer.Append(ex)
		}
	}
	page := collectPageState(ctx, b)

	s.setState(StateFinalizing)
	exchanges := s.buffer.Snapshot()
	set := Analyze(exchanges, page)

	now := time.Now()
	cost := &types.DiscoveryCost{
		CaptureMs:     time.Since(start).Milliseconds(),
		ResponseBytes: responseBytes(exchanges),
		CapturedAt:    types.Timestamp(now),
	}
	cost.CaptureTokens = estimateTokens(cost.ResponseBytes)

	var analysis *Analysis
	if len(set.EndpointGroups) == 0 {
		analysis, err = BuildDOMFallback(s.Domain, req.URL, set, now, cost)
	} else {
		analysis, err = Build(set, now, BuildOptions{DiscoveryCost: cost})
	}
	if err != nil {
		return nil, err
	}
	return &Outcome{
		SessionID: s.ID,
		Analysis:  *analysis,
		Snapshot:  snap,
		Dropped:   s.buffer.Dropped(),
	}, nil
}

// eventFromObserved adapts a bridge network event to the exchange
// builder's input, decoding base64-encoded bodies.
func eventFromObserved(obs browser.ObservedRequest) exchange.RawEvent {
	body := obs.ResponseBody
	if obs.BodyEncoding == "base64" {
		if decoded, err := base64.StdEncoding.DecodeString(body); err == nil {
			body = string(decoded)
		}
	}
	return exchange.RawEvent{
		Method:          obs.Method,
		URL:             obs.URL,
		Status:          obs.Status,
		ResourceType:    obs.ResourceType,
		Headers:         obs.Headers,
		ResponseHeaders: obs.ResponseHeaders,
		PostData:        obs.PostData,
		ResponseBody:    body,
		TsMs:            obs.TsMs,
	}
}

// collectPageState reads cookies, web storage and meta tokens from the
// live page. Each read is best-effort; a closed tab loses state, not
// the capture.
func collectPageState(ctx context.Context, b browser.Capability) PageState {
	page := PageState{}
	if cookies, err := b.Cookies(ctx); err == nil {
		page.Cookies = cookies
	}
	if local, err := b.Storage(ctx, "local"); err == nil {
		page.LocalStorage = local
	}
	if session, err := b.Storage(ctx, "session"); err == nil {
		page.SessionStorage = session
	}
	if raw, err := b.Evaluate(ctx, metaTokenScript); err == nil {
		page.MetaTokens = stringMap(raw)
	}
	return page
}

func stringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok && s != "" {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func responseBytes(exchanges []types.CapturedExchange) int64 {
	var total int64
	for i := range exchanges {
		if exchanges[i].Response != nil {
			total += int64(len(exchanges[i].Response.BodyRaw))
		}
	}
	return total
}

// estimateTokens approximates LLM token count from byte size.
func estimateTokens(bytes int64) int64 { return bytes / 4 }

func domainOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", fault.New(fault.CodeInput, "capture requires a target url")
	}
	return u.Hostname(), nil
}
