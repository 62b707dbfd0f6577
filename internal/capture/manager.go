package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/unbrowse/unbrowse/internal/browser"
	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/internal/skillstore"
	"github.com/unbrowse/unbrowse/pkg/types"
)

const (
	// DefaultTimeout caps one live capture end to end.
	DefaultTimeout = 120 * time.Second

	detailedHistoryLimit = 15
	summaryHistoryLimit  = 5
)

// Record is one finished session kept in the per-domain history.
type Record struct {
	SessionID  string                  `json:"session_id"`
	Domain     string                  `json:"domain"`
	URL        string                  `json:"url"`
	State      State                   `json:"state"`
	StartedAt  types.Timestamp         `json:"started_at"`
	DurationMs int64                   `json:"duration_ms"`
	Exchanges  []types.ExchangeSummary `json:"exchanges,omitempty"`
	Dropped    int                     `json:"dropped,omitempty"`
	SkillID    string                  `json:"skill_id,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

// Summary is the compact form a Record collapses into once it ages out
// of the detailed window.
type Summary struct {
	SessionID     string          `json:"session_id"`
	Domain        string          `json:"domain"`
	StartedAt     types.Timestamp `json:"started_at"`
	State         State           `json:"state"`
	ExchangeCount int             `json:"exchange_count"`
	SkillID       string          `json:"skill_id,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Summarize collapses a record for the summary ring.
func (r *Record) Summarize() Summary {
	return Summary{
		SessionID:     r.SessionID,
		Domain:        r.Domain,
		StartedAt:     r.StartedAt,
		State:         r.State,
		ExchangeCount: len(r.Exchanges),
		SkillID:       r.SkillID,
		Error:         r.Error,
	}
}

// History is what GET /v1/sessions/{domain} serves.
type History struct {
	Detailed  []*Record `json:"sessions"`
	Summaries []Summary `json:"summaries,omitempty"`
}

type domainHistory struct {
	detailed  []*Record
	summaries []Summary
}

// Manager owns live capture: one exclusive session per domain, bounded
// per-domain history, persistence of learned skills.
type Manager struct {
	browser browser.Capability
	store   *skillstore.Store
	timeout time.Duration
	onSaved func(*types.SkillManifest)

	// pollEvery paces login completion checks.
	pollEvery time.Duration

	mu      sync.Mutex
	active  map[string]*Session
	history map[string]*domainHistory
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout overrides the per-capture deadline.
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.timeout = d }
}

// WithOnSaved registers a callback fired after a learned skill is
// persisted, used to keep the intent index current.
func WithOnSaved(fn func(*types.SkillManifest)) ManagerOption {
	return func(m *Manager) { m.onSaved = fn }
}

// NewManager wires a capture manager over a browser capability and a
// skill store.
func NewManager(b browser.Capability, store *skillstore.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		browser:   b,
		store:     store,
		timeout:   DefaultTimeout,
		pollEvery: 2 * time.Second,
		active:    make(map[string]*Session),
		history:   make(map[string]*domainHistory),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InFlight reports whether a capture is currently running for domain.
func (m *Manager) InFlight(domain string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, busy := m.active[domain]
	return busy
}

// Active returns the running session for domain, if any.
func (m *Manager) Active(domain string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[domain]
}

// Run executes one live capture for req.URL's domain. Parallel captures
// for the same domain are rejected with a retry hint; the caller's
// context is capped by the manager timeout.
func (m *Manager) Run(ctx context.Context, req Request) (*Outcome, error) {
	domain, err := domainOf(req.URL)
	if err != nil {
		return nil, err
	}
	s, err := m.acquire(domain, req.URL)
	if err != nil {
		return nil, err
	}
	defer m.release(domain)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	slog.Info("capture starting", slog.String("domain", domain), slog.String("url", req.URL))
	outcome, runErr := s.run(ctx, m.browser, req)
	m.remember(s.record(outcome, runErr))
	if runErr != nil {
		slog.Warn("capture failed", slog.String("domain", domain), slog.String("error", runErr.Error()))
		return nil, runErr
	}

	if !req.SkipPersist && outcome.Skill != nil {
		bundle := &skillstore.Bundle{Manifest: outcome.Skill, Auth: outcome.Auth, Graph: outcome.Graph}
		if err := m.store.Save(bundle); err != nil {
			// The in-memory result still serves this request; the next
			// resolve recaptures.
			slog.Error("learned skill not persisted",
				slog.String("skill", outcome.Skill.SkillID),
				slog.String("error", err.Error()),
			)
		} else if m.onSaved != nil {
			m.onSaved(outcome.Skill)
		}
	}
	slog.Info("capture finished",
		slog.String("domain", domain),
		slog.Int("exchanges", len(outcome.Set.Exchanges)),
		slog.String("skill", outcome.Skill.SkillID),
	)
	return outcome, nil
}

func (m *Manager) acquire(domain, rawURL string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.active[domain]; busy {
		return nil, fault.Newf(fault.CodeCaptureInFlight,
			"capture already running for %s; retry in a few seconds", domain)
	}
	s := newSession(domain, rawURL)
	m.active[domain] = s
	return s, nil
}

func (m *Manager) release(domain string) {
	m.mu.Lock()
	delete(m.active, domain)
	m.mu.Unlock()
}

// record freezes a finished run into a history entry.
func (s *Session) record(outcome *Outcome, err error) *Record {
	r := &Record{
		SessionID:  s.ID,
		Domain:     s.Domain,
		URL:        s.URL,
		State:      s.State(),
		StartedAt:  types.Timestamp(s.StartedAt),
		DurationMs: time.Since(s.StartedAt).Milliseconds(),
	}
	if err != nil {
		r.Error = err.Error()
		return r
	}
	if outcome != nil {
		r.Dropped = outcome.Dropped
		if outcome.Skill != nil {
			r.SkillID = outcome.Skill.SkillID
		}
		for i := range outcome.Set.Exchanges {
			r.Exchanges = append(r.Exchanges, outcome.Set.Exchanges[i].Summary())
		}
	}
	return r
}

func (m *Manager) remember(r *Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.history[r.Domain]
	if h == nil {
		h = &domainHistory{}
		m.history[r.Domain] = h
	}
	h.detailed = append(h.detailed, r)
	if len(h.detailed) > detailedHistoryLimit {
		aged := h.detailed[0]
		h.detailed = h.detailed[1:]
		h.summaries = append(h.summaries, aged.Summarize())
		if len(h.summaries) > summaryHistoryLimit {
			h.summaries = h.summaries[1:]
		}
	}
}

// History returns the most recent sessions for domain, newest first,
// plus the aged-out summaries. limit <= 0 means everything retained.
func (m *Manager) History(domain string, limit int) History {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := History{}
	h := m.history[domain]
	if h == nil {
		return out
	}
	for i := len(h.detailed) - 1; i >= 0; i-- {
		if limit > 0 && len(out.Detailed) >= limit {
			break
		}
		out.Detailed = append(out.Detailed, h.detailed[i])
	}
	for i := len(h.summaries) - 1; i >= 0; i-- {
		out.Summaries = append(out.Summaries, h.summaries[i])
	}
	return out
}
