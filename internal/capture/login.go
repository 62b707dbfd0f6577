package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/unbrowse/unbrowse/internal/authstate"
	"github.com/unbrowse/unbrowse/internal/browser"
	"github.com/unbrowse/unbrowse/internal/creds"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// ErrLoginTimeout reports that the user never completed the login
// before the deadline. The control service maps it to 504.
var ErrLoginTimeout = errors.New("login not completed before deadline")

var (
	sessionCookiePattern = regexp.MustCompile(`(?i)sess|sid|token|auth|jwt|remember`)
	loginPathPattern     = regexp.MustCompile(`(?i)login|signin|sign-in|signup|sign-up|auth`)
	usernameFieldPattern = regexp.MustCompile(`(?i)user|email|login|account`)
	passwordFieldPattern = regexp.MustCompile(`(?i)pass`)
	submitButtonPattern  = regexp.MustCompile(`(?i)log ?in|sign ?in|submit|continue`)
)

// LoginResult is the captured auth material from an interactive login.
type LoginResult struct {
	URL            string            `json:"url"`
	Domain         string            `json:"domain"`
	Cookies        types.Cookies     `json:"cookies,omitempty"`
	LocalStorage   map[string]string `json:"localStorage,omitempty"`
	SessionStorage map[string]string `json:"sessionStorage,omitempty"`
	AuthMethod     string            `json:"authMethod,omitempty"`
	SkillID        string            `json:"skill_id,omitempty"`
}

// Login opens an interactive browser session on rawURL, best-effort
// prefills stored credentials, then polls until a session cookie
// appears or the page leaves the login flow. Captured auth state is
// written to the domain's skill directory when one exists.
func (m *Manager) Login(ctx context.Context, rawURL string, provider creds.Provider) (*LoginResult, error) {
	domain, err := domainOf(rawURL)
	if err != nil {
		return nil, err
	}
	if _, err := m.acquire(domain, rawURL); err != nil {
		return nil, err
	}
	defer m.release(domain)

	b := m.browser
	if !b.IsAvailable(ctx) {
		if _, err := b.EnsureRunning(ctx); err != nil {
			return nil, err
		}
	}
	if _, err := b.Navigate(ctx, rawURL); err != nil {
		return nil, err
	}
	b.Wait(ctx, browser.WaitOptions{LoadState: "load", TimeoutMs: settleWaitMs})

	baseline, _ := b.Cookies(ctx)

	if provider != nil {
		if cred, err := provider.Lookup(ctx, domain, "login"); err == nil && cred != nil {
			if prefill(ctx, b, cred) {
				slog.Info("login form prefilled", slog.String("domain", domain))
			}
		}
	}

	ticker := time.NewTicker(m.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrLoginTimeout, domain)
		case <-ticker.C:
		}
		cookies, err := b.Cookies(ctx)
		if err != nil {
			continue
		}
		if !sessionEstablished(baseline, cookies) && !leftLoginPage(ctx, b, rawURL) {
			continue
		}
		return m.sealLogin(ctx, domain, rawURL, cookies)
	}
}

// sealLogin snapshots auth state after a detected login and persists it
// to the matching skill directory.
func (m *Manager) sealLogin(ctx context.Context, domain, rawURL string, cookies types.Cookies) (*LoginResult, error) {
	page := PageState{Cookies: cookies}
	if local, err := m.browser.Storage(ctx, "local"); err == nil {
		page.LocalStorage = local
	}
	if session, err := m.browser.Storage(ctx, "session"); err == nil {
		page.SessionStorage = session
	}
	if raw, err := m.browser.Evaluate(ctx, metaTokenScript); err == nil {
		page.MetaTokens = stringMap(raw)
	}

	res := &LoginResult{
		URL:            rawURL,
		Domain:         domain,
		Cookies:        page.Cookies,
		LocalStorage:   page.LocalStorage,
		SessionStorage: page.SessionStorage,
	}
	st := authstate.Storage{Local: page.LocalStorage, Session: page.SessionStorage, Meta: page.MetaTokens}
	state := authstate.BuildAuthState(baseOf(rawURL), nil, page.Cookies, st, types.Timestamp(time.Now()))
	res.AuthMethod = authstate.InferAuthMethod(state.Headers, state.CookieJar)

	if id := m.skillForDomain(domain); id != "" {
		if err := m.store.SaveAuth(id, state); err != nil {
			slog.Warn("auth state not persisted", slog.String("skill", id), slog.String("error", err.Error()))
		} else {
			res.SkillID = id
			slog.Info("auth state refreshed", slog.String("skill", id), slog.String("domain", domain))
		}
	}
	return res, nil
}

// skillForDomain finds the locally stored skill owning domain, if any.
func (m *Manager) skillForDomain(domain string) string {
	manifests, err := m.store.List()
	if err != nil {
		return ""
	}
	for _, manifest := range manifests {
		if manifest.Domain == domain {
			return manifest.SkillID
		}
	}
	return ""
}

// prefill types stored credentials into the first recognizable login
// form. Best-effort: any miss leaves the user to complete manually.
func prefill(ctx context.Context, b browser.Capability, cred *creds.LoginCredential) bool {
	snap, err := b.TakeSnapshot(ctx, browser.SnapshotOptions{Interactive: true})
	if err != nil || snap == nil {
		return false
	}
	userRef, passRef, submitRef := "", "", ""
	for _, el := range snap.Elements {
		switch {
		case el.Role == "textbox" && passRef == "" && passwordFieldPattern.MatchString(el.Name):
			passRef = el.Ref
		case el.Role == "textbox" && userRef == "" && usernameFieldPattern.MatchString(el.Name):
			userRef = el.Ref
		case el.Role == "button" && submitRef == "" && submitButtonPattern.MatchString(el.Name):
			submitRef = el.Ref
		}
	}
	if userRef == "" || passRef == "" {
		return false
	}
	if res, err := b.Act(ctx, browser.Action{Kind: "type", Ref: userRef, Text: cred.Username}); err != nil || !res.OK {
		return false
	}
	if res, err := b.Act(ctx, browser.Action{Kind: "type", Ref: passRef, Text: cred.Password}); err != nil || !res.OK {
		return false
	}
	if submitRef != "" {
		b.Act(ctx, browser.Action{Kind: "click", Ref: submitRef})
	}
	return true
}

// sessionEstablished reports whether a session-looking cookie appeared
// or changed since the baseline read.
func sessionEstablished(baseline, current types.Cookies) bool {
	for _, c := range current {
		if !sessionCookiePattern.MatchString(c.Name) {
			continue
		}
		if baseline.Get(c.Name) != c.Value {
			return true
		}
	}
	return false
}

// leftLoginPage reports whether navigation moved off a login-looking
// URL it started on.
func leftLoginPage(ctx context.Context, b browser.Capability, startURL string) bool {
	if !loginPathPattern.MatchString(startURL) {
		return false
	}
	snap, err := b.TakeSnapshot(ctx, browser.SnapshotOptions{Mode: "url"})
	if err != nil || snap == nil || snap.URL == "" {
		return false
	}
	return !loginPathPattern.MatchString(snap.URL)
}

func baseOf(rawURL string) string {
	if i := strings.Index(rawURL, "://"); i >= 0 {
		rest := rawURL[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			return rawURL[:i+3+j]
		}
	}
	return rawURL
}
