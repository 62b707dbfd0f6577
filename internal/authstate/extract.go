// Package authstate accumulates the authentication material of a
// capture session: auth headers observed on the wire, tokens promoted
// from browser storage, and CSRF provenance.
package authstate

import (
	"regexp"
	"sort"
	"strings"

	"github.com/unbrowse/unbrowse/internal/headerprof"
	"github.com/unbrowse/unbrowse/pkg/jsonpath"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// jwtPattern matches three dot-separated base64url segments of at
// least 10 characters each.
var jwtPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}$`)

// tokenKeyWords qualify a storage key as a bearer-token candidate.
var tokenKeyWords = []string{"access", "auth", "token"}

// Storage is the browser-side key-value state consulted for token
// promotion: localStorage, sessionStorage and <meta> tag tokens.
type Storage struct {
	Local   map[string]string
	Session map[string]string
	Meta    map[string]string
}

// ExtractAuthHeaders scans every request and keeps headers whose
// classification is auth, lowercased name, last observed value.
func ExtractAuthHeaders(exchanges []types.CapturedExchange) map[string]string {
	out := make(map[string]string)
	for i := range exchanges {
		for _, pair := range exchanges[i].Request.Headers {
			if len(pair) < 2 || pair[1] == "" {
				continue
			}
			name := strings.ToLower(pair[0])
			if headerprof.Classify(name) == headerprof.CategoryAuth {
				out[name] = pair[1]
			}
		}
	}
	return out
}

// IsJWTLike reports whether a value looks like a JWT: the standard
// header prefix or three long dot-separated segments.
func IsJWTLike(value string) bool {
	return strings.HasPrefix(value, "eyJ") || jwtPattern.MatchString(value)
}

// PromoteStorageTokens fills gaps in the extracted headers from
// browser storage: a JWT-like value under an access/auth/token key
// becomes an authorization suggestion when none was captured, and any
// csrf/xsrf key becomes x-csrf-token. The input map is not modified.
func PromoteStorageTokens(headers map[string]string, st Storage) map[string]string {
	out := make(map[string]string, len(headers)+2)
	for k, v := range headers {
		out[k] = v
	}

	if out["authorization"] == "" {
		if value, ok := findBearerCandidate(st.Local); ok {
			out["authorization"] = "Bearer " + value
		} else if value, ok := findBearerCandidate(st.Session); ok {
			out["authorization"] = "Bearer " + value
		}
	}

	if out["x-csrf-token"] == "" {
		for _, kv := range []map[string]string{st.Local, st.Session, st.Meta} {
			if value, ok := findCSRFCandidate(kv); ok {
				out["x-csrf-token"] = value
				break
			}
		}
	}
	return out
}

// findBearerCandidate scans keys in sorted order for determinism.
func findBearerCandidate(kv map[string]string) (string, bool) {
	for _, key := range sortedKeys(kv) {
		lower := strings.ToLower(key)
		value := kv[key]
		if value == "" || !IsJWTLike(value) {
			continue
		}
		for _, word := range tokenKeyWords {
			if strings.Contains(lower, word) {
				return value, true
			}
		}
	}
	return "", false
}

func findCSRFCandidate(kv map[string]string) (string, bool) {
	for _, key := range sortedKeys(kv) {
		lower := strings.ToLower(key)
		value := kv[key]
		if value == "" {
			continue
		}
		if strings.Contains(lower, "csrf") || strings.Contains(lower, "xsrf") {
			return value, true
		}
	}
	return "", false
}

func sortedKeys(kv map[string]string) []string {
	keys := make([]string, 0, len(kv))
	for key := range kv {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// InferCSRFProvenance locates where a CSRF header value originates so
// replay can re-derive it from fresh state. Sources are checked in
// fixed order: cookie, localStorage, sessionStorage, meta tag, prior
// response body, else unknown.
func InferCSRFProvenance(headerName, value string, cookies types.Cookies, st Storage, exchanges []types.CapturedExchange) *types.CSRFProvenance {
	if value == "" {
		return nil
	}
	prov := &types.CSRFProvenance{HeaderName: strings.ToLower(headerName)}

	for _, c := range cookies {
		if c.Value == value {
			prov.Source = types.CSRFFromCookie
			prov.Key = c.Name
			return prov
		}
	}
	if key, ok := keyForValue(st.Local, value); ok {
		prov.Source = types.CSRFFromLocalStorage
		prov.Key = key
		return prov
	}
	if key, ok := keyForValue(st.Session, value); ok {
		prov.Source = types.CSRFFromSessionStorage
		prov.Key = key
		return prov
	}
	if key, ok := keyForValue(st.Meta, value); ok {
		prov.Source = types.CSRFFromMeta
		prov.Key = key
		return prov
	}
	if path, ok := responseBodyPath(exchanges, value); ok {
		prov.Source = types.CSRFFromResponseBody
		prov.Key = path
		return prov
	}
	prov.Source = types.CSRFUnknown
	return prov
}

func keyForValue(kv map[string]string, value string) (string, bool) {
	for _, key := range sortedKeys(kv) {
		if kv[key] == value {
			return key, true
		}
	}
	return "", false
}

// responseBodyPath finds the first response-body leaf equal to value,
// scanning exchanges in capture order.
func responseBodyPath(exchanges []types.CapturedExchange, value string) (string, bool) {
	for i := range exchanges {
		resp := exchanges[i].Response
		if resp == nil || resp.Body == nil {
			continue
		}
		for _, leaf := range jsonpath.Leaves(resp.Body) {
			if s, ok := leaf.Value.(string); ok && s == value {
				return leaf.Path, true
			}
		}
	}
	return "", false
}

// BuildAuthState assembles the persisted auth.json payload from a
// finished capture session.
func BuildAuthState(baseURL string, exchanges []types.CapturedExchange, cookies types.Cookies, st Storage, capturedAt types.Timestamp) *types.AuthState {
	headers := PromoteStorageTokens(ExtractAuthHeaders(exchanges), st)

	state := &types.AuthState{
		BaseURL:        baseURL,
		Headers:        headers,
		CookieJar:      cookies,
		LocalStorage:   st.Local,
		SessionStorage: st.Session,
		MetaTokens:     st.Meta,
		LastBrowseAt:   capturedAt,
	}

	for _, name := range sortedKeys(headers) {
		if strings.Contains(name, "csrf") || strings.Contains(name, "xsrf") {
			state.CSRF = InferCSRFProvenance(name, headers[name], cookies, st, exchanges)
			break
		}
	}
	return state
}

// InferAuthMethod summarizes how the session authenticates, for the
// skill manifest: bearer, api-key, cookie, csrf or none.
func InferAuthMethod(headers map[string]string, cookies types.Cookies) string {
	auth := strings.ToLower(headers["authorization"])
	switch {
	case strings.HasPrefix(auth, "bearer "):
		return "bearer"
	case auth != "":
		return "header"
	}
	for name := range headers {
		if strings.Contains(name, "api-key") || strings.Contains(name, "apikey") {
			return "api-key"
		}
	}
	for name := range headers {
		if strings.Contains(name, "csrf") || strings.Contains(name, "xsrf") {
			return "csrf"
		}
	}
	if len(cookies) > 0 {
		return "cookie"
	}
	return "none"
}
