package tokens

import (
	"net/url"
	"strings"
	"time"

	"github.com/unbrowse/unbrowse/pkg/contenttype"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// DefaultBufferMinutes is how early a token refreshes before expiry.
const DefaultBufferMinutes = 5

// configHeaderNames are kept verbatim in a refresh config.
var configHeaderNames = map[string]bool{"authorization": true, "content-type": true}

// configHeaderSubstrings extend the kept set to vendor credentials.
var configHeaderSubstrings = []string{"token", "api-key", "x-auth", "csrf"}

func keepConfigHeader(name string) bool {
	lower := strings.ToLower(name)
	if configHeaderNames[lower] {
		return true
	}
	for _, sub := range configHeaderSubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// ExtractRefreshConfig builds a re-executable refresh config from a
// successfully captured refresh exchange, or nil when the exchange is
// not one.
func ExtractRefreshConfig(ex *types.CapturedExchange, now time.Time) *types.RefreshConfig {
	if ex == nil || ex.Response == nil {
		return nil
	}
	if ex.Response.Status < 200 || ex.Response.Status > 299 {
		return nil
	}
	det := Detect(ex.Request.URL, ex.Request.Method, ex.Request.BodyRaw, ex.Response.BodyRaw)
	if !det.IsRefresh {
		return nil
	}

	cfg := &types.RefreshConfig{
		URL:      ex.Request.URL,
		Method:   strings.ToUpper(ex.Request.Method),
		Headers:  map[string]string{},
		Provider: ProviderOf(ex.Request.URL),
	}
	for _, pair := range ex.Request.Headers {
		if len(pair) < 2 {
			continue
		}
		if keepConfigHeader(pair[0]) {
			cfg.Headers[strings.ToLower(pair[0])] = pair[1]
		}
	}

	switch contenttype.Classify(ex.Request.ContentType) {
	case contenttype.Form:
		cfg.Body = formToObject(ex.Request.BodyRaw)
		cfg.BodyRaw = ex.Request.BodyRaw
	case contenttype.JSON:
		if obj, ok := ex.Request.Body.(map[string]any); ok {
			cfg.Body = obj
		}
		cfg.BodyRaw = ex.Request.BodyRaw
	default:
		cfg.BodyRaw = ex.Request.BodyRaw
	}

	if obj, ok := cfg.Body.(map[string]any); ok {
		cfg.ClientID = stringField(obj, "client_id", "clientId")
		cfg.ClientSecret = stringField(obj, "client_secret", "clientSecret")
		cfg.Scope = stringField(obj, "scope")
		cfg.RefreshToken = stringField(obj, "refresh_token", "refreshToken")
	}

	if det.TokenInfo != nil {
		if det.TokenInfo.RefreshToken != "" {
			cfg.RefreshToken = det.TokenInfo.RefreshToken
		}
		if det.TokenInfo.ExpiresIn > 0 {
			cfg.ExpiresInSeconds = det.TokenInfo.ExpiresIn
			ts := types.Timestamp(now.Add(time.Duration(det.TokenInfo.ExpiresIn) * time.Second))
			cfg.ExpiresAt = &ts
		} else if exp := jwtExpiry(det.TokenInfo.AccessToken); exp != nil {
			ts := types.Timestamp(*exp)
			cfg.ExpiresAt = &ts
		}
	}
	return cfg
}

// formToObject decodes an application/x-www-form-urlencoded body into
// a JSON-style object, first value per key.
func formToObject(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	out := make(map[string]any)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		key = unescapeForm(key)
		if _, ok := out[key]; !ok {
			out[key] = unescapeForm(value)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func unescapeForm(s string) string {
	if decoded, err := url.QueryUnescape(s); err == nil {
		return decoded
	}
	return s
}

// ProviderOf infers the issuer family from the endpoint host.
func ProviderOf(rawURL string) types.TokenProvider {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.Contains(lower, "securetoken.googleapis.com"),
		strings.Contains(lower, "identitytoolkit.googleapis.com"):
		return types.ProviderFirebase
	case strings.Contains(lower, "accounts.google.com"):
		return types.ProviderGoogle
	default:
		return types.ProviderGeneric
	}
}

// NeedsRefresh reports whether a config's token expires within the
// buffer window. Configs without expiry never auto-refresh.
func NeedsRefresh(cfg *types.RefreshConfig, bufferMinutes int, now time.Time) bool {
	if cfg == nil || cfg.ExpiresAt == nil {
		return false
	}
	bufferMs := int64(bufferMinutes) * 60 * 1000
	return now.UnixMilli()+bufferMs >= cfg.ExpiresAt.Time().UnixMilli()
}
