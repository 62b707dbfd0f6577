// Package tokens detects token refresh endpoints in captured traffic,
// extracts re-executable refresh configs and keeps access tokens fresh
// on a schedule.
package tokens

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/unbrowse/unbrowse/pkg/types"
)

// refreshURLPatterns match token endpoints across the common OAuth and
// vendor layouts.
var refreshURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/oauth/token`),
	regexp.MustCompile(`/oauth2/v\d+/token`),
	regexp.MustCompile(`securetoken\.googleapis\.com`),
	regexp.MustCompile(`identitytoolkit\.googleapis\.com`),
	regexp.MustCompile(`/auth/refresh`),
	regexp.MustCompile(`/auth/`),
	regexp.MustCompile(`/token/refresh`),
	regexp.MustCompile(`/refresh[-_]?token`),
	regexp.MustCompile(`/v\d+/auth/token`),
	regexp.MustCompile(`/api/.+/refresh`),
}

// refreshBodyPatterns match refresh grants in form-encoded bodies. The
// [=:] requirement misses JSON bodies where a quote intervenes; those
// are caught by the URL patterns instead.
var refreshBodyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)grant_type=refresh_token`),
	regexp.MustCompile(`(?i)refresh_?token[=:]`),
}

var initialGrantPattern = regexp.MustCompile(`(?i)grant_type=authorization_code`)

// tokenFieldPatterns are the fallback extractors for token responses
// that fail to parse as JSON.
var (
	accessTokenPattern  = regexp.MustCompile(`"(?:access_token|accessToken|token)"\s*:\s*"(.+?)"`)
	refreshTokenPattern = regexp.MustCompile(`"(?:refresh_token|refreshToken)"\s*:\s*"(.+?)"`)
	idTokenPattern      = regexp.MustCompile(`"(?:id_token|idToken)"\s*:\s*"(.+?)"`)
	expiresInPattern    = regexp.MustCompile(`"(?:expires_in|expiresIn)"\s*:\s*"?(\d+)"?`)
)

// Detect classifies a captured request as token refresh, initial OAuth
// grant, or neither, and extracts token material from the response.
func Detect(rawURL, method, body, responseBody string) types.RefreshDetection {
	det := types.RefreshDetection{}
	method = strings.ToUpper(method)
	if method != "POST" && method != "PUT" {
		det.TokenInfo = ExtractTokenInfo(responseBody)
		return det
	}

	urlHit := matchesRefreshURL(rawURL)
	bodyHit := false
	for _, p := range refreshBodyPatterns {
		if p.MatchString(body) {
			bodyHit = true
			break
		}
	}
	initialGrant := initialGrantPattern.MatchString(body)

	// An authorization_code grant is the initial token issue, not a
	// refresh, even on a /oauth/token URL.
	det.IsRefresh = (urlHit || bodyHit) && !initialGrant
	det.IsInitialGrant = urlHit && initialGrant
	det.TokenInfo = ExtractTokenInfo(responseBody)
	return det
}

func matchesRefreshURL(rawURL string) bool {
	for _, p := range refreshURLPatterns {
		if p.MatchString(rawURL) {
			return true
		}
	}
	// Generic /token endpoint, but only when parameterized by query.
	if u, err := url.Parse(rawURL); err == nil {
		if strings.HasSuffix(u.Path, "/token") && u.RawQuery != "" {
			return true
		}
	}
	return false
}

// ExtractTokenInfo pulls tokens out of a response body: JSON when it
// parses, regex fallback otherwise. Returns nil when nothing
// token-like is present.
func ExtractTokenInfo(responseBody string) *types.TokenInfo {
	if strings.TrimSpace(responseBody) == "" {
		return nil
	}

	info := &types.TokenInfo{}
	var obj map[string]any
	if err := json.Unmarshal([]byte(responseBody), &obj); err == nil {
		info.AccessToken = stringField(obj, "access_token", "accessToken", "token")
		info.RefreshToken = stringField(obj, "refresh_token", "refreshToken")
		info.IDToken = stringField(obj, "id_token", "idToken")
		info.ExpiresIn = numberField(obj, "expires_in", "expiresIn")
		info.TokenType = stringField(obj, "token_type", "tokenType")
	} else {
		info.AccessToken = firstGroup(accessTokenPattern, responseBody)
		info.RefreshToken = firstGroup(refreshTokenPattern, responseBody)
		info.IDToken = firstGroup(idTokenPattern, responseBody)
		if m := expiresInPattern.FindStringSubmatch(responseBody); m != nil {
			info.ExpiresIn, _ = strconv.ParseInt(m[1], 10, 64)
		}
	}

	if info.AccessToken == "" && info.RefreshToken == "" && info.IDToken == "" {
		return nil
	}
	if info.TokenType == "" {
		info.TokenType = "Bearer"
	}
	return info
}

func stringField(obj map[string]any, names ...string) string {
	for _, name := range names {
		if s, ok := obj[name].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// numberField accepts JSON numbers and numeric strings; Firebase
// returns expires_in as a string.
func numberField(obj map[string]any, names ...string) int64 {
	for _, name := range names {
		switch v := obj[name].(type) {
		case float64:
			return int64(v)
		case string:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}

func firstGroup(p *regexp.Regexp, s string) string {
	if m := p.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}
