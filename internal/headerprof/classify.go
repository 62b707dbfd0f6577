// Package headerprof classifies request headers and builds per-domain
// header profiles so replayed requests blend in with the capturing
// browser. Profiles never store auth values.
package headerprof

import "strings"

// Header categories.
const (
	CategoryProtocol = "protocol"
	CategoryBrowser  = "browser"
	CategoryCookie   = "cookie"
	CategoryAuth     = "auth"
	CategoryContext  = "context"
	CategoryApp      = "app"
)

// protocolNames are hop-by-hop and transport headers, never replayable.
var protocolNames = map[string]bool{
	"host": true, "connection": true, "content-length": true, "transfer-encoding": true,
}

// browserPrefixes mark fingerprinting headers the browser regenerates.
var browserPrefixes = []string{"accept-encoding", "sec-fetch-", "sec-ch-ua"}

// authExact match on the full lowercased name.
var authExact = map[string]bool{
	"authorization": true, "x-api-key": true, "api-key": true, "apikey": true,
	"x-auth-token": true, "access-token": true, "x-access-token": true,
	"token": true, "x-token": true, "x-csrf-token": true, "x-xsrf-token": true,
	"bearer": true,
}

// authSubstrings catch vendor-specific credential headers.
var authSubstrings = []string{"token", "api-key", "apikey", "auth", "csrf", "xsrf"}

var contextNames = map[string]bool{
	"accept": true, "user-agent": true, "referer": true, "origin": true,
	"accept-language": true, "dnt": true, "cache-control": true, "pragma": true,
	"priority": true, "upgrade-insecure-requests": true,
}

// Classify maps a header name to its category. Matching is on the
// lowercased name; HTTP/2 pseudo-headers count as protocol.
func Classify(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))

	// 1. Protocol: pseudo-headers and transport plumbing
	if strings.HasPrefix(lower, ":") || protocolNames[lower] {
		return CategoryProtocol
	}

	// 2. Browser fingerprint headers
	for _, prefix := range browserPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return CategoryBrowser
		}
	}

	// 3. Cookies travel separately from the profile
	if lower == "cookie" || lower == "set-cookie" {
		return CategoryCookie
	}

	// 4. Auth: exact names first, then credential-ish substrings
	if authExact[lower] {
		return CategoryAuth
	}
	for _, sub := range authSubstrings {
		if strings.Contains(lower, sub) {
			return CategoryAuth
		}
	}

	// 5. Context: browsing context the site may expect
	if contextNames[lower] {
		return CategoryContext
	}

	// 6. Everything else is app-specific
	return CategoryApp
}

// profileExcluded reports whether a category is kept out of profiles.
func profileExcluded(category string) bool {
	switch category {
	case CategoryProtocol, CategoryBrowser, CategoryCookie, CategoryAuth:
		return true
	}
	return false
}
