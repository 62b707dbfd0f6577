package headerprof

import (
	"strings"

	"github.com/unbrowse/unbrowse/pkg/types"
)

// Mode selects which profile categories reach the outgoing request.
type Mode string

const (
	// ModeNode replays outside a browser; only app headers apply.
	ModeNode Mode = "node"
	// ModeBrowser replays through the browser; context headers apply too.
	ModeBrowser Mode = "browser"
)

func modeAllows(mode Mode, category string) bool {
	if mode == ModeBrowser {
		return category == CategoryApp || category == CategoryContext
	}
	return category == CategoryApp
}

// ResolveHeaders assembles the header set for one outgoing request:
// domain commons, then the endpoint override, then auth headers (which
// always win), then the Cookie header in insertion order.
func ResolveHeaders(file *types.HeaderProfileFile, domain, method, path string, authHeaders map[string]string, cookies types.Cookies, mode Mode) map[string]string {
	resolved := make(map[string]string)
	casing := make(map[string]string)
	set := func(name, value string) {
		lower := lowerName(name)
		if prev, ok := casing[lower]; ok && prev != name {
			delete(resolved, prev)
		}
		casing[lower] = name
		resolved[name] = value
	}

	if file != nil {
		if profile := file.Profiles[domain]; profile != nil {
			for name, ph := range profile.CommonHeaders {
				if modeAllows(mode, ph.Category) {
					set(name, ph.Value)
				}
			}
			overrideKey := strings.ToUpper(method) + " " + path
			for name, ph := range profile.EndpointOverrides[overrideKey] {
				if modeAllows(mode, ph.Category) {
					set(name, ph.Value)
				}
			}
		}
	}

	for name, value := range authHeaders {
		set(name, value)
	}
	if len(cookies) > 0 {
		set("Cookie", cookies.HeaderValue())
	}
	return resolved
}

// Sanitize returns a copy of the profile with every auth-category value
// blanked. Valid profiles never contain auth headers, but files on disk
// may predate that rule or have been edited; publishing always passes
// through here.
func Sanitize(profile *types.HeaderProfile) *types.HeaderProfile {
	if profile == nil {
		return nil
	}
	out := &types.HeaderProfile{
		Domain:            profile.Domain,
		CommonHeaders:     make(map[string]types.ProfileHeader, len(profile.CommonHeaders)),
		EndpointOverrides: make(map[string]map[string]types.ProfileHeader, len(profile.EndpointOverrides)),
		RequestCount:      profile.RequestCount,
		CapturedAt:        profile.CapturedAt,
	}
	for name, ph := range profile.CommonHeaders {
		out.CommonHeaders[name] = scrubAuth(ph)
	}
	for key, overrides := range profile.EndpointOverrides {
		copied := make(map[string]types.ProfileHeader, len(overrides))
		for name, ph := range overrides {
			copied[name] = scrubAuth(ph)
		}
		out.EndpointOverrides[key] = copied
	}
	return out
}

func scrubAuth(ph types.ProfileHeader) types.ProfileHeader {
	if ph.Category == CategoryAuth {
		ph.Value = ""
	}
	return ph
}
