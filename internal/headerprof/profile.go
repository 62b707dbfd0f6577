package headerprof

import (
	"net/url"
	"strings"
	"time"

	"github.com/unbrowse/unbrowse/pkg/types"
)

// commonThreshold is the fraction of a domain's requests a header value
// must appear on to enter commonHeaders.
const commonThreshold = 0.8

// BuildProfiles computes a header profile for each target domain from a
// capture session. It is a pure function of its input: capturedAt is
// the latest exchange timestamp, not the wall clock.
func BuildProfiles(exchanges []types.CapturedExchange, domains []string) *types.HeaderProfileFile {
	file := &types.HeaderProfileFile{Profiles: make(map[string]*types.HeaderProfile)}
	for _, domain := range domains {
		file.Profiles[domain] = buildProfile(exchanges, domain)
	}
	return file
}

type headerCount struct {
	casing string
	values map[string]int
	total  int
}

func buildProfile(exchanges []types.CapturedExchange, domain string) *types.HeaderProfile {
	profile := &types.HeaderProfile{
		Domain:            domain,
		CommonHeaders:     make(map[string]types.ProfileHeader),
		EndpointOverrides: make(map[string]map[string]types.ProfileHeader),
	}

	var requests []types.CapturedExchange
	var lastTs int64
	for _, ex := range exchanges {
		if requestHost(ex.Request.URL) != domain {
			continue
		}
		requests = append(requests, ex)
		if ex.TsMs > lastTs {
			lastTs = ex.TsMs
		}
	}
	profile.RequestCount = len(requests)
	if lastTs > 0 {
		profile.CapturedAt = types.Timestamp(msToTime(lastTs))
	}
	if len(requests) == 0 {
		return profile
	}

	counts := countHeaders(requests)

	// Common headers: dominant value at >= 80% of the domain's requests,
	// excluded categories never enter the profile.
	commonByLower := make(map[string]types.ProfileHeader)
	for lower, hc := range counts {
		category := Classify(lower)
		if profileExcluded(category) {
			continue
		}
		value, count := dominantValue(hc.values)
		freq := float64(count) / float64(len(requests))
		if freq < commonThreshold {
			continue
		}
		ph := types.ProfileHeader{Value: value, Frequency: freq, Category: category}
		profile.CommonHeaders[hc.casing] = ph
		commonByLower[lower] = ph
	}

	// Endpoint overrides: a header whose dominant value at one endpoint
	// differs from the domain-wide common value, or an endpoint-specific
	// header present on every request to that endpoint.
	for key, group := range groupByEndpoint(requests) {
		groupCounts := countHeaders(group)
		for lower, hc := range groupCounts {
			category := Classify(lower)
			if profileExcluded(category) {
				continue
			}
			value, count := dominantValue(hc.values)
			common, hasCommon := commonByLower[lower]
			switch {
			case hasCommon && value != common.Value:
			case !hasCommon && count == len(group):
			default:
				continue
			}
			if profile.EndpointOverrides[key] == nil {
				profile.EndpointOverrides[key] = make(map[string]types.ProfileHeader)
			}
			profile.EndpointOverrides[key][hc.casing] = types.ProfileHeader{
				Value:     value,
				Frequency: float64(count) / float64(len(group)),
				Category:  category,
			}
		}
	}

	return profile
}

// countHeaders tallies header values across requests, one count per
// request, preserving the first-seen casing per lowercased name.
func countHeaders(requests []types.CapturedExchange) map[string]*headerCount {
	counts := make(map[string]*headerCount)
	for _, ex := range requests {
		seen := make(map[string]bool)
		for _, pair := range ex.Request.Headers {
			if len(pair) != 2 {
				continue
			}
			name, value := pair[0], pair[1]
			lower := lowerName(name)
			if seen[lower] {
				continue
			}
			seen[lower] = true
			hc := counts[lower]
			if hc == nil {
				hc = &headerCount{casing: name, values: make(map[string]int)}
				counts[lower] = hc
			}
			hc.values[value]++
			hc.total++
		}
	}
	return counts
}

// dominantValue picks the most frequent value, breaking ties by
// lexicographic order so profiling stays deterministic.
func dominantValue(values map[string]int) (string, int) {
	var top string
	var topCount int
	for value, count := range values {
		if count > topCount || (count == topCount && value < top) {
			top = value
			topCount = count
		}
	}
	return top, topCount
}

func groupByEndpoint(requests []types.CapturedExchange) map[string][]types.CapturedExchange {
	groups := make(map[string][]types.CapturedExchange)
	for _, ex := range requests {
		key := endpointKey(ex.Request.Method, ex.Request.URL)
		groups[key] = append(groups[key], ex)
	}
	return groups
}

func endpointKey(method, rawURL string) string {
	path := "/"
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	return strings.ToUpper(method) + " " + path
}

func requestHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func lowerName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
