//go:build property
// +build property

package headerprof

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/unbrowse/unbrowse/pkg/types"
)

var headerNamePool = []string{
	"Authorization", "X-API-Key", "Cookie", "Sec-Fetch-Mode", "Host",
	"Accept", "User-Agent", "X-Client-Version", "X-Request-Source", "Content-Type",
}

func randomExchanges(nameIdx []int, valueIdx []int) []types.CapturedExchange {
	n := len(nameIdx)
	if len(valueIdx) < n {
		n = len(valueIdx)
	}
	exchanges := make([]types.CapturedExchange, 0, n)
	for i := 0; i < n; i++ {
		name := headerNamePool[nameIdx[i]%len(headerNamePool)]
		value := fmt.Sprintf("value-%d", valueIdx[i]%3)
		exchanges = append(exchanges, types.CapturedExchange{
			Index: i,
			TsMs:  int64(1700000000000 + i),
			Request: types.RequestData{
				Method: "GET",
				URL:    "https://api.example.com/v1/things",
				Headers: types.Headers{
					{name, value},
					{"Accept", "application/json"},
				},
			},
		})
	}
	return exchanges
}

// Excluded categories never reach commonHeaders, whatever the traffic
// looks like.
func TestProfileNeverContainsExcludedCategories(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("common headers exclude auth, protocol, browser and cookie", prop.ForAll(
		func(nameIdx []int, valueIdx []int) bool {
			exchanges := randomExchanges(nameIdx, valueIdx)
			file := BuildProfiles(exchanges, []string{"api.example.com"})
			profile := file.Profiles["api.example.com"]
			if profile == nil {
				return false
			}
			for name := range profile.CommonHeaders {
				if profileExcluded(Classify(name)) {
					return false
				}
			}
			for _, overrides := range profile.EndpointOverrides {
				for name := range overrides {
					if profileExcluded(Classify(name)) {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}

// Sanitize is idempotent and only blanks auth-category values.
func TestSanitizeIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("sanitize twice equals sanitize once", prop.ForAll(
		func(nameIdx []int, values []string) bool {
			profile := &types.HeaderProfile{
				Domain:        "api.example.com",
				CommonHeaders: make(map[string]types.ProfileHeader),
				EndpointOverrides: map[string]map[string]types.ProfileHeader{
					"GET /v1/things": make(map[string]types.ProfileHeader),
				},
			}
			for i := 0; i < len(nameIdx) && i < len(values); i++ {
				name := headerNamePool[nameIdx[i]%len(headerNamePool)]
				ph := types.ProfileHeader{Value: values[i], Frequency: 1, Category: Classify(name)}
				if i%2 == 0 {
					profile.CommonHeaders[name] = ph
				} else {
					profile.EndpointOverrides["GET /v1/things"][name] = ph
				}
			}

			once := Sanitize(profile)
			twice := Sanitize(once)
			if !reflect.DeepEqual(once, twice) {
				return false
			}

			// non-auth values unchanged
			for name, ph := range profile.CommonHeaders {
				if ph.Category != CategoryAuth && once.CommonHeaders[name].Value != ph.Value {
					return false
				}
				if ph.Category == CategoryAuth && once.CommonHeaders[name].Value != "" {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
