//go:build property
// +build property

package routes

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/unbrowse/unbrowse/pkg/types"
)

// segmentPool mixes static words, identifier-shaped values and plain
// words so generated paths cover every normalization branch.
var segmentPool = []string{
	"api", "v1", "search", "login", "sessions",
	"550e8400-e29b-41d4-a716-446655440000",
	"1700000000000", "deadbeefcafe", "ord_1234", "12345",
	"widgets", "alpha", "report.json",
}

func poolPath(picks []int) string {
	segments := make([]string, len(picks))
	for i, p := range picks {
		segments[i] = segmentPool[p%len(segmentPool)]
	}
	return "/" + strings.Join(segments, "/")
}

func TestNormalizePathProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("static segments are never parameterized", prop.ForAll(
		func(picks []int) bool {
			path := poolPath(picks)
			segments := splitPath(path)
			normalized, _ := NormalizePath(path)
			got := splitPath(normalized)
			if len(got) != len(segments) {
				return false
			}
			for i, s := range segments {
				if IsStaticSegment(s) && got[i] != s {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.Property("normalization is idempotent", prop.ForAll(
		func(picks []int) bool {
			first, _ := NormalizePath(poolPath(picks))
			second, params := NormalizePath(first)
			return second == first && len(params) == 0
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}

func TestGeneralizationProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	properties := gopter.NewProperties(params)

	// Words that stay literal in the single-request pass: pure letters,
	// not static, not hex-shaped.
	wordGen := gen.AlphaString().SuchThat(func(s string) bool {
		return s != "" && !IsStaticSegment(s) && matchKind(s) == ""
	})

	properties.Property("two distinct witnesses generalize, one never does", prop.ForAll(
		func(a, b string) bool {
			groups := Analyze([]types.CapturedExchange{
				exch(0, "GET", "https://api.example.com/api/things/"+a),
				exch(1, "GET", "https://api.example.com/api/things/"+b),
			})
			if len(groups) != 1 {
				return false
			}
			if a == b {
				return groups[0].NormalizedPath == "/api/things/"+a
			}
			segments := splitPath(groups[0].NormalizedPath)
			return len(segments) == 3 && isParamSegment(segments[2])
		},
		wordGen, wordGen,
	))

	properties.Property("query param required exactly at 80 percent presence", prop.ForAll(
		func(n, k0 int) bool {
			k := k0 % (n + 1)
			exchanges := make([]types.CapturedExchange, 0, n)
			for i := 0; i < n; i++ {
				u := "https://api.example.com/api/search"
				if i < k {
					u += "?flag=on"
				}
				exchanges = append(exchanges, exch(i, "GET", u))
			}
			groups := Analyze(exchanges)
			if len(groups) != 1 {
				return false
			}
			var spec *types.ParamSpec
			for i := range groups[0].QueryParams {
				if groups[0].QueryParams[i].Name == "flag" {
					spec = &groups[0].QueryParams[i]
				}
			}
			if k == 0 {
				return spec == nil
			}
			return spec != nil && spec.Required == (float64(k) >= 0.8*float64(n))
		},
		gen.IntRange(1, 40),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
