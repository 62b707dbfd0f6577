package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadersGet(t *testing.T) {
	h := Headers{
		{"Content-Type", "application/json"},
		{"X-Custom", "first"},
		{"x-custom", "second"},
	}

	tests := []struct {
		name   string
		lookup string
		want   string
	}{
		{"exact case", "Content-Type", "application/json"},
		{"lower case", "content-type", "application/json"},
		{"upper case", "CONTENT-TYPE", "application/json"},
		{"first of duplicates", "X-Custom", "first"},
		{"missing", "Authorization", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.Get(tt.lookup))
		})
	}
}

func TestHeadersValues(t *testing.T) {
	h := Headers{
		{"Set-Cookie", "a=1"},
		{"set-cookie", "b=2"},
		{"Other", "x"},
	}
	assert.Equal(t, []string{"a=1", "b=2"}, h.Values("Set-Cookie"))
	assert.Nil(t, h.Values("missing"))
}

func TestHeadersSet(t *testing.T) {
	t.Run("replaces in place preserving casing and order", func(t *testing.T) {
		h := Headers{
			{"Accept", "text/html"},
			{"Authorization", "Bearer old"},
			{"X-Trail", "z"},
		}
		h.Set("authorization", "Bearer new")
		assert.Equal(t, Headers{
			{"Accept", "text/html"},
			{"Authorization", "Bearer new"},
			{"X-Trail", "z"},
		}, h)
	})

	t.Run("appends when missing", func(t *testing.T) {
		h := Headers{{"Accept", "*/*"}}
		h.Set("X-New", "v")
		assert.Equal(t, "v", h.Get("x-new"))
		assert.Len(t, h, 2)
	})

	t.Run("collapses duplicates", func(t *testing.T) {
		h := Headers{{"X-Dup", "1"}, {"x-dup", "2"}}
		h.Set("X-DUP", "3")
		assert.Equal(t, Headers{{"X-Dup", "3"}}, h)
	})
}

func TestHeadersDel(t *testing.T) {
	h := Headers{{"Cookie", "a=1"}, {"Accept", "*/*"}, {"cookie", "b=2"}}
	h.Del("COOKIE")
	assert.Equal(t, Headers{{"Accept", "*/*"}}, h)
}

func TestHeadersCloneIsDeep(t *testing.T) {
	h := Headers{{"A", "1"}}
	c := h.Clone()
	c[0][1] = "2"
	assert.Equal(t, "1", h.Get("A"))
}

func TestCookiesHeaderValue(t *testing.T) {
	c := Cookies{{"sid", "abc"}, {"theme", "dark"}}
	assert.Equal(t, "sid=abc; theme=dark", c.HeaderValue())
	assert.Equal(t, "", Cookies{}.HeaderValue())
}

func TestCookiesJSONRoundTripPreservesOrder(t *testing.T) {
	in := Cookies{{"z_last", "1"}, {"a_first", "2"}, {"m_mid", "3"}}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, `{"z_last":"1","a_first":"2","m_mid":"3"}`, string(data))

	var out Cookies
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestCookiesUnmarshalNull(t *testing.T) {
	var c Cookies
	require.NoError(t, json.Unmarshal([]byte(`null`), &c))
	assert.Nil(t, c)
}

func TestQueryParams(t *testing.T) {
	q := QueryParams{{"page", "1"}, {"tag", "a"}, {"tag", "b"}}
	assert.Equal(t, "1", q.Get("page"))
	assert.Equal(t, "a", q.Get("tag"))
	assert.True(t, q.Has("tag"))
	assert.False(t, q.Has("Tag"))

	q.Set("page", "2")
	assert.Equal(t, "2", q.Get("page"))
	q.Set("new", "x")
	assert.Equal(t, "x", q.Get("new"))
}

func TestTimestampMarshalMillisecondUTC(t *testing.T) {
	ts := Timestamp(time.Date(2024, 3, 15, 10, 30, 45, 123_000_000, time.FixedZone("EST", -5*3600)))
	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-15T15:30:45.123Z"`, string(data))
}

func TestTimestampUnmarshal(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2024-03-15T15:30:45.123Z"`), &ts))
	assert.Equal(t, int64(1710516645123), ts.Time().UnixMilli())

	require.NoError(t, json.Unmarshal([]byte(`"2024-03-15T15:30:45Z"`), &ts))
	assert.Equal(t, int64(1710516645000), ts.Time().UnixMilli())
}

func TestTransitiveSources(t *testing.T) {
	g := &CorrelationGraphV1{Version: 1, Links: []CorrelationLinkV1{
		{SourceRequestIndex: 0, TargetRequestIndex: 1},
		{SourceRequestIndex: 1, TargetRequestIndex: 2},
		{SourceRequestIndex: 0, TargetRequestIndex: 2},
		{SourceRequestIndex: 3, TargetRequestIndex: 4},
	}}

	needed := g.TransitiveSources(2)
	assert.Equal(t, map[int]bool{0: true, 1: true}, needed)
	assert.Empty(t, g.TransitiveSources(0))
}

func TestManifestAvgReliability(t *testing.T) {
	m := &SkillManifest{}
	assert.Equal(t, 0.5, m.AvgReliability())

	m.Endpoints = []SkillEndpoint{{ReliabilityScore: 1.0}, {ReliabilityScore: 0.5}}
	assert.Equal(t, 0.75, m.AvgReliability())
}

func TestEndpointTemplated(t *testing.T) {
	assert.True(t, (&SkillEndpoint{URLTemplate: "https://a.com/users/{userId}"}).Templated())
	assert.False(t, (&SkillEndpoint{URLTemplate: "https://a.com/users"}).Templated())
}
