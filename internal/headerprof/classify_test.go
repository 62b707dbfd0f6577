package headerprof

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		header   string
		expected string
	}{
		// protocol
		{":authority", CategoryProtocol},
		{":method", CategoryProtocol},
		{"Host", CategoryProtocol},
		{"Connection", CategoryProtocol},
		{"Content-Length", CategoryProtocol},
		{"Transfer-Encoding", CategoryProtocol},

		// browser
		{"Accept-Encoding", CategoryBrowser},
		{"Sec-Fetch-Mode", CategoryBrowser},
		{"Sec-Fetch-Site", CategoryBrowser},
		{"sec-ch-ua", CategoryBrowser},
		{"Sec-CH-UA-Platform", CategoryBrowser},

		// cookie
		{"Cookie", CategoryCookie},
		{"Set-Cookie", CategoryCookie},

		// auth, exact names
		{"Authorization", CategoryAuth},
		{"X-API-Key", CategoryAuth},
		{"apikey", CategoryAuth},
		{"X-CSRF-Token", CategoryAuth},
		{"X-XSRF-TOKEN", CategoryAuth},
		{"Bearer", CategoryAuth},

		// auth, substring matches
		{"X-Goog-AuthUser", CategoryAuth},
		{"X-Amz-Security-Token", CategoryAuth},
		{"X-Session-Auth", CategoryAuth},

		// context
		{"Accept", CategoryContext},
		{"User-Agent", CategoryContext},
		{"Referer", CategoryContext},
		{"Origin", CategoryContext},
		{"Accept-Language", CategoryContext},
		{"Cache-Control", CategoryContext},

		// app
		{"X-Client-Version", CategoryApp},
		{"X-Request-Id", CategoryApp},
		{"X-Datadog-Trace-Id", CategoryApp},
		{"Content-Type", CategoryApp},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.header))
		})
	}
}

func TestProfileExcluded(t *testing.T) {
	assert.True(t, profileExcluded(CategoryProtocol))
	assert.True(t, profileExcluded(CategoryBrowser))
	assert.True(t, profileExcluded(CategoryCookie))
	assert.True(t, profileExcluded(CategoryAuth))
	assert.False(t, profileExcluded(CategoryContext))
	assert.False(t, profileExcluded(CategoryApp))
}
