package contenttype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        Category
	}{
		// JSON in all the shapes APIs serve it
		{"plain json", "application/json", JSON},
		{"jsonapi vendor type", "application/vnd.api+json", JSON},
		{"hal json", "application/hal+json", JSON},
		{"json with charset", "application/json; charset=utf-8", JSON},
		{"uppercase header", "Application/JSON", JSON},

		// Pages
		{"page html", "text/html; charset=utf-8", HTML},
		{"xhtml", "application/xhtml+xml", HTML},

		// XML
		{"xml api", "application/xml", XML},
		{"legacy text xml", "text/xml", XML},
		{"vendor xml", "application/vnd.gadget+xml", XML},

		// YAML
		{"openapi yaml", "application/yaml", YAML},
		{"x-yaml", "application/x-yaml", YAML},
		{"text yaml", "text/yaml", YAML},

		// Tabular exports
		{"csv export", "text/csv", CSV},
		{"tsv export", "text/tab-separated-values", CSV},

		// Form submissions
		{"login form post", "application/x-www-form-urlencoded", Form},
		{"multipart upload", "multipart/form-data; boundary=----WebKitFormBoundary", Multipart},
		{"multipart mixed", "multipart/mixed", Multipart},

		// Other text
		{"plain text", "text/plain", Text},
		{"script", "text/javascript", Text},
		{"stylesheet", "text/css", Text},
		{"markdown", "text/markdown", Text},

		// Opaque bytes
		{"png image", "image/png", Binary},
		{"mp4 video", "video/mp4", Binary},
		{"pdf download", "application/pdf", Binary},
		{"gzip bundle", "application/gzip", Binary},
		{"protobuf", "application/x-protobuf", Binary},
		{"missing header", "", Binary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.contentType))
		})
	}
}

func TestIsBinary(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		data        []byte
		want        bool
	}{
		// Declared text types never sniff
		{"json", "application/json", nil, false},
		{"vendor json", "application/vnd.api+json", nil, false},
		{"html", "text/html", nil, false},
		{"xml", "application/xml", nil, false},
		{"javascript", "text/javascript", nil, false},
		{"css", "text/css", nil, false},
		{"yaml", "application/yaml", nil, false},
		{"form", "application/x-www-form-urlencoded", nil, false},
		{"plain", "text/plain", nil, false},

		// Declared binary types never sniff
		{"image", "image/webp", nil, true},
		{"audio", "audio/ogg", nil, true},
		{"video", "video/mp4", nil, true},
		{"font", "font/woff2", nil, true},
		{"download", "application/octet-stream", nil, true},
		{"gzip", "application/gzip", nil, true},
		{"zip", "application/zip", nil, true},
		{"pdf", "application/pdf", nil, true},

		// No or unknown header: sniff the payload
		{"no header, utf8 body", "", []byte(`{"ok":true}`), false},
		{"no header, raw bytes", "", []byte{0xff, 0xfe, 0x00, 0x01}, true},
		{"no header, no body", "", nil, false},
		{"unknown type, utf8 body", "application/x-msgpack", []byte("readable"), false},
		{"unknown type, raw bytes", "application/x-msgpack", []byte{0x80, 0x81}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBinary(tt.contentType, tt.data))
		})
	}
}

func TestIsAsset(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        bool
	}{
		{"image", "image/png", true},
		{"font", "font/woff2", true},
		{"legacy woff", "application/font-woff", true},
		{"css", "text/css", true},
		{"javascript", "text/javascript", true},
		{"page html", "text/html; charset=utf-8", true},
		{"audio", "audio/ogg", true},
		{"json api", "application/json", false},
		{"form post", "application/x-www-form-urlencoded", false},
		{"plain text", "text/plain", false},
		{"pdf download", "application/pdf", false},
		{"octet stream", "application/octet-stream", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAsset(tt.contentType))
		})
	}
}

func TestIsJSON(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        bool
	}{
		{"plain json", "application/json", true},
		{"vendor json", "application/vnd.api+json", true},
		{"vendor json with charset", "application/vnd.api+json; charset=utf-8", true},
		{"uppercase", "Application/JSON", true},
		{"javascript is not json", "text/javascript", false},
		{"html", "text/html", false},
		{"xml", "application/xml", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsJSON(tt.contentType))
		})
	}
}
