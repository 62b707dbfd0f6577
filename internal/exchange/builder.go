package exchange

import (
	"net/url"
	"sort"
	"strings"

	"github.com/unbrowse/unbrowse/pkg/contenttype"
	"github.com/unbrowse/unbrowse/pkg/jsonschema"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// RawEvent is one network event as reported by the capture transport.
// Header maps arrive unordered; the builder sorts them by name.
type RawEvent struct {
	Method          string
	URL             string
	Status          int
	ResourceType    string
	Headers         map[string]string
	ResponseHeaders map[string]string
	PostData        string
	ResponseBody    string
	TsMs            int64
}

// assetResourceTypes are transport resource labels that never carry API
// traffic.
var assetResourceTypes = map[string]bool{
	"image": true, "imageset": true, "stylesheet": true, "font": true,
	"media": true, "script": true, "manifest": true, "texttrack": true,
	"ping": true, "beacon": true, "websocket": true,
}

// assetExtensions are URL path suffixes filtered out of captures.
var assetExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".ico": true, ".webp": true, ".avif": true, ".css": true, ".js": true,
	".mjs": true, ".map": true, ".woff": true, ".woff2": true, ".ttf": true,
	".otf": true, ".eot": true, ".mp3": true, ".mp4": true, ".webm": true,
}

// ShouldCapture reports whether an event is API traffic worth keeping:
// http(s) only, no page assets by resource type, extension or response
// content type.
func ShouldCapture(ev RawEvent) bool {
	u, err := url.Parse(ev.URL)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	if assetResourceTypes[strings.ToLower(ev.ResourceType)] {
		return false
	}
	if dot := strings.LastIndex(u.Path, "."); dot >= 0 {
		if assetExtensions[strings.ToLower(u.Path[dot:])] {
			return false
		}
	}
	if ct := headerValue(ev.ResponseHeaders, "content-type"); ct != "" && contenttype.IsAsset(ct) {
		return false
	}
	return true
}

// FromEvent builds an exchange from a raw event. The second return is
// false when the event is filtered out. Index is assigned by the
// buffer, not here.
func FromEvent(ev RawEvent) (types.CapturedExchange, bool) {
	if !ShouldCapture(ev) {
		return types.CapturedExchange{}, false
	}
	u, err := url.Parse(ev.URL)
	if err != nil {
		return types.CapturedExchange{}, false
	}

	reqHeaders := sortedHeaders(ev.Headers)
	ex := types.CapturedExchange{
		TsMs: ev.TsMs,
		Request: types.RequestData{
			Method:      strings.ToUpper(ev.Method),
			URL:         ev.URL,
			Headers:     reqHeaders,
			Cookies:     ParseCookieHeader(reqHeaders.Get("cookie")),
			QueryParams: ParseQuery(u.RawQuery),
		},
	}

	reqCT := reqHeaders.Get("content-type")
	ex.Request.ContentType = reqCT
	ex.Request.Body, ex.Request.BodyRaw, ex.Request.BodyFormat = decodeBody(ev.PostData, reqCT)

	if ev.Status != 0 {
		respHeaders := sortedHeaders(ev.ResponseHeaders)
		resp := &types.ResponseData{
			Status:      ev.Status,
			Headers:     respHeaders,
			Cookies:     ParseSetCookies(respHeaders),
			ContentType: respHeaders.Get("content-type"),
		}
		resp.Body, resp.BodyRaw, resp.BodyFormat = decodeBody(ev.ResponseBody, resp.ContentType)
		ex.Response = resp
	}
	return ex, true
}

// decodeBody classifies a body and parses JSON payloads. Raw text is
// preserved for every non-binary format.
func decodeBody(raw, contentType string) (any, string, types.BodyFormat) {
	if raw == "" {
		return nil, "", ""
	}
	switch contenttype.Classify(contentType) {
	case contenttype.JSON:
		return jsonschema.SafeParse(raw), raw, types.BodyJSON
	case contenttype.Form:
		return nil, raw, types.BodyForm
	case contenttype.Multipart:
		return nil, raw, types.BodyMultipart
	case contenttype.Binary:
		if contenttype.IsBinary(contentType, []byte(raw)) {
			return nil, "", types.BodyBinary
		}
		// Unlabeled but textual; try JSON before settling for text.
		if v := jsonschema.SafeParse(raw); v != nil {
			return v, raw, types.BodyJSON
		}
		return nil, raw, types.BodyText
	default:
		return nil, raw, types.BodyText
	}
}

// ParseQuery splits a raw query string into ordered parameters,
// percent-decoding where possible and keeping the raw token otherwise.
func ParseQuery(rawQuery string) types.QueryParams {
	if rawQuery == "" {
		return nil
	}
	var out types.QueryParams
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		out = append(out, types.QueryParam{Key: unescape(key), Value: unescape(value)})
	}
	return out
}

func unescape(s string) string {
	if decoded, err := url.QueryUnescape(s); err == nil {
		return decoded
	}
	return s
}

// ParseCookieHeader splits a Cookie request header into ordered pairs.
func ParseCookieHeader(value string) types.Cookies {
	if value == "" {
		return nil
	}
	var out types.Cookies
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, val, _ := strings.Cut(part, "=")
		if name == "" {
			continue
		}
		out = append(out, types.Cookie{Name: name, Value: val})
	}
	return out
}

// ParseSetCookies extracts name=value pairs from Set-Cookie response
// headers, dropping attributes after the first semicolon.
func ParseSetCookies(headers types.Headers) types.Cookies {
	var out types.Cookies
	for _, raw := range headers.Values("set-cookie") {
		first := raw
		if semi := strings.Index(raw, ";"); semi >= 0 {
			first = raw[:semi]
		}
		name, val, ok := strings.Cut(strings.TrimSpace(first), "=")
		if !ok || name == "" {
			continue
		}
		out.Set(name, val)
	}
	return out
}

// sortedHeaders renders an unordered header map deterministically.
func sortedHeaders(m map[string]string) types.Headers {
	if len(m) == 0 {
		return nil
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make(types.Headers, 0, len(names))
	for _, name := range names {
		out = append(out, []string{name, m[name]})
	}
	return out
}

func headerValue(m map[string]string, name string) string {
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// CollectDomains lists the distinct request hosts in first-seen order.
func CollectDomains(exchanges []types.CapturedExchange) []string {
	var out []string
	seen := make(map[string]bool)
	for i := range exchanges {
		u, err := url.Parse(exchanges[i].Request.URL)
		if err != nil || u.Hostname() == "" {
			continue
		}
		host := strings.ToLower(u.Hostname())
		if !seen[host] {
			seen[host] = true
			out = append(out, host)
		}
	}
	return out
}

// CollectBaseURLs lists distinct scheme://host[:port] origins in
// first-seen order.
func CollectBaseURLs(exchanges []types.CapturedExchange) []string {
	var out []string
	seen := make(map[string]bool)
	for i := range exchanges {
		u, err := url.Parse(exchanges[i].Request.URL)
		if err != nil || u.Host == "" {
			continue
		}
		base := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
		if !seen[base] {
			seen[base] = true
			out = append(out, base)
		}
	}
	return out
}
