// Package replay turns captured exchanges back into live requests: the
// preparer rebuilds one request with correlated values injected from
// earlier step responses, and the executor walks a correlation chain
// through a transport.
package replay

import (
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/unbrowse/unbrowse/internal/correlate"
	"github.com/unbrowse/unbrowse/internal/exchange"
	"github.com/unbrowse/unbrowse/pkg/jsonpath"
	"github.com/unbrowse/unbrowse/pkg/jsonschema"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// droppedHeaders are stripped before replay: they describe the captured
// connection, not the request, and the HTTP client regenerates them.
// Cookies travel through the session jar instead of the raw header.
var droppedHeaders = map[string]bool{
	"host":              true,
	"connection":        true,
	"content-length":    true,
	"transfer-encoding": true,
	"cookie":            true,
}

// stripExtensions are the suffixes tried when matching a hashed needle
// inside a URL segment like "abc123.json".
var stripExtensions = []string{".json", ".xml", ".csv", ".txt", ".html"}

// PrepareOptions tunes request preparation for one step.
type PrepareOptions struct {
	// SessionHeaders overlay the captured headers (current auth state).
	SessionHeaders map[string]string
	// BodyOverride replaces the captured body text when non-nil.
	BodyOverride *string
}

// PrepareRequestForStep rebuilds the request for one exchange with every
// incoming correlated value injected from the runtime of already-executed
// steps. Returns nil when no exchange carries the step index.
func PrepareRequestForStep(exchanges []*types.CapturedExchange, graph *types.CorrelationGraphV1, stepIndex int, runtime map[int]*types.StepResult, opts *PrepareOptions) *types.PreparedRequest {
	ex := findExchange(exchanges, stepIndex)
	if ex == nil {
		return nil
	}

	prepared := &types.PreparedRequest{
		Method: ex.Request.Method,
		URL:    ex.Request.URL,
	}
	for _, h := range ex.Request.Headers {
		if len(h) < 2 {
			continue
		}
		name := strings.ToLower(h[0])
		if droppedHeaders[name] || strings.HasPrefix(name, ":") {
			continue
		}
		prepared.Headers = append(prepared.Headers, []string{h[0], h[1]})
	}
	if opts != nil {
		for _, name := range sortedKeys(opts.SessionHeaders) {
			prepared.Headers.Set(name, opts.SessionHeaders[name])
		}
	}

	switch {
	case opts != nil && opts.BodyOverride != nil:
		prepared.BodyText = *opts.BodyOverride
	case ex.Request.BodyRaw != "":
		prepared.BodyText = ex.Request.BodyRaw
	case ex.Request.Body != nil:
		if raw, err := json.Marshal(ex.Request.Body); err == nil {
			prepared.BodyText = string(raw)
		}
	}

	if graph == nil {
		return prepared
	}
	for _, link := range graph.IncomingLinks(stepIndex) {
		v, ok := extractFromRuntime(runtime, link)
		if !ok {
			continue
		}
		inject(prepared, link, v)
	}
	return prepared
}

// extractFromRuntime pulls the live value a link points at out of an
// already-executed step. A missing step, header, or path means the link
// cannot be satisfied and the captured value stays in place.
func extractFromRuntime(runtime map[int]*types.StepResult, link types.CorrelationLinkV1) (string, bool) {
	step := runtime[link.SourceRequestIndex]
	if step == nil {
		return "", false
	}
	switch link.SourceLocation {
	case types.LocHeader:
		if step.Response == nil {
			return "", false
		}
		if !step.Response.Headers.Has(link.SourcePath) {
			return "", false
		}
		return step.Response.Headers.Get(link.SourcePath), true
	case types.LocBody:
		if step.Response == nil {
			return "", false
		}
		body := step.Response.BodyJSON
		if body == nil {
			body = jsonschema.SafeParse(step.Response.BodyText)
		}
		if body == nil {
			return "", false
		}
		val, ok := jsonpath.Get(body, link.SourcePath)
		if !ok {
			return "", false
		}
		return stringify(val)
	case types.LocCookie:
		if step.Response == nil {
			return "", false
		}
		for _, ck := range exchange.ParseSetCookies(step.Response.Headers) {
			if ck.Name == link.SourcePath {
				return ck.Value, true
			}
		}
		return "", false
	case types.LocURL:
		if step.Prepared == nil {
			return "", false
		}
		u, err := url.Parse(step.Prepared.URL)
		if err != nil {
			return "", false
		}
		segs := pathSegments(u.Path)
		i, ok := pathIndex(link.SourcePath)
		if !ok || i >= len(segs) {
			return "", false
		}
		return segs[i], true
	case types.LocQuery:
		if step.Prepared == nil {
			return "", false
		}
		u, err := url.Parse(step.Prepared.URL)
		if err != nil {
			return "", false
		}
		key := strings.TrimPrefix(link.SourcePath, "query.")
		vals, ok := u.Query()[key]
		if !ok || len(vals) == 0 {
			return "", false
		}
		return vals[0], true
	}
	return "", false
}

// inject applies one correlated value to its target slot.
func inject(prepared *types.PreparedRequest, link types.CorrelationLinkV1, v string) {
	switch link.TargetLocation {
	case types.LocHeader:
		value := v
		if strings.EqualFold(link.TargetPath, "authorization") && !strings.HasPrefix(strings.ToLower(v), "bearer") {
			value = "Bearer " + v
		}
		prepared.Headers.Set(link.TargetPath, value)
	case types.LocURL:
		injectURLSegment(prepared, link, v)
	case types.LocQuery:
		injectQuery(prepared, link, v)
	case types.LocBody:
		path := strings.TrimPrefix(link.TargetPath, "body.")
		body := jsonschema.SafeParse(prepared.BodyText)
		if body == nil {
			return
		}
		body = jsonpath.Set(body, path, v)
		if raw, err := json.Marshal(body); err == nil {
			prepared.BodyText = string(raw)
		}
	}
	// Cookie targets are reconstructed by the session jar, not injected.
}

// injectURLSegment swaps one path segment for the live value. When the
// link carries a value hash, the segment and its extension-stripped stem
// are both tried so "abc123.json" keeps its suffix after replacement.
func injectURLSegment(prepared *types.PreparedRequest, link types.CorrelationLinkV1, v string) {
	u, err := url.Parse(prepared.URL)
	if err != nil {
		return
	}
	i, ok := pathIndex(link.TargetPath)
	if !ok {
		return
	}
	segs := pathSegments(u.Path)
	if i >= len(segs) {
		return
	}

	seg := segs[i]
	replaced := v
	if link.ValueHash != "" {
		if needle, ok := matchNeedle(seg, link.ValueHash); ok {
			replaced = strings.Replace(seg, needle, v, 1)
		}
	}
	segs[i] = replaced

	u.Path = "/" + strings.Join(segs, "/")
	u.RawPath = ""
	prepared.URL = u.String()
}

// matchNeedle finds which form of a segment hashes to the recorded
// value: the whole segment or its stem with a known extension removed.
func matchNeedle(seg, valueHash string) (string, bool) {
	if correlate.HashValue(seg) == valueHash {
		return seg, true
	}
	for _, ext := range stripExtensions {
		if strings.HasSuffix(seg, ext) {
			stem := strings.TrimSuffix(seg, ext)
			if correlate.HashValue(stem) == valueHash {
				return stem, true
			}
		}
	}
	return "", false
}

// injectQuery sets a query parameter, descending into a JSON-encoded
// value when the target path nests below the key.
func injectQuery(prepared *types.PreparedRequest, link types.CorrelationLinkV1, v string) {
	u, err := url.Parse(prepared.URL)
	if err != nil {
		return
	}
	rest := strings.TrimPrefix(link.TargetPath, "query.")
	key, nested, hasNested := strings.Cut(rest, ".")

	q := u.Query()
	if hasNested {
		var obj any = map[string]any{}
		if existing := q.Get(key); existing != "" {
			if parsed := jsonschema.SafeParse(existing); parsed != nil {
				obj = parsed
			}
		}
		obj = jsonpath.Set(obj, nested, v)
		raw, err := json.Marshal(obj)
		if err != nil {
			return
		}
		q.Set(key, string(raw))
	} else {
		q.Set(key, v)
	}
	u.RawQuery = q.Encode()
	prepared.URL = u.String()
}

func findExchange(exchanges []*types.CapturedExchange, index int) *types.CapturedExchange {
	for _, ex := range exchanges {
		if ex != nil && ex.Index == index {
			return ex
		}
	}
	return nil
}

// pathIndex parses the <i> out of "url.path.<i>".
func pathIndex(p string) (int, bool) {
	rest := strings.TrimPrefix(p, "url.path.")
	if rest == p {
		return 0, false
	}
	i, err := strconv.Atoi(rest)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

func pathSegments(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func stringify(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	}
	return "", false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
