// Package correlate infers how captured values flow between requests:
// a token minted by one response and echoed in a later request becomes a
// link, and the links over a capture window form the correlation graph
// the replay engine walks.
package correlate

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"

	"github.com/unbrowse/unbrowse/internal/exchange"
	"github.com/unbrowse/unbrowse/pkg/jsonpath"
	"github.com/unbrowse/unbrowse/pkg/jsonschema"
	"github.com/unbrowse/unbrowse/pkg/types"
)

const (
	// minValueLength filters out short values that would match by accident.
	minValueLength = 8
	// minDistinctRunes filters out padding and separator runs.
	minDistinctRunes = 4
)

// candidate is one occurrence of an indexable value in a source exchange.
type candidate struct {
	index    int
	location types.Location
	path     string
	raw      string
	hash     string
}

// slot is one place in a request where an earlier value could reappear.
type slot struct {
	location types.Location
	path     string
	value    string
}

// Infer builds the correlation graph over a capture window. Links always
// point from an earlier exchange index to a later one, so the graph is a
// DAG and ascending index order is a valid topological sort.
func Infer(exchanges []*types.CapturedExchange) *types.CorrelationGraphV1 {
	graph := &types.CorrelationGraphV1{Version: 1}
	index := make(map[string][]candidate)
	var needles []string // insertion order keeps substring scans deterministic

	seen := make(map[string]bool)
	addLink := func(c candidate, target int, loc types.Location, path string) {
		if c.index >= target {
			return
		}
		key := strconv.Itoa(c.index) + "|" + strconv.Itoa(target) + "|" +
			string(c.location) + "|" + c.path + "|" + string(loc) + "|" + path
		if seen[key] {
			return
		}
		seen[key] = true
		graph.Links = append(graph.Links, types.CorrelationLinkV1{
			SourceRequestIndex: c.index,
			SourceLocation:     c.location,
			SourcePath:         c.path,
			TargetRequestIndex: target,
			TargetLocation:     loc,
			TargetPath:         path,
			ValueHash:          c.hash,
		})
	}

	for _, ex := range exchanges {
		if ex == nil {
			continue
		}
		// Match this request's slots against values seen in earlier
		// exchanges before indexing its own values, so nothing links
		// to itself.
		for _, sl := range targetSlots(ex) {
			for _, c := range lookup(index, needles, sl) {
				addLink(c, ex.Index, sl.location, sl.path)
			}
		}
		for _, c := range sourceCandidates(ex) {
			if _, ok := index[c.raw]; !ok {
				needles = append(needles, c.raw)
			}
			index[c.raw] = append(index[c.raw], c)
		}
	}
	return graph
}

// sourceCandidates enumerates every indexable value an exchange exposes:
// header values on both sides, cookies sent and set, response-body string
// and numeric leaves, URL path segments and query values. Bearer-prefixed
// values are indexed in both full and stripped form.
func sourceCandidates(ex *types.CapturedExchange) []candidate {
	var out []candidate
	add := func(loc types.Location, path, value string) {
		v := strings.TrimSpace(value)
		if !indexable(v) {
			return
		}
		out = append(out, candidate{ex.Index, loc, path, v, HashValue(v)})
		if stripped, ok := stripBearer(v); ok && indexable(stripped) {
			out = append(out, candidate{ex.Index, loc, path, stripped, HashValue(stripped)})
		}
	}

	for _, h := range ex.Request.Headers {
		if len(h) < 2 {
			continue
		}
		name := strings.ToLower(h[0])
		if name == "cookie" || name == "set-cookie" {
			continue // cookies are enumerated by name below
		}
		add(types.LocHeader, name, h[1])
	}
	for _, ck := range ex.Request.Cookies {
		add(types.LocCookie, ck.Name, ck.Value)
	}
	if u, err := url.Parse(ex.Request.URL); err == nil {
		for i, seg := range pathSegments(u.Path) {
			add(types.LocURL, "url.path."+strconv.Itoa(i), seg)
		}
	}
	for _, q := range ex.Request.QueryParams {
		add(types.LocQuery, "query."+q.Key, q.Value)
	}

	if ex.Response == nil {
		return out
	}
	for _, h := range ex.Response.Headers {
		if len(h) < 2 {
			continue
		}
		name := strings.ToLower(h[0])
		if name == "cookie" || name == "set-cookie" {
			continue
		}
		add(types.LocHeader, name, h[1])
	}
	for _, ck := range exchange.ParseSetCookies(ex.Response.Headers) {
		add(types.LocCookie, ck.Name, ck.Value)
	}
	body := ex.Response.Body
	if body == nil && ex.Response.BodyRaw != "" {
		body = jsonschema.SafeParse(ex.Response.BodyRaw)
	}
	for _, leaf := range jsonpath.Leaves(body) {
		switch v := leaf.Value.(type) {
		case string:
			add(types.LocBody, leaf.Path, v)
		case float64:
			// Numeric ids (story ids, account numbers) are indexed in the
			// same canonical form the replay extractor produces.
			add(types.LocBody, leaf.Path, strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	return out
}

// targetSlots enumerates the request-side places a value can be injected
// into on replay.
func targetSlots(ex *types.CapturedExchange) []slot {
	var out []slot
	for _, h := range ex.Request.Headers {
		if len(h) < 2 {
			continue
		}
		name := strings.ToLower(h[0])
		if name == "cookie" || name == "set-cookie" {
			continue
		}
		out = append(out, slot{types.LocHeader, name, h[1]})
	}
	if u, err := url.Parse(ex.Request.URL); err == nil {
		for i, seg := range pathSegments(u.Path) {
			out = append(out, slot{types.LocURL, "url.path." + strconv.Itoa(i), seg})
		}
	}
	for _, q := range ex.Request.QueryParams {
		out = append(out, slot{types.LocQuery, "query." + q.Key, q.Value})
	}
	body := ex.Request.Body
	if body == nil && ex.Request.BodyRaw != "" {
		body = jsonschema.SafeParse(ex.Request.BodyRaw)
	}
	for _, leaf := range jsonpath.Leaves(body) {
		if s, ok := leaf.Value.(string); ok {
			out = append(out, slot{types.LocBody, "body." + leaf.Path, s})
		}
	}
	for _, ck := range ex.Request.Cookies {
		out = append(out, slot{types.LocCookie, ck.Name, ck.Value})
	}
	return out
}

// lookup finds indexed values occurring in a slot. Whole-value matches
// apply everywhere; header slots additionally match their bearer-stripped
// form, and header and URL slots match contained substrings so that
// "abc123.json" still links to "abc123". Substring hits carry the
// needle's hash so the preparer can reconstruct the replacement.
func lookup(index map[string][]candidate, needles []string, sl slot) []candidate {
	v := strings.TrimSpace(sl.value)
	if v == "" {
		return nil
	}
	out := append([]candidate(nil), index[v]...)
	if sl.location == types.LocHeader {
		if stripped, ok := stripBearer(v); ok && stripped != v {
			out = append(out, index[stripped]...)
		}
	}
	if sl.location == types.LocHeader || sl.location == types.LocURL {
		for _, needle := range needles {
			if needle == v || len(needle) >= len(v) {
				continue
			}
			if strings.Contains(v, needle) {
				out = append(out, index[needle]...)
			}
		}
	}
	return out
}

// HashValue returns the SHA-256 hex digest of a correlated value. The
// digest keys substring replacement during replay preparation.
func HashValue(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

func indexable(v string) bool {
	if len(v) < minValueLength {
		return false
	}
	distinct := make(map[rune]bool)
	for _, r := range v {
		distinct[r] = true
		if len(distinct) >= minDistinctRunes {
			return true
		}
	}
	return false
}

func stripBearer(v string) (string, bool) {
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:]), true
	}
	return "", false
}

func pathSegments(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
