// Package types provides shared types for unbrowse.
// These types are used across multiple packages and are designed for external consumption.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ToAny round-trips a typed value through JSON to produce an untyped any.
// Use this when a tool output field must be any (instead of json.RawMessage)
// to satisfy the MCP SDK's schema validation.
func ToAny(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Headers is an ordered list of [name, value] pairs with original casing
// preserved. Lookups are case-insensitive; order is insertion order.
type Headers [][]string

// Get returns the first header value matching name (case-insensitive).
func (h Headers) Get(name string) string {
	for _, pair := range h {
		if len(pair) >= 2 && strings.EqualFold(pair[0], name) {
			return pair[1]
		}
	}
	return ""
}

// Has reports whether a header with the given name exists (case-insensitive).
func (h Headers) Has(name string) bool {
	for _, pair := range h {
		if len(pair) >= 2 && strings.EqualFold(pair[0], name) {
			return true
		}
	}
	return false
}

// Values returns all header values matching name (case-insensitive).
func (h Headers) Values(name string) []string {
	var values []string
	for _, pair := range h {
		if len(pair) >= 2 && strings.EqualFold(pair[0], name) {
			values = append(values, pair[1])
		}
	}
	return values
}

// Set replaces the first header matching name (keeping its original casing
// and position) and drops any duplicates. A missing header is appended.
func (h *Headers) Set(name, value string) {
	out := make(Headers, 0, len(*h))
	replaced := false
	for _, pair := range *h {
		if len(pair) >= 2 && strings.EqualFold(pair[0], name) {
			if !replaced {
				out = append(out, []string{pair[0], value})
				replaced = true
			}
			continue
		}
		out = append(out, pair)
	}
	if !replaced {
		out = append(out, []string{name, value})
	}
	*h = out
}

// Del removes every header matching name (case-insensitive).
func (h *Headers) Del(name string) {
	out := make(Headers, 0, len(*h))
	for _, pair := range *h {
		if len(pair) >= 2 && strings.EqualFold(pair[0], name) {
			continue
		}
		out = append(out, pair)
	}
	*h = out
}

// Clone returns a deep copy.
func (h Headers) Clone() Headers {
	out := make(Headers, 0, len(h))
	for _, pair := range h {
		cp := make([]string, len(pair))
		copy(cp, pair)
		out = append(out, cp)
	}
	return out
}

// Map flattens to a name -> first-value map with original casing.
func (h Headers) Map() map[string]string {
	out := make(map[string]string, len(h))
	for _, pair := range h {
		if len(pair) >= 2 {
			if _, ok := out[pair[0]]; !ok {
				out[pair[0]] = pair[1]
			}
		}
	}
	return out
}

// HeadersFromMap builds Headers from a plain map. Key order follows Go map
// iteration and is therefore unspecified; use this only where order does
// not matter (tests, overrides).
func HeadersFromMap(m map[string]string) Headers {
	out := make(Headers, 0, len(m))
	for k, v := range m {
		out = append(out, []string{k, v})
	}
	return out
}

// Cookie is a single captured cookie.
type Cookie struct {
	Name  string
	Value string
}

// Cookies preserves insertion order and serializes as a JSON object, the
// on-disk shape of auth.json. Duplicate names keep the first value.
type Cookies []Cookie

// Get returns the value for name, or "".
func (c Cookies) Get(name string) string {
	for _, ck := range c {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// Set updates an existing cookie in place or appends a new one.
func (c *Cookies) Set(name, value string) {
	for i, ck := range *c {
		if ck.Name == name {
			(*c)[i].Value = value
			return
		}
	}
	*c = append(*c, Cookie{Name: name, Value: value})
}

// HeaderValue renders "name1=value1; name2=value2" in insertion order.
func (c Cookies) HeaderValue() string {
	var b strings.Builder
	for i, ck := range c {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(ck.Name)
		b.WriteByte('=')
		b.WriteString(ck.Value)
	}
	return b.String()
}

// MarshalJSON encodes cookies as an object in insertion order.
func (c Cookies) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, ck := range c {
		if i > 0 {
			b.WriteByte(',')
		}
		name, err := json.Marshal(ck.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(ck.Value)
		if err != nil {
			return nil, err
		}
		b.Write(name)
		b.WriteByte(':')
		b.Write(value)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving document order.
func (c *Cookies) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*c = nil
		return nil
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return fmt.Errorf("cookies: expected object, got %v", tok)
	}
	var out Cookies
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("cookies: non-string key %v", keyTok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("cookies: value for %q: %w", key, err)
		}
		out = append(out, Cookie{Name: key, Value: value})
	}
	*c = out
	return nil
}

// QueryParam is one query-string pair. Repeated keys are allowed.
type QueryParam struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// QueryParams is the ordered, case-sensitive query-parameter list.
type QueryParams []QueryParam

// Get returns the first value for key, or "".
func (q QueryParams) Get(key string) string {
	for _, p := range q {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// Has reports whether key appears at least once.
func (q QueryParams) Has(key string) bool {
	for _, p := range q {
		if p.Key == key {
			return true
		}
	}
	return false
}

// Set replaces the first occurrence of key or appends.
func (q *QueryParams) Set(key, value string) {
	for i, p := range *q {
		if p.Key == key {
			(*q)[i].Value = value
			return
		}
	}
	*q = append(*q, QueryParam{Key: key, Value: value})
}

// BodyFormat classifies a request or response body.
type BodyFormat string

const (
	BodyJSON      BodyFormat = "json"
	BodyForm      BodyFormat = "form"
	BodyMultipart BodyFormat = "multipart"
	BodyText      BodyFormat = "text"
	BodyBinary    BodyFormat = "binary"
)
