package exchange

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// HAR 1.2 subset: only the fields the pipeline consumes.

type harFile struct {
	Log struct {
		Entries []harEntry `json:"entries"`
	} `json:"log"`
}

type harEntry struct {
	StartedDateTime string      `json:"startedDateTime"`
	Request         harRequest  `json:"request"`
	Response        harResponse `json:"response"`
	ResourceType    string      `json:"_resourceType"`
}

type harRequest struct {
	Method   string    `json:"method"`
	URL      string    `json:"url"`
	Headers  []harPair `json:"headers"`
	PostData *struct {
		MimeType string `json:"mimeType"`
		Text     string `json:"text"`
	} `json:"postData"`
}

type harResponse struct {
	Status  int       `json:"status"`
	Headers []harPair `json:"headers"`
	Content struct {
		MimeType string `json:"mimeType"`
		Text     string `json:"text"`
		Encoding string `json:"encoding"`
	} `json:"content"`
}

type harPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ImportHAR parses a HAR 1.2 archive into exchanges ordered by start
// time, filtered down to API traffic. When baseURL is non-empty only
// entries under that prefix are kept. Indices are assigned 0..n-1 after
// filtering.
func ImportHAR(r io.Reader, baseURL string) ([]types.CapturedExchange, error) {
	var file harFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fault.Wrap(fault.CodeInput, "parse har", err)
	}
	entries := file.Log.Entries
	sort.SliceStable(entries, func(i, j int) bool {
		return harTime(entries[i].StartedDateTime).Before(harTime(entries[j].StartedDateTime))
	})

	var out []types.CapturedExchange
	for _, entry := range entries {
		if baseURL != "" && !strings.HasPrefix(entry.Request.URL, baseURL) {
			continue
		}
		ev := eventFromEntry(entry)
		ex, ok := FromEvent(ev)
		if !ok {
			continue
		}
		ex.Index = len(out)
		out = append(out, ex)
	}
	return out, nil
}

func eventFromEntry(entry harEntry) RawEvent {
	ev := RawEvent{
		Method:          entry.Request.Method,
		URL:             entry.Request.URL,
		Status:          entry.Response.Status,
		ResourceType:    entry.ResourceType,
		Headers:         pairMap(entry.Request.Headers),
		ResponseHeaders: pairMap(entry.Response.Headers),
		TsMs:            harTime(entry.StartedDateTime).UnixMilli(),
	}
	if entry.Request.PostData != nil {
		ev.PostData = entry.Request.PostData.Text
		if ev.Headers == nil {
			ev.Headers = map[string]string{}
		}
		if headerValue(ev.Headers, "content-type") == "" && entry.Request.PostData.MimeType != "" {
			ev.Headers["content-type"] = entry.Request.PostData.MimeType
		}
	}

	body := entry.Response.Content.Text
	if entry.Response.Content.Encoding == "base64" {
		if decoded, err := base64.StdEncoding.DecodeString(body); err == nil {
			body = string(decoded)
		}
	}
	ev.ResponseBody = body
	if headerValue(ev.ResponseHeaders, "content-type") == "" && entry.Response.Content.MimeType != "" {
		if ev.ResponseHeaders == nil {
			ev.ResponseHeaders = map[string]string{}
		}
		ev.ResponseHeaders["content-type"] = entry.Response.Content.MimeType
	}
	return ev
}

func pairMap(pairs []harPair) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]string, len(pairs))
	seen := make(map[string]bool)
	for _, p := range pairs {
		// HTTP/2 pseudo headers are protocol noise.
		if strings.HasPrefix(p.Name, ":") {
			continue
		}
		lower := strings.ToLower(p.Name)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		out[p.Name] = p.Value
	}
	return out
}

func harTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
