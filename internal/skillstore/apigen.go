package skillstore

import (
	"bytes"
	"strconv"
	"strings"
	"text/template"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// RenderClientScript renders scripts/api.go: a standalone program that
// calls the skill's endpoints using the auth.json sitting next to it.
// The script depends only on the standard library so it runs anywhere.
func RenderClientScript(m *types.SkillManifest) ([]byte, error) {
	data := struct {
		Domain    string
		ExampleID string
		Endpoints []types.SkillEndpoint
	}{Domain: m.Domain, ExampleID: "endpoint-id", Endpoints: m.Endpoints}
	if len(m.Endpoints) > 0 {
		data.ExampleID = m.Endpoints[0].EndpointID
	}
	var b bytes.Buffer
	if err := clientTemplate.Execute(&b, data); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "render client script", err)
	}
	return b.Bytes(), nil
}

func paramNames(params []types.ParamSpec) string {
	if len(params) == 0 {
		return "nil"
	}
	quoted := make([]string, len(params))
	for i, p := range params {
		quoted[i] = strconv.Quote(p.Name)
	}
	return "[]string{" + strings.Join(quoted, ", ") + "}"
}

var clientTemplate = template.Must(template.New("api").Funcs(template.FuncMap{
	"q":     strconv.Quote,
	"names": paramNames,
}).Parse(`// Code generated by unbrowse for {{.Domain}}. DO NOT EDIT.
//
// Standalone API client. Run from the scripts directory:
//
//	go run api.go -endpoint {{.ExampleID}} [-param name=value ...] [-body '{...}']
//
// Session credentials are read from ../auth.json.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"
)

type endpoint struct {
	id          string
	method      string
	urlTemplate string
	pathParams  []string
	queryParams []string
}

var endpoints = []endpoint{
{{- range .Endpoints}}
	{id: {{q .EndpointID}}, method: {{q .Method}}, urlTemplate: {{q .URLTemplate}}, pathParams: {{names .PathParams}}, queryParams: {{names .QueryParams}}},
{{- end}}
}

type params map[string]string

func (p params) String() string { return "" }

func (p params) Set(v string) error {
	name, value, ok := strings.Cut(v, "=")
	if !ok {
		return fmt.Errorf("expected name=value, got %q", v)
	}
	p[name] = value
	return nil
}

func main() {
	var (
		name = flag.String("endpoint", "", "endpoint id to call")
		auth = flag.String("auth", "../auth.json", "path to auth.json")
		body = flag.String("body", "", "JSON request body")
	)
	args := params{}
	flag.Var(args, "param", "name=value, repeatable")
	flag.Parse()

	ep := find(*name)
	if ep == nil {
		fmt.Fprintf(os.Stderr, "unknown endpoint %q; known endpoints:\n", *name)
		for _, e := range endpoints {
			fmt.Fprintf(os.Stderr, "  %-40s %s %s\n", e.id, e.method, e.urlTemplate)
		}
		os.Exit(2)
	}
	status, out, err := call(ep, args, *auth, *body)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, status)
	fmt.Println(out)
}

func find(id string) *endpoint {
	for i := range endpoints {
		if endpoints[i].id == id {
			return &endpoints[i]
		}
	}
	return nil
}

func call(ep *endpoint, args params, authPath, body string) (string, string, error) {
	target := ep.urlTemplate
	for _, p := range ep.pathParams {
		v, ok := args[p]
		if !ok {
			return "", "", fmt.Errorf("missing path parameter %q", p)
		}
		target = strings.ReplaceAll(target, "{"+p+"}", url.PathEscape(v))
	}
	q := url.Values{}
	for _, p := range ep.queryParams {
		if v, ok := args[p]; ok {
			q.Set(p, v)
		}
	}
	if len(q) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + q.Encode()
	}

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}
	req, err := http.NewRequest(ep.method, target, reqBody)
	if err != nil {
		return "", "", err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	applyAuth(req, authPath)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", err
	}
	return resp.Status, string(out), nil
}

func applyAuth(req *http.Request, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: no auth state (%v), calling unauthenticated\n", err)
		return
	}
	var state map[string]any
	if err := json.Unmarshal(raw, &state); err != nil {
		fmt.Fprintf(os.Stderr, "warning: unreadable auth state: %v\n", err)
		return
	}
	if headers, ok := state["headers"].(map[string]any); ok {
		for name, value := range headers {
			if s, ok := value.(string); ok {
				req.Header.Set(name, s)
			}
		}
	}
	if cookies, ok := state["cookies"].(map[string]any); ok {
		names := make([]string, 0, len(cookies))
		for name := range cookies {
			names = append(names, name)
		}
		sort.Strings(names)
		var pairs []string
		for _, name := range names {
			if value, ok := cookies[name].(string); ok {
				pairs = append(pairs, name+"="+value)
			}
		}
		if len(pairs) > 0 {
			req.Header.Set("Cookie", strings.Join(pairs, "; "))
		}
	}
}
`))
