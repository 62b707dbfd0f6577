package resolver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/internal/replay"
	"github.com/unbrowse/unbrowse/internal/skill"
	"github.com/unbrowse/unbrowse/pkg/jsonschema"
	"github.com/unbrowse/unbrowse/pkg/types"
)

const (
	// defaultExecuteTimeout caps one endpoint call; the candidate race
	// applies it per candidate.
	defaultExecuteTimeout = 30 * time.Second
	// maxResponseBytes bounds what one response may hand back to an
	// agent context.
	maxResponseBytes = 8 << 20
)

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

func newTraceID() string { return uuid.NewString() }

// Executor calls one endpoint of a saved skill directly: the URL
// template filled from parameters, auth state overlaid, the response
// parsed and measured into an execution trace.
type Executor struct {
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time
}

// ExecutorOption configures the Executor.
type ExecutorOption func(*Executor)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ExecutorOption {
	return func(e *Executor) { e.httpClient = c }
}

// WithExecuteTimeout caps a single endpoint call.
func WithExecuteTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

// NewExecutor creates an executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		httpClient: http.DefaultClient,
		timeout:    defaultExecuteTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteOptions selects and parameterizes one endpoint call.
type ExecuteOptions struct {
	// EndpointID picks an endpoint explicitly; empty means best ranked
	// executable endpoint.
	EndpointID string
	// Params fill path placeholders, query parameters and body fields.
	Params map[string]any
	// Body replaces the schema-matched body assembly when non-nil.
	Body any
	// DryRun prepares the request without sending it.
	DryRun bool
	// ConfirmUnsafe allows non-GET endpoints to fire.
	ConfirmUnsafe bool
}

// Execution is one finished (or prepared) endpoint call.
type Execution struct {
	Result        any
	Trace         *types.ExecutionTrace
	Endpoint      *types.SkillEndpoint
	Prepared      *types.PreparedRequest
	ResponseBytes int64
}

// Execute runs one endpoint of m using the stored auth state. The
// returned Execution is non-nil whenever a request was prepared, even
// when the call itself failed.
func (e *Executor) Execute(ctx context.Context, m *types.SkillManifest, auth *types.AuthState, opts ExecuteOptions) (*Execution, error) {
	ep, err := e.selectEndpoint(m, opts)
	if err != nil {
		return nil, err
	}
	if isMutation(ep.Method) && !opts.ConfirmUnsafe && !opts.DryRun {
		return nil, fault.Newf(fault.CodePrecondition,
			"endpoint %s is a %s mutation; set confirm_unsafe to execute", ep.EndpointID, ep.Method)
	}

	params := effectiveParams(ep, opts.Params)
	body := opts.Body
	if body == nil {
		body = bodyFromParams(ep, params)
	}
	if err := skill.ValidateParams(ep, params, body); err != nil {
		return nil, err
	}
	prepared, err := buildRequest(ep, auth, params, body)
	if err != nil {
		return nil, err
	}

	started := e.now()
	trace := &types.ExecutionTrace{
		TraceID:      newTraceID(),
		TraceVersion: types.TraceVersion,
		SkillID:      m.SkillID,
		EndpointID:   ep.EndpointID,
		StartedAt:    types.Timestamp(started),
	}
	exec := &Execution{Trace: trace, Endpoint: ep, Prepared: prepared}

	if opts.DryRun {
		trace.CompletedAt = types.Timestamp(e.now())
		trace.Success = true
		exec.Result = prepared
		return exec, nil
	}

	resp, err := e.send(ctx, prepared)
	trace.CompletedAt = types.Timestamp(e.now())
	if err != nil {
		return exec, err
	}
	exec.ResponseBytes = int64(len(resp.BodyText))
	trace.StatusCode = resp.Status
	trace.TokensUsed = exec.ResponseBytes / 4

	switch {
	case resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden:
		return exec, fault.Newf(fault.CodeAuthRequired,
			"%s rejected stored auth (status %d); log in again", m.Domain, resp.Status)
	case !resp.OK():
		return exec, fault.Newf(fault.CodeUpstream,
			"endpoint %s returned status %d", ep.EndpointID, resp.Status)
	}
	trace.Success = true
	if resp.BodyJSON != nil {
		exec.Result = resp.BodyJSON
	} else {
		exec.Result = resp.BodyText
	}
	return exec, nil
}

// Transport adapts the executor's HTTP client for capture-chain
// replay.
func (e *Executor) Transport() replay.Transport {
	return func(ctx context.Context, req *types.PreparedRequest) (*types.StepResponseRuntime, error) {
		return e.send(ctx, req)
	}
}

func (e *Executor) send(ctx context.Context, prepared *types.PreparedRequest) (*types.StepResponseRuntime, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var reader io.Reader
	if prepared.BodyText != "" {
		reader = strings.NewReader(prepared.BodyText)
	}
	req, err := http.NewRequestWithContext(ctx, prepared.Method, prepared.URL, reader)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInput, "build request for "+prepared.URL, err)
	}
	for _, pair := range prepared.Headers {
		if len(pair) >= 2 {
			req.Header.Set(pair[0], pair[1])
		}
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.CodeUpstream, "call "+prepared.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fault.Wrap(fault.CodeUpstream, "read response from "+prepared.URL, err)
	}
	runtime := &types.StepResponseRuntime{
		Status:      resp.StatusCode,
		BodyText:    string(data),
		ContentType: resp.Header.Get("Content-Type"),
	}
	for name, values := range resp.Header {
		for _, v := range values {
			runtime.Headers = append(runtime.Headers, []string{name, v})
		}
	}
	if looksLikeJSON(runtime.ContentType, runtime.BodyText) {
		runtime.BodyJSON = jsonschema.SafeParse(runtime.BodyText)
	}
	return runtime, nil
}

// selectEndpoint honors an explicit endpoint id, otherwise picks the
// best-ranked endpoint whose requirements the call can satisfy.
func (e *Executor) selectEndpoint(m *types.SkillManifest, opts ExecuteOptions) (*types.SkillEndpoint, error) {
	if opts.EndpointID != "" {
		ep := m.Endpoint(opts.EndpointID)
		if ep == nil {
			return nil, fault.NotFound("endpoint", opts.EndpointID)
		}
		if ep.DOMExtraction != nil {
			return nil, fault.Newf(fault.CodeInput,
				"endpoint %s extracts from the rendered page; resolve with a context url instead", ep.EndpointID)
		}
		return ep, nil
	}
	for _, opt := range rankEndpoints(m) {
		ep := m.Endpoint(opt.EndpointID)
		if ep == nil || ep.Category == types.CategoryAuth || ep.DOMExtraction != nil {
			continue
		}
		if isMutation(ep.Method) && !opts.ConfirmUnsafe {
			continue
		}
		params := effectiveParams(ep, opts.Params)
		body := opts.Body
		if body == nil {
			body = bodyFromParams(ep, params)
		}
		if skill.ValidateParams(ep, params, body) != nil {
			continue
		}
		if _, err := fillTemplate(ep.URLTemplate, params); err != nil {
			continue
		}
		return ep, nil
	}
	return nil, fault.New(fault.CodeInput, "no endpoint is executable with the given parameters")
}

func isMutation(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// effectiveParams backfills required parameters from captured example
// values; explicit caller parameters always win.
func effectiveParams(ep *types.SkillEndpoint, params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	backfill := func(specs []types.ParamSpec) {
		for _, p := range specs {
			if !p.Required || p.Example == "" {
				continue
			}
			if v, ok := out[p.Name]; ok && v != nil && v != "" {
				continue
			}
			out[p.Name] = p.Example
		}
	}
	backfill(ep.PathParams)
	backfill(ep.QueryParams)
	return out
}

// bodyFromParams assembles a request body from the parameters that
// match the endpoint's observed body fields. Nil when nothing matches.
func bodyFromParams(ep *types.SkillEndpoint, params map[string]any) any {
	if len(ep.RequestBodySchema) == 0 || !isMutation(ep.Method) {
		return nil
	}
	body := make(map[string]any)
	for name := range ep.RequestBodySchema {
		if v, ok := params[name]; ok {
			body[name] = v
		}
	}
	if len(body) == 0 {
		return nil
	}
	return body
}

// buildRequest fills the URL template, attaches spec'd query
// parameters, overlays stored auth, and serializes the body.
func buildRequest(ep *types.SkillEndpoint, auth *types.AuthState, params map[string]any, body any) (*types.PreparedRequest, error) {
	rawURL, err := fillTemplate(ep.URLTemplate, params)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInput, "endpoint url "+rawURL, err)
	}
	query := u.Query()
	for _, p := range ep.QueryParams {
		if v, ok := params[p.Name]; ok && v != nil {
			query.Set(p.Name, paramString(v))
		}
	}
	u.RawQuery = query.Encode()

	prepared := &types.PreparedRequest{
		Method: strings.ToUpper(ep.Method),
		URL:    u.String(),
		Headers: types.Headers{
			{"accept", "application/json"},
		},
	}
	if auth != nil {
		for name, value := range auth.Headers {
			prepared.Headers = append(prepared.Headers, []string{name, value})
		}
		if cookie := auth.CookieJar.HeaderValue(); cookie != "" {
			prepared.Headers = append(prepared.Headers, []string{"cookie", cookie})
		}
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fault.Wrap(fault.CodeInput, "encode request body", err)
		}
		prepared.BodyText = string(data)
		prepared.Headers = append(prepared.Headers, []string{"content-type", "application/json"})
	}
	return prepared, nil
}

// fillTemplate substitutes {name} placeholders from params. Any
// placeholder without a value fails the call.
func fillTemplate(template string, params map[string]any) (string, error) {
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := params[name]
		if !ok || v == nil {
			missing = append(missing, name)
			return m
		}
		return url.PathEscape(paramString(v))
	})
	if len(missing) > 0 {
		return "", fault.Newf(fault.CodeInput, "unresolved path parameters: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func paramString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	default:
		data, _ := json.Marshal(v)
		return string(data)
	}
}

func looksLikeJSON(contentType, body string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "application/json") || strings.Contains(ct, "+json") {
		return true
	}
	trimmed := strings.TrimSpace(body)
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}
