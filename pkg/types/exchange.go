package types

// RequestData is the request half of a captured exchange. Headers keep
// their captured order and casing; filtering happens at the transport
// layer, never here.
type RequestData struct {
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	Headers     Headers     `json:"headers,omitempty"`
	Cookies     Cookies     `json:"cookies,omitempty"`
	QueryParams QueryParams `json:"queryParams,omitempty"`
	Body        any         `json:"body,omitempty"`
	BodyRaw     string      `json:"bodyRaw,omitempty"`
	BodyFormat  BodyFormat  `json:"bodyFormat,omitempty"`
	ContentType string      `json:"contentType,omitempty"`
}

// ResponseData is the response half of a captured exchange.
type ResponseData struct {
	Status      int        `json:"status"`
	Headers     Headers    `json:"headers,omitempty"`
	Cookies     Cookies    `json:"cookies,omitempty"`
	Body        any        `json:"body,omitempty"`
	BodyRaw     string     `json:"bodyRaw,omitempty"`
	BodyFormat  BodyFormat `json:"bodyFormat,omitempty"`
	ContentType string     `json:"contentType,omitempty"`
}

// CapturedExchange is one observed request/response pair. Index is the
// 0-based insertion order within its session and never changes once
// assigned; TsMs is a logical ordinal, not wall-clock truth.
type CapturedExchange struct {
	Index    int           `json:"index"`
	TsMs     int64         `json:"timestamp"`
	Request  RequestData   `json:"request"`
	Response *ResponseData `json:"response,omitempty"`
}

// ExchangeSummary is a compact exchange view for session listings.
type ExchangeSummary struct {
	Index       int    `json:"index"`
	TsMs        int64  `json:"ts_ms"`
	Method      string `json:"method"`
	URL         string `json:"url"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	BodyBytes   int    `json:"body_bytes,omitempty"`
}

// Summary flattens an exchange for display.
func (e *CapturedExchange) Summary() ExchangeSummary {
	s := ExchangeSummary{
		Index:  e.Index,
		TsMs:   e.TsMs,
		Method: e.Request.Method,
		URL:    e.Request.URL,
	}
	if e.Response != nil {
		s.Status = e.Response.Status
		s.ContentType = e.Response.ContentType
		s.BodyBytes = len(e.Response.BodyRaw)
	}
	return s
}

// AnalyzedExchangeSet is the sealed output of a capture session: the
// ordered exchanges plus accumulated auth state and analysis results.
// It is immutable once handed to the skill generator.
type AnalyzedExchangeSet struct {
	Exchanges      []CapturedExchange `json:"exchanges"`
	AuthHeaders    map[string]string  `json:"authHeaders,omitempty"`
	CookieJar      Cookies            `json:"cookies,omitempty"`
	LocalStorage   map[string]string  `json:"localStorage,omitempty"`
	SessionStorage map[string]string  `json:"sessionStorage,omitempty"`
	MetaTokens     map[string]string  `json:"metaTokens,omitempty"`
	AuthMethod     string             `json:"authMethod,omitempty"`
	CSRF           *CSRFProvenance    `json:"csrfProvenance,omitempty"`
	EndpointGroups []*EndpointGroup   `json:"endpointGroups,omitempty"`
	BaseURLs       []string           `json:"baseUrls,omitempty"`
	Domains        []string           `json:"domains,omitempty"`
}

// CSRFSource identifies where a CSRF token value was first seen.
type CSRFSource string

const (
	CSRFFromCookie         CSRFSource = "cookie"
	CSRFFromLocalStorage   CSRFSource = "localStorage"
	CSRFFromSessionStorage CSRFSource = "sessionStorage"
	CSRFFromMeta           CSRFSource = "meta"
	CSRFFromResponseBody   CSRFSource = "responseBody"
	CSRFUnknown            CSRFSource = "unknown"
)

// CSRFProvenance records where the CSRF token travels and where its value
// comes from, so replay can re-derive it from fresh state.
type CSRFProvenance struct {
	Source     CSRFSource `json:"source"`
	Key        string     `json:"key,omitempty"`
	HeaderName string     `json:"headerName"`
}
