package types

import (
	"fmt"
	"strings"
	"time"
)

// SchemaVersion is the current skill manifest schema version. Adding
// fields is compatible; renaming one requires a bump.
const SchemaVersion = 2

// Timestamp marshals as an ISO-8601 UTC string with millisecond
// precision, the wire format for every persisted time.
type Timestamp time.Time

// Now returns the current time as a Timestamp.
func Now() Timestamp { return Timestamp(time.Now()) }

// Time converts back to time.Time.
func (t Timestamp) Time() time.Time { return time.Time(t) }

// IsZero reports whether the timestamp is unset.
func (t Timestamp) IsZero() bool { return time.Time(t).IsZero() }

// MarshalJSON renders "2006-01-02T15:04:05.000Z".
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).UTC().Format("2006-01-02T15:04:05.000Z") + `"`), nil
}

// UnmarshalJSON accepts RFC 3339 with or without fractional seconds.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", s, err)
		}
	}
	*t = Timestamp(parsed)
	return nil
}

// ExecutionType says how a skill produces its result.
type ExecutionType string

const (
	ExecutionAPI            ExecutionType = "api"
	ExecutionBrowserCapture ExecutionType = "browser-capture"
	ExecutionDOMExtraction  ExecutionType = "dom-extraction"
)

// Lifecycle is the publication state of a skill.
type Lifecycle string

const (
	LifecycleDraft      Lifecycle = "draft"
	LifecycleActive     Lifecycle = "active"
	LifecycleDeprecated Lifecycle = "deprecated"
)

// VerificationStatus is the probe outcome for one endpoint.
type VerificationStatus string

const (
	VerifyUnverified VerificationStatus = "unverified"
	VerifyVerified   VerificationStatus = "verified"
	VerifyFailing    VerificationStatus = "failing"
)

// DOMExtraction describes pulling structured data straight out of the
// rendered page when no API endpoint serves it.
type DOMExtraction struct {
	Selector string            `json:"selector"`
	Fields   map[string]string `json:"fields,omitempty"`
	Limit    int               `json:"limit,omitempty"`
}

// SkillEndpoint is one callable endpoint of a skill.
type SkillEndpoint struct {
	EndpointID         string             `json:"endpoint_id"`
	Method             string             `json:"method"`
	URLTemplate        string             `json:"url_template"`
	Description        string             `json:"description,omitempty"`
	Category           EndpointCategory   `json:"category,omitempty"`
	PathParams         []ParamSpec        `json:"path_params,omitempty"`
	QueryParams        []ParamSpec        `json:"query_params,omitempty"`
	RequestBodySchema  map[string]string  `json:"request_body_schema,omitempty"`
	ResponseSchema     map[string]string  `json:"response_schema,omitempty"`
	Produces           []string           `json:"produces,omitempty"`
	Consumes           []string           `json:"consumes,omitempty"`
	ReliabilityScore   float64            `json:"reliability_score"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	DOMExtraction      *DOMExtraction     `json:"dom_extraction,omitempty"`
	RefreshConfig      *RefreshConfig     `json:"refresh_config,omitempty"`
	FromSpec           bool               `json:"from_spec,omitempty"`
	ExampleIndex       int                `json:"example_index,omitempty"`
}

// Templated reports whether the URL template still carries {param}
// placeholders, i.e. cannot be probed without witness values.
func (e *SkillEndpoint) Templated() bool {
	return strings.Contains(e.URLTemplate, "{")
}

// DiscoveryCost records what the originating capture cost, the baseline
// for token-savings accounting.
type DiscoveryCost struct {
	CaptureMs     int64     `json:"capture_ms"`
	CaptureTokens int64     `json:"capture_tokens"`
	ResponseBytes int64     `json:"response_bytes"`
	CapturedAt    Timestamp `json:"captured_at"`
}

// SkillManifest is the persisted, publishable description of a skill.
type SkillManifest struct {
	SkillID         string          `json:"skill_id"`
	Version         string          `json:"version"`
	SchemaVersion   int             `json:"schema_version"`
	Name            string          `json:"name"`
	IntentSignature string          `json:"intent_signature"`
	Domain          string          `json:"domain"`
	Description     string          `json:"description,omitempty"`
	OwnerType       string          `json:"owner_type,omitempty"`
	ExecutionType   ExecutionType   `json:"execution_type"`
	Endpoints       []SkillEndpoint `json:"endpoints"`
	Lifecycle       Lifecycle       `json:"lifecycle"`
	CreatedAt       Timestamp       `json:"created_at"`
	UpdatedAt       Timestamp       `json:"updated_at"`
	DiscoveryCost   *DiscoveryCost  `json:"discovery_cost,omitempty"`
}

// Endpoint returns the endpoint with the given id, or nil.
func (m *SkillManifest) Endpoint(id string) *SkillEndpoint {
	for i := range m.Endpoints {
		if m.Endpoints[i].EndpointID == id {
			return &m.Endpoints[i]
		}
	}
	return nil
}

// AvgReliability is the mean endpoint reliability, 0.5 when empty.
func (m *SkillManifest) AvgReliability() float64 {
	if len(m.Endpoints) == 0 {
		return 0.5
	}
	var sum float64
	for _, e := range m.Endpoints {
		sum += e.ReliabilityScore
	}
	return sum / float64(len(m.Endpoints))
}

// SkillSearchHit is one marketplace or local-index search result.
type SkillSearchHit struct {
	SkillID  string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
