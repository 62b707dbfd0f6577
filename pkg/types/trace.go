package types

// TraceVersion is bumped when ExecutionTrace fields change meaning.
const TraceVersion = 1

// ExecutionTrace records one skill execution for feedback and telemetry.
type ExecutionTrace struct {
	TraceID       string    `json:"trace_id"`
	TraceVersion  int       `json:"trace_version"`
	SkillID       string    `json:"skill_id"`
	EndpointID    string    `json:"endpoint_id,omitempty"`
	StartedAt     Timestamp `json:"started_at"`
	CompletedAt   Timestamp `json:"completed_at"`
	Success       bool      `json:"success"`
	StatusCode    int       `json:"status_code,omitempty"`
	TokensUsed    int64     `json:"tokens_used,omitempty"`
	TokensSaved   int64     `json:"tokens_saved,omitempty"`
	TokensSavedPc float64   `json:"tokens_saved_pct,omitempty"`
}

// Slim returns the trimmed trace attached to projected results.
func (t *ExecutionTrace) Slim() map[string]any {
	return map[string]any{
		"trace_id":      t.TraceID,
		"skill_id":      t.SkillID,
		"endpoint_id":   t.EndpointID,
		"success":       t.Success,
		"status_code":   t.StatusCode,
		"trace_version": t.TraceVersion,
	}
}

// ResolveSource says which path of the orchestrator produced a result.
type ResolveSource string

const (
	SourceRouteCache  ResolveSource = "route-cache"
	SourceLocal       ResolveSource = "local"
	SourceMarketplace ResolveSource = "marketplace"
	SourceLiveCapture ResolveSource = "live-capture"
	SourceDOMFallback ResolveSource = "dom-fallback"
)

// OrchestrationTiming is the per-resolution metrics record emitted to
// telemetry and returned to callers.
type OrchestrationTiming struct {
	SearchMs        int64         `json:"search_ms"`
	GetSkillMs      int64         `json:"get_skill_ms"`
	ExecuteMs       int64         `json:"execute_ms"`
	TotalMs         int64         `json:"total_ms"`
	Source          ResolveSource `json:"source"`
	CacheHit        bool          `json:"cache_hit"`
	CandidatesFound int           `json:"candidates_found"`
	CandidatesTried int           `json:"candidates_tried"`
	TokensSaved     int64         `json:"tokens_saved"`
	ResponseBytes   int64         `json:"response_bytes"`
	TokensSavedPct  float64       `json:"tokens_saved_pct"`
	TimeSavedPct    float64       `json:"time_saved_pct"`
	SkillID         string        `json:"skill_id,omitempty"`
}
