package types

// PreparedRequest is a replayable request with correlated values already
// injected. Headers keep captured casing.
type PreparedRequest struct {
	Method   string  `json:"method"`
	URL      string  `json:"url"`
	Headers  Headers `json:"headers"`
	BodyText string  `json:"bodyText,omitempty"`
}

// StepResponseRuntime is the live response observed for one replayed
// step, keyed by step index in the runtime map.
type StepResponseRuntime struct {
	Status      int     `json:"status"`
	Headers     Headers `json:"headers,omitempty"`
	BodyText    string  `json:"bodyText,omitempty"`
	ContentType string  `json:"contentType,omitempty"`
	BodyJSON    any     `json:"bodyJson,omitempty"`
}

// OK reports whether the step landed in the 2xx range.
func (r *StepResponseRuntime) OK() bool {
	return r.Status >= 200 && r.Status <= 299
}

// StepResult pairs a replayed step with what was sent and received.
type StepResult struct {
	Index    int                  `json:"index"`
	Prepared *PreparedRequest     `json:"prepared,omitempty"`
	Response *StepResponseRuntime `json:"response,omitempty"`
	Err      string               `json:"error,omitempty"`
}

// ChainResult is the outcome of executing a capture chain: every step in
// ascending index order plus the target step's response.
type ChainResult struct {
	Steps []StepResult         `json:"steps"`
	Final *StepResponseRuntime `json:"final,omitempty"`
}
