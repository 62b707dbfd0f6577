package resolver

import (
	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// Feedback outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// FeedbackRequest folds an agent's 1-5 rating of an execution back into
// the skill. EndpointID empty rates the whole skill.
type FeedbackRequest struct {
	SkillID     string `json:"skill_id"`
	EndpointID  string `json:"endpoint_id,omitempty"`
	Rating      int    `json:"rating"`
	Outcome     string `json:"outcome,omitempty"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

// Feedback blends the rating into endpoint reliability as an
// exponential moving average (0.7 old, 0.3 signal) and moves
// verification status on strong signals: a failure rated at most 2
// marks the endpoint failing; a success rated at least 4 clears a
// failing mark back to unverified.
func (r *Resolver) Feedback(fb FeedbackRequest) error {
	if fb.SkillID == "" {
		return fault.New(fault.CodeInput, "skill_id is required")
	}
	if fb.Rating < 1 || fb.Rating > 5 {
		return fault.New(fault.CodeInput, "rating must be between 1 and 5")
	}
	if fb.Outcome != "" && fb.Outcome != OutcomeSuccess && fb.Outcome != OutcomeFailure {
		return fault.Newf(fault.CodeInput, "outcome must be %q or %q", OutcomeSuccess, OutcomeFailure)
	}
	m, err := r.store.Manifest(fb.SkillID)
	if err != nil {
		return err
	}

	var targets []*types.SkillEndpoint
	if fb.EndpointID != "" {
		ep := m.Endpoint(fb.EndpointID)
		if ep == nil {
			return fault.NotFound("endpoint", fb.EndpointID)
		}
		targets = append(targets, ep)
	} else {
		for i := range m.Endpoints {
			targets = append(targets, &m.Endpoints[i])
		}
	}

	signal := float64(fb.Rating-1) / 4
	for _, ep := range targets {
		ep.ReliabilityScore = clamp01(0.7*ep.ReliabilityScore + 0.3*signal)
		switch {
		case fb.Outcome == OutcomeFailure && fb.Rating <= 2:
			ep.VerificationStatus = types.VerifyFailing
		case fb.Outcome == OutcomeSuccess && fb.Rating >= 4 && ep.VerificationStatus == types.VerifyFailing:
			ep.VerificationStatus = types.VerifyUnverified
		}
	}
	m.UpdatedAt = types.Timestamp(r.now())

	if err := r.store.SaveManifest(m); err != nil {
		return err
	}
	r.index.Upsert(m)
	if fb.Diagnostics != "" {
		r.logger.Info("feedback diagnostics", "skill", fb.SkillID, "endpoint", fb.EndpointID,
			"rating", fb.Rating, "diagnostics", fb.Diagnostics)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
