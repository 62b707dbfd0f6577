package tools

import (
	"context"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/unbrowse/unbrowse/internal/browser"
	"github.com/unbrowse/unbrowse/internal/capture"
)

// CaptureSessionInput is the input for capture_session.
type CaptureSessionInput struct {
	URL         string           `json:"url" jsonschema:"required,Page to open; its domain scopes the session and one session runs per domain at a time"`
	Intent      string           `json:"intent,omitempty" jsonschema:"What the session is trying to accomplish; names and tags the learned skill"`
	Actions     []browser.Action `json:"actions,omitempty" jsonschema:"Scripted page actions after load. kind: click, fill, press or select; ref targets the element; text, key and values carry the payload"`
	SkipPersist bool             `json:"skip_persist,omitempty" jsonschema:"Analyze the traffic without saving the learned skill"`
}

// CaptureSessionOutput is the output for capture_session.
type CaptureSessionOutput struct {
	SessionID  string        `json:"session_id"`
	Skill      *SkillSummary `json:"skill,omitempty"`
	Exchanges  int           `json:"exchanges"`
	Dropped    int           `json:"dropped,omitempty"`
	AuthMethod string        `json:"auth_method,omitempty"`
	Hints      []string      `json:"hints,omitzero"`
}

// ToolCaptureSession records a live browser session against a page,
// distills the captured traffic into a skill, and stores harvested
// credentials alongside it.
func ToolCaptureSession(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input CaptureSessionInput) (*sdkmcp.CallToolResult, CaptureSessionOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input CaptureSessionInput) (*sdkmcp.CallToolResult, CaptureSessionOutput, error) {
		if d.Captures == nil {
			return nil, CaptureSessionOutput{}, &CodedError{
				Code:    ErrCodePrecondition,
				Message: "live capture is not configured: no browser gateway is running",
			}
		}
		if strings.TrimSpace(input.URL) == "" {
			return nil, CaptureSessionOutput{}, ErrInvalidInput("url is required")
		}

		outcome, err := d.Captures.Run(ctx, capture.Request{
			URL:         input.URL,
			Intent:      input.Intent,
			Actions:     input.Actions,
			SkipPersist: input.SkipPersist,
		})
		if err != nil {
			return nil, CaptureSessionOutput{}, WrapEngineError(err)
		}

		output := CaptureSessionOutput{
			SessionID: outcome.SessionID,
			Dropped:   outcome.Dropped,
		}
		if outcome.Set != nil {
			output.Exchanges = len(outcome.Set.Exchanges)
			output.AuthMethod = outcome.Set.AuthMethod
		}
		if m := outcome.Skill; m != nil {
			output.Skill = &SkillSummary{
				SkillID:       m.SkillID,
				Name:          m.Name,
				Domain:        m.Domain,
				ExecutionType: m.ExecutionType,
				Endpoints:     len(m.Endpoints),
				Consumes:      m.Consumes,
				UpdatedAt:     m.UpdatedAt,
			}
			if input.SkipPersist {
				output.Hints = append(output.Hints, "skip_persist was set: the skill was analyzed but not saved.")
			} else {
				output.Hints = append(output.Hints,
					"Execute the learned skill with execute_skill, skill_id "+m.SkillID+".",
					"Full manifest: "+skillResourceURI(m.SkillID))
			}
		}
		if output.Exchanges == 0 {
			output.Hints = append(output.Hints, "No API traffic was captured. Pass actions that trigger the data you want, or interact with the page while the session runs.")
		}
		return nil, output, nil
	}
}
