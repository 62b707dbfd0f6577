package tools

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/internal/resolver"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// authHint names the recovery path for expired or missing credentials.
const authHint = "run capture_session with the site's URL to record a fresh login, then retry"

// ResolveIntentInput is the input for resolve_intent.
type ResolveIntentInput struct {
	Intent        string         `json:"intent" jsonschema:"required,What to do in plain language, e.g. 'list my open invoices'"`
	URL           string         `json:"url,omitempty" jsonschema:"Page the agent is on; scopes resolution to its domain and seeds live capture"`
	Params        map[string]any `json:"params,omitempty" jsonschema:"Values for path placeholders, query parameters and body fields"`
	EndpointID    string         `json:"endpoint_id,omitempty" jsonschema:"Endpoint to execute once a skill matches (default: best ranked)"`
	DryRun        bool           `json:"dry_run,omitempty" jsonschema:"Prepare the request without sending it"`
	ForceCapture  bool           `json:"force_capture,omitempty" jsonschema:"Skip cache, local skills and marketplace; record a fresh browser session"`
	ConfirmUnsafe bool           `json:"confirm_unsafe,omitempty" jsonschema:"Allow endpoints that write (POST, PUT, PATCH, DELETE) to fire"`
	Projection    *types.Recipe  `json:"projection,omitempty" jsonschema:"One-off transform applied to the result: path, extract, limit, filter, jq, rename"`
}

// ExecuteSkillInput is the input for execute_skill.
type ExecuteSkillInput struct {
	SkillID       string         `json:"skill_id" jsonschema:"required,Skill to execute, from resolve_intent, search_skills or list_skills"`
	EndpointID    string         `json:"endpoint_id,omitempty" jsonschema:"Endpoint within the skill (default: best ranked executable)"`
	Params        map[string]any `json:"params,omitempty" jsonschema:"Values for path placeholders, query parameters and body fields"`
	Body          any            `json:"body,omitempty" jsonschema:"Raw request body; replaces the schema-matched assembly from params"`
	DryRun        bool           `json:"dry_run,omitempty" jsonschema:"Prepare the request without sending it"`
	ConfirmUnsafe bool           `json:"confirm_unsafe,omitempty" jsonschema:"Allow endpoints that write (POST, PUT, PATCH, DELETE) to fire"`
	Projection    *types.Recipe  `json:"projection,omitempty" jsonschema:"One-off transform applied to the result: path, extract, limit, filter, jq, rename"`
}

// ResolveOutput is the shared output of resolve_intent and
// execute_skill. Result is absent when endpoint choice is deferred to
// the caller; AvailableEndpoints then lists the candidates. An
// auth_required failure arrives as AuthRecommended with no result.
type ResolveOutput struct {
	Result             any                        `json:"result,omitempty"`
	ResultCompacted    bool                       `json:"result_compacted,omitempty"`
	Skill              *resolver.SkillRef         `json:"skill,omitempty"`
	Source             types.ResolveSource        `json:"source,omitempty"`
	Trace              map[string]any             `json:"trace,omitempty"`
	Timing             *types.OrchestrationTiming `json:"timing,omitempty"`
	AvailableEndpoints []resolver.EndpointOption  `json:"available_endpoints,omitzero"`
	Message            string                     `json:"message,omitempty"`
	AuthRecommended    bool                       `json:"auth_recommended,omitempty"`
	AuthHint           string                     `json:"auth_hint,omitempty"`
	Hints              []string                   `json:"hints,omitzero"`
}

// ToolResolveIntent resolves a natural-language intent to an executed
// API call, walking route cache, local skills, marketplace and live
// capture in that order.
func ToolResolveIntent(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input ResolveIntentInput) (*sdkmcp.CallToolResult, ResolveOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input ResolveIntentInput) (*sdkmcp.CallToolResult, ResolveOutput, error) {
		rreq := resolver.Request{
			Intent:        input.Intent,
			Params:        input.Params,
			EndpointID:    input.EndpointID,
			DryRun:        input.DryRun,
			ForceCapture:  input.ForceCapture,
			ConfirmUnsafe: input.ConfirmUnsafe,
			Projection:    input.Projection,
		}
		if input.URL != "" {
			rreq.Context = &resolver.IntentContext{URL: input.URL}
		}

		resp, err := d.Resolver.Resolve(ctx, rreq)
		if err != nil {
			if out, ok := authRecommendation(err); ok {
				return nil, out, nil
			}
			return nil, ResolveOutput{}, WrapEngineError(err)
		}
		return nil, d.resolveOutput(resp), nil
	}
}

// ToolExecuteSkill executes a known skill directly, bypassing intent
// matching.
func ToolExecuteSkill(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input ExecuteSkillInput) (*sdkmcp.CallToolResult, ResolveOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input ExecuteSkillInput) (*sdkmcp.CallToolResult, ResolveOutput, error) {
		opts := resolver.ExecuteOptions{
			EndpointID:    input.EndpointID,
			Params:        input.Params,
			Body:          input.Body,
			DryRun:        input.DryRun,
			ConfirmUnsafe: input.ConfirmUnsafe,
		}

		resp, err := d.Resolver.ExecuteSkill(ctx, input.SkillID, opts, input.Projection)
		if err != nil {
			if out, ok := authRecommendation(err); ok {
				return nil, out, nil
			}
			return nil, ResolveOutput{}, WrapEngineError(err)
		}
		return nil, d.resolveOutput(resp), nil
	}
}

// authRecommendation maps an auth_required failure to a successful
// output carrying the recommendation instead of a result. Other
// failures pass through untouched.
func authRecommendation(err error) (ResolveOutput, bool) {
	if fault.CodeOf(err) != fault.CodeAuthRequired {
		return ResolveOutput{}, false
	}
	return ResolveOutput{
		Message:         fault.MessageOf(err),
		AuthRecommended: true,
		AuthHint:        authHint,
		Hints: []string{
			"Stored credentials are missing or expired. Capture a fresh login with capture_session, then retry this call.",
		},
	}, true
}

// resolveOutput converts an engine response to tool output, budgeting
// the result and attaching follow-up hints.
func (d *Deps) resolveOutput(resp *resolver.Response) ResolveOutput {
	out := ResolveOutput{
		Skill:              resp.Skill,
		Source:             resp.Source,
		Trace:              resp.Trace,
		Timing:             resp.Timing,
		AvailableEndpoints: resp.AvailableEndpoints,
		Message:            resp.Message,
	}
	out.Result, out.ResultCompacted = d.budgetResult(resp.Result)
	if out.ResultCompacted {
		out.Hints = append(out.Hints, "Result was compacted to fit the tool budget. Pass a projection (path, extract, limit, jq) to pull just the fields you need.")
	}
	if len(resp.AvailableEndpoints) > 0 && resp.Skill != nil {
		out.Hints = append(out.Hints, "Endpoint choice was deferred. Call execute_skill with skill_id "+resp.Skill.SkillID+" and one of available_endpoints.")
	}
	if resp.Skill != nil {
		out.Hints = append(out.Hints, "Full manifest: "+skillResourceURI(resp.Skill.SkillID))
	}
	return out
}
