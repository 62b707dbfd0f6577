package tools

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/unbrowse/unbrowse/internal/project"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// ApplyProjectionInput is the input for apply_projection.
type ApplyProjectionInput struct {
	Data       any           `json:"data" jsonschema:"required,Value to transform, typically a previous tool result"`
	Projection *types.Recipe `json:"projection" jsonschema:"required,Transforms to run in order: path, extract, limit, filter, require, compact, jq, rename"`
	SkillID    string        `json:"skill_id,omitempty" jsonschema:"Persist the projection as the endpoint's stored recipe"`
	EndpointID string        `json:"endpoint_id,omitempty" jsonschema:"Endpoint to store the recipe on; required with skill_id"`
}

// ApplyProjectionOutput is the output for apply_projection.
type ApplyProjectionOutput struct {
	Result          any      `json:"result,omitempty"`
	ResultCompacted bool     `json:"result_compacted,omitempty"`
	Saved           bool     `json:"saved,omitempty"`
	Hints           []string `json:"hints,omitzero"`
}

// ToolApplyProjection runs a projection over caller-supplied data,
// optionally persisting it as an endpoint's stored recipe so future
// executions return the narrowed shape automatically.
func ToolApplyProjection(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input ApplyProjectionInput) (*sdkmcp.CallToolResult, ApplyProjectionOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input ApplyProjectionInput) (*sdkmcp.CallToolResult, ApplyProjectionOutput, error) {
		if err := project.Validate(input.Projection); err != nil {
			return nil, ApplyProjectionOutput{}, WrapEngineError(err)
		}

		result, _, err := project.Apply(input.Data, input.Projection)
		if err != nil {
			return nil, ApplyProjectionOutput{}, WrapEngineError(err)
		}

		output := ApplyProjectionOutput{}
		output.Result, output.ResultCompacted = d.budgetResult(result)

		if input.SkillID != "" {
			if input.EndpointID == "" {
				return nil, ApplyProjectionOutput{}, ErrInvalidInput("endpoint_id is required to save a recipe")
			}
			m, err := d.Store.Manifest(input.SkillID)
			if err != nil {
				return nil, ApplyProjectionOutput{}, WrapEngineError(err)
			}
			if m.Endpoint(input.EndpointID) == nil {
				return nil, ApplyProjectionOutput{}, ErrNotFound("endpoint", input.EndpointID)
			}
			if err := d.Store.SaveRecipe(input.SkillID, input.EndpointID, input.Projection); err != nil {
				return nil, ApplyProjectionOutput{}, WrapEngineError(err)
			}
			output.Saved = true
			output.Hints = append(output.Hints, "Recipe stored. execute_skill on this endpoint now returns the narrowed shape; pass a projection to override it per call.")
		}
		return nil, output, nil
	}
}
