package replay

import (
	"context"
	"sort"
	"strings"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/pkg/jsonschema"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// Transport sends one prepared request and reports what came back. The
// HTTP transport lives with the service wiring; tests substitute fakes.
type Transport func(ctx context.Context, req *types.PreparedRequest) (*types.StepResponseRuntime, error)

// ExecuteChain replays the target exchange and everything it transitively
// depends on, in ascending index order. Non-2xx steps and transport
// errors are recorded and execution continues; the orchestrator owns
// retry policy.
func ExecuteChain(ctx context.Context, exchanges []*types.CapturedExchange, graph *types.CorrelationGraphV1, targetIndex int, transport Transport, opts *PrepareOptions) (*types.ChainResult, error) {
	if transport == nil {
		return nil, fault.New(fault.CodeInternal, "replay transport not configured")
	}
	if findExchange(exchanges, targetIndex) == nil {
		return nil, fault.Newf(fault.CodeNotFound, "exchange %d not in capture window", targetIndex)
	}

	needed := chainOrder(graph, targetIndex)
	runtime := make(map[int]*types.StepResult, len(needed))
	result := &types.ChainResult{}

	for _, idx := range needed {
		if err := ctx.Err(); err != nil {
			return result, fault.Wrap(fault.CodeInternal, "replay cancelled", err)
		}

		stepOpts := opts
		if opts != nil && opts.BodyOverride != nil && idx != targetIndex {
			// The body override targets the final step only.
			stepOpts = &PrepareOptions{SessionHeaders: opts.SessionHeaders}
		}

		step := &types.StepResult{Index: idx}
		step.Prepared = PrepareRequestForStep(exchanges, graph, idx, runtime, stepOpts)
		if step.Prepared == nil {
			step.Err = "exchange not in capture window"
			result.Steps = append(result.Steps, *step)
			continue
		}

		resp, err := transport(ctx, step.Prepared)
		if err != nil {
			step.Err = err.Error()
			result.Steps = append(result.Steps, *step)
			runtime[idx] = step
			continue
		}
		if resp.BodyJSON == nil && looksLikeJSON(resp.ContentType, resp.BodyText) {
			resp.BodyJSON = jsonschema.SafeParse(resp.BodyText)
		}
		step.Response = resp
		runtime[idx] = step
		result.Steps = append(result.Steps, *step)
	}

	if final := runtime[targetIndex]; final != nil {
		result.Final = final.Response
	}
	return result, nil
}

// chainOrder returns {target} plus its transitive sources, ascending.
// Links always point forward, so index order is a valid topological sort.
func chainOrder(graph *types.CorrelationGraphV1, target int) []int {
	needed := map[int]bool{target: true}
	if graph != nil {
		for idx := range graph.TransitiveSources(target) {
			needed[idx] = true
		}
	}
	order := make([]int, 0, len(needed))
	for idx := range needed {
		order = append(order, idx)
	}
	sort.Ints(order)
	return order
}

func looksLikeJSON(contentType, body string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "application/json") || strings.Contains(ct, "+json") {
		return true
	}
	trimmed := strings.TrimSpace(body)
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}
