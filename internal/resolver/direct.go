package resolver

import (
	"context"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/internal/marketplace"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// ExecuteSkill runs one endpoint of a saved skill directly, bypassing
// intent resolution. The recipe stored for the endpoint still applies
// unless an explicit projection overrides it.
func (r *Resolver) ExecuteSkill(ctx context.Context, skillID string, opts ExecuteOptions, projection *types.Recipe) (*Response, error) {
	m := r.localManifest(skillID)
	if m == nil {
		return nil, fault.NotFound("skill", skillID)
	}
	started := r.now()
	timing := &types.OrchestrationTiming{}

	exec, err := r.executeManifest(ctx, m, opts)
	if err != nil {
		if exec != nil && exec.Trace != nil && !opts.DryRun {
			r.market.PostPerf(&marketplace.PerfReport{
				SkillID:    m.SkillID,
				EndpointID: exec.Trace.EndpointID,
				Success:    false,
				LatencyMs:  r.sinceMs(started),
				Source:     string(types.SourceLocal),
			})
		}
		return nil, err
	}
	req := Request{Projection: projection, DryRun: opts.DryRun}
	return r.respond(m, exec, types.SourceLocal, req, started, timing)
}

// SearchMarketplace runs a global intent search against the index.
func (r *Resolver) SearchMarketplace(ctx context.Context, intent string, k int) ([]types.SkillSearchHit, error) {
	return r.market.Search(ctx, intent, k)
}

// SearchMarketplaceDomain runs a domain-scoped intent search.
func (r *Resolver) SearchMarketplaceDomain(ctx context.Context, domain, intent string, k int) ([]types.SkillSearchHit, error) {
	return r.market.SearchDomain(ctx, domain, intent, k)
}
