package tools

import (
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Register registers all tools with the MCP server.
func Register(srv *sdkmcp.Server, d *Deps) {
	// Tool 1: resolve_intent
	AddTool(srv, &sdkmcp.Tool{
		Name:        "resolve_intent",
		Description: "Turn a natural-language intent into an executed API call. Walks route cache, local skills, marketplace, and live browser capture in cost order, then returns {result, skill, source, trace, timing}. Pass url to scope to the current site. When endpoint choice is ambiguous the result is deferred and available_endpoints lists candidates for execute_skill. Writes require confirm_unsafe=true. An expired login comes back as auth_recommended rather than an error.",
	}, ToolResolveIntent(d))

	// Tool 2: execute_skill
	AddTool(srv, &sdkmcp.Tool{
		Name:        "execute_skill",
		Description: "Execute a known skill directly by skill_id, skipping intent matching. Picks the best-ranked executable endpoint unless endpoint_id is given; params fill path placeholders, query parameters, and body fields. Set dry_run=true to preview the request, confirm_unsafe=true to allow writes, and projection to narrow the result. Use resolve_intent when you only have a goal; use this when you already know the skill.",
	}, ToolExecuteSkill(d))

	// Tool 3: search_skills
	AddTool(srv, &sdkmcp.Tool{
		Name:        "search_skills",
		Description: "Search the marketplace index for skills matching an intent. Returns scored hits with metadata; pass domain to restrict to one site. Hits are candidates for execute_skill or for resolve_intent's candidate race. Use list_skills for skills already stored locally.",
	}, ToolSearchSkills(d))

	// Tool 4: list_skills
	AddTool(srv, &sdkmcp.Tool{
		Name:        "list_skills",
		Description: "List locally stored skills with {skill_id, name, domain, execution_type, endpoints, updated_at}. Pass domain to filter. Use get_skill for a full manifest.",
	}, ToolListSkills(d))

	// Tool 5: get_skill
	AddTool(srv, &sdkmcp.Tool{
		Name:        "get_skill",
		Description: "Load one skill's full manifest: endpoints with URL templates, methods, parameter and body schemas, reliability scores, plus has_auth reporting whether usable credentials are stored. The unbrowse://skill/{id} resource serves the same manifest; unbrowse://skill/{id}/dag serves the correlation graph.",
	}, ToolGetSkill(d))

	// Tool 6: capture_session
	AddTool(srv, &sdkmcp.Tool{
		Name:        "capture_session",
		Description: "Record a live browser session against a URL and distill the captured API traffic into a skill. Optional actions script the page (click, fill, press, select); intent names the learned skill. Harvested credentials are stored with it, so this is also the recovery path when a skill reports auth_recommended. One session runs per domain at a time.",
	}, ToolCaptureSession(d))

	// Tool 7: apply_projection
	AddTool(srv, &sdkmcp.Tool{
		Name:        "apply_projection",
		Description: "Transform a previous result with an ordered recipe: path, extract, limit, filter, require, compact, jq, rename. Pass skill_id and endpoint_id to persist the recipe on an endpoint so future executions return the narrowed shape automatically. Use this to trim large results instead of re-executing with a projection.",
	}, ToolApplyProjection(d))
}
