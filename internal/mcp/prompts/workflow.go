package prompts

import (
	"context"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// HandleSkillWorkflow serves the tool usage guide. Capture rows are
// included only when a browser gateway is configured.
func HandleSkillWorkflow(cfg *Config) func(ctx context.Context, req *sdkmcp.GetPromptRequest) (*sdkmcp.GetPromptResult, error) {
	return func(ctx context.Context, req *sdkmcp.GetPromptRequest) (*sdkmcp.GetPromptResult, error) {
		var sb strings.Builder

		sb.WriteString("# Skill Tools: Efficient Usage Guide\n\n")

		// --- Tool selection ---
		sb.WriteString("## Which Tool When\n\n")
		sb.WriteString("| Goal | Tool | Example |\n")
		sb.WriteString("|------|------|--------|\n")
		sb.WriteString("| Do something, you only have a goal | `resolve_intent` | `intent: \"list my open invoices\", url: <current page>` |\n")
		sb.WriteString("| Call a skill you already know | `execute_skill` | `skill_id: \"sk_...\", params: {orderId: \"123\"}` |\n")
		sb.WriteString("| Find shared skills for a site | `search_skills` | `intent: \"track shipment\", domain: \"shop.example.com\"` |\n")
		sb.WriteString("| See what is stored locally | `list_skills` | `domain: \"shop.example.com\"` (optional) |\n")
		sb.WriteString("| Understand a skill's endpoints | `get_skill` | `skill_id: \"sk_...\"` |\n")
		if cfg.CaptureAvailable {
			sb.WriteString("| Learn a new site or refresh a login | `capture_session` | `url: \"https://app.example.com\", intent: \"...\"` |\n")
		}
		sb.WriteString("| Reshape a result you already have | `apply_projection` | `data: <result>, projection: {path: \"items[]\", limit: 5}` |\n")

		sb.WriteString("\n**Key rules**:\n")
		sb.WriteString("- `resolve_intent` walks cache, local skills, marketplace, and capture in cost order; pass `url` so it can scope to the site and fall through to capture when nothing matches\n")
		sb.WriteString("- Writes never fire by accident: non-GET endpoints return a precondition error until you set `confirm_unsafe: true`\n")
		sb.WriteString("- `dry_run: true` shows the prepared request (method, URL, headers with secrets masked) without sending it\n")

		// --- Result budgeting ---
		sb.WriteString("\n## Results Are Budgeted\n")
		sb.WriteString("- Large results come back with `result_compacted: true`: arrays trimmed, long strings truncated\n")
		sb.WriteString("- Don't re-execute to see more. Narrow instead: pass `projection: {path: \"items[]\", extract: \"id,name,price\", limit: 10}`\n")
		sb.WriteString("- A projection that works is worth keeping: `apply_projection` with `skill_id` + `endpoint_id` stores it on the endpoint so every later call returns the narrow shape\n")

		// --- Deferred endpoint choice ---
		sb.WriteString("\n## Deferred Endpoint Choice\n")
		sb.WriteString("When a capture learns several plausible endpoints, `resolve_intent` returns no result and fills `available_endpoints`. Pick one and call `execute_skill` with its `endpoint_id`; scores are ranked, higher is better.\n")

		// --- Auth recovery ---
		sb.WriteString("\n## Auth Recovery\n")
		sb.WriteString("An expired or missing login is not an error: the call returns `auth_recommended: true` with a message. ")
		if cfg.CaptureAvailable {
			sb.WriteString("Run `capture_session` with the site's URL, let the login complete, then retry the original call. Harvested cookies and tokens are stored with the skill, and refreshable tokens renew in the background afterwards.\n")
		} else {
			sb.WriteString("No browser gateway is configured here, so credentials must be refreshed out of band (CLI `login <url>` on the machine that runs the gateway).\n")
		}

		// --- Resources ---
		sb.WriteString("\n## Resources\n")
		sb.WriteString("- `unbrowse://skill/{id}` - full manifest, same document as `get_skill`\n")
		sb.WriteString("- `unbrowse://skill/{id}/dag` - correlation graph: which request produces each token and which consume it; read it when an endpoint replays as a chain\n")

		return &sdkmcp.GetPromptResult{
			Description: "Essential guide for efficient skill tool usage",
			Messages: []*sdkmcp.PromptMessage{
				{
					Role:    "user",
					Content: &sdkmcp.TextContent{Text: sb.String()},
				},
			},
		}, nil
	}
}
