package prompts

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// HandleLearnSite implements the capture-to-recipe workflow.
func HandleLearnSite(cfg *Config) func(ctx context.Context, req *sdkmcp.GetPromptRequest) (*sdkmcp.GetPromptResult, error) {
	return func(ctx context.Context, req *sdkmcp.GetPromptRequest) (*sdkmcp.GetPromptResult, error) {
		args := req.Params.Arguments

		url := ""
		goal := "extract the page's primary data"
		if args != nil {
			if v, ok := args["url"]; ok {
				url = v
			}
			if v, ok := args["goal"]; ok && v != "" {
				goal = v
			}
		}

		var sb strings.Builder

		sb.WriteString("# Learn a Site End to End\n\n")
		sb.WriteString(fmt.Sprintf("**Target**: %s\n", url))
		sb.WriteString(fmt.Sprintf("**Goal**: %s\n\n", goal))

		if !cfg.CaptureAvailable {
			sb.WriteString("**Note**: no browser gateway is configured, so `capture_session` will report itself unavailable. ")
			sb.WriteString("Check `search_skills` and `list_skills` for an existing skill instead, or run the capture on the machine with the gateway.\n\n")
		}

		sb.WriteString("## 1. Check for existing skills first\n")
		sb.WriteString(fmt.Sprintf("Capture is the most expensive path, so spend a cheap call first: `search_skills(intent: %q, domain: <host of the url>)` and `list_skills(domain: ...)`. ", goal))
		sb.WriteString("A hit with decent reliability skips straight to step 4.\n\n")

		sb.WriteString("## 2. Capture a session\n")
		sb.WriteString(fmt.Sprintf("`capture_session(url: %q, intent: %q)`. ", url, goal))
		sb.WriteString("The browser opens the page and records its API traffic. If the data only appears after interaction, script it: ")
		sb.WriteString("`actions: [{kind: \"click\", ref: \"...\"}, {kind: \"fill\", ref: \"...\", text: \"...\"}]`. ")
		sb.WriteString("A login wall is fine - complete the login during the session; credentials are harvested and stored with the skill.\n\n")

		sb.WriteString("## 3. Inspect what was learned\n")
		sb.WriteString("`get_skill(skill_id: <from the capture output>)`. Look at:\n")
		sb.WriteString("- `endpoints[].url_template` and `params` - what the API takes\n")
		sb.WriteString("- `endpoints[].response_schema` - what it returns\n")
		sb.WriteString("- `has_auth` - whether usable credentials were stored\n")
		sb.WriteString("- `unbrowse://skill/{id}/dag` if an endpoint depends on tokens from earlier calls\n\n")

		sb.WriteString("## 4. Execute\n")
		sb.WriteString("`execute_skill(skill_id, endpoint_id, params: {...})`. Start with `dry_run: true` when unsure what will be sent. ")
		sb.WriteString("Writes need `confirm_unsafe: true`.\n\n")

		sb.WriteString("## 5. Store the shape you need\n")
		sb.WriteString("When the raw result is bigger than the answer, build a projection and keep it:\n")
		sb.WriteString("`apply_projection(data: <result>, projection: {path: \"items[]\", extract: \"id,name\", limit: 10}, skill_id, endpoint_id)`.\n")
		sb.WriteString("Every later execution of that endpoint returns the narrow shape, here and for anyone the skill is shared with.\n")

		return &sdkmcp.GetPromptResult{
			Description: "Workflow: capture, inspect, execute, and store a recipe",
			Messages: []*sdkmcp.PromptMessage{
				{
					Role:    "user",
					Content: &sdkmcp.TextContent{Text: sb.String()},
				},
			},
		}, nil
	}
}
