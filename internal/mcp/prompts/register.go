package prompts

import (
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Register registers all prompts with the MCP server.
func Register(srv *sdkmcp.Server, cfg *Config) {
	// Prompt 1: Efficient skill tool usage
	srv.AddPrompt(&sdkmcp.Prompt{
		Name:        "skill_workflow",
		Description: "RECOMMENDED: Guide for turning intents into API calls with the skill tools. Start here - covers tool selection, result budgeting, write safety, and auth recovery without the context cost of trial and error.",
	}, HandleSkillWorkflow(cfg))

	// Prompt 2: Learn a site end to end
	srv.AddPrompt(&sdkmcp.Prompt{
		Name:        "learn_site",
		Description: "Walk a site from first visit to reusable skill: capture a session, inspect what was learned, execute it, and store a recipe for the shape you need.",
		Arguments: []*sdkmcp.PromptArgument{
			{
				Name:        "url",
				Description: "Page to learn, e.g. https://app.example.com/dashboard",
				Required:    true,
			},
			{
				Name:        "goal",
				Description: "What the skill should accomplish (e.g., 'list my open invoices')",
				Required:    false,
			},
		},
	}, HandleLearnSite(cfg))
}
