package tools

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/unbrowse/unbrowse/pkg/types"
)

const (
	defaultSearchK = 10
	maxSearchK     = 50
)

// SearchSkillsInput is the input for search_skills.
type SearchSkillsInput struct {
	Intent string `json:"intent" jsonschema:"required,Free-text description of the capability to look for"`
	Domain string `json:"domain,omitempty" jsonschema:"Restrict the search to one site, e.g. shop.example.com"`
	K      int    `json:"k,omitempty" jsonschema:"Max hits to return (default: 10, max: 50)"`
}

// SearchSkillsOutput is the output for search_skills.
type SearchSkillsOutput struct {
	Hits  []types.SkillSearchHit `json:"hits,omitzero"`
	Hints []string               `json:"hints,omitzero"`
}

// ListSkillsInput is the input for list_skills.
type ListSkillsInput struct {
	Domain string `json:"domain,omitempty" jsonschema:"Only list skills for this site"`
}

// SkillSummary is a list row: enough to pick a skill without loading
// its full manifest.
type SkillSummary struct {
	SkillID       string              `json:"skill_id"`
	Name          string              `json:"name"`
	Domain        string              `json:"domain"`
	ExecutionType types.ExecutionType `json:"execution_type"`
	Endpoints     int                 `json:"endpoints"`
	Consumes      []string            `json:"consumes,omitzero"`
	UpdatedAt     types.Timestamp     `json:"updated_at"`
}

// ListSkillsOutput is the output for list_skills.
type ListSkillsOutput struct {
	Skills []SkillSummary `json:"skills,omitzero"`
	Hints  []string       `json:"hints,omitzero"`
}

// GetSkillInput is the input for get_skill.
type GetSkillInput struct {
	SkillID string `json:"skill_id" jsonschema:"required,Skill to inspect"`
}

// GetSkillOutput is the output for get_skill.
type GetSkillOutput struct {
	Skill   *types.SkillManifest `json:"skill,omitempty"`
	HasAuth bool                 `json:"has_auth"`
	Hints   []string             `json:"hints,omitzero"`
}

// ToolSearchSkills queries the marketplace index for skills matching an
// intent.
func ToolSearchSkills(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input SearchSkillsInput) (*sdkmcp.CallToolResult, SearchSkillsOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input SearchSkillsInput) (*sdkmcp.CallToolResult, SearchSkillsOutput, error) {
		intent := strings.TrimSpace(input.Intent)
		if intent == "" {
			return nil, SearchSkillsOutput{}, ErrInvalidInput("intent is required")
		}
		k := input.K
		if k <= 0 {
			k = defaultSearchK
		}
		if k > maxSearchK {
			k = maxSearchK
		}

		var (
			hits []types.SkillSearchHit
			err  error
		)
		if domain := strings.TrimSpace(input.Domain); domain != "" {
			hits, err = d.Resolver.SearchMarketplaceDomain(ctx, domain, intent, k)
		} else {
			hits, err = d.Resolver.SearchMarketplace(ctx, intent, k)
		}
		if err != nil {
			return nil, SearchSkillsOutput{}, WrapEngineError(err)
		}

		output := SearchSkillsOutput{Hits: hits}
		if len(hits) == 0 {
			output.Hints = append(output.Hints, "No marketplace hits. resolve_intent with a url falls back to live capture and learns the skill from scratch.")
		} else {
			output.Hints = append(output.Hints, "Execute a hit with execute_skill, or resolve_intent to let scoring pick one.")
		}
		return nil, output, nil
	}
}

// ToolListSkills lists locally stored skills.
func ToolListSkills(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input ListSkillsInput) (*sdkmcp.CallToolResult, ListSkillsOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input ListSkillsInput) (*sdkmcp.CallToolResult, ListSkillsOutput, error) {
		manifests, err := d.Store.List()
		if err != nil {
			return nil, ListSkillsOutput{}, WrapEngineError(err)
		}

		domain := strings.TrimSpace(input.Domain)
		output := ListSkillsOutput{Skills: make([]SkillSummary, 0, len(manifests))}
		for _, m := range manifests {
			if domain != "" && m.Domain != domain {
				continue
			}
			output.Skills = append(output.Skills, SkillSummary{
				SkillID:       m.SkillID,
				Name:          m.Name,
				Domain:        m.Domain,
				ExecutionType: m.ExecutionType,
				Endpoints:     len(m.Endpoints),
				Consumes:      m.Consumes,
				UpdatedAt:     m.UpdatedAt,
			})
		}
		if len(output.Skills) == 0 {
			output.Hints = append(output.Hints, "No local skills yet. capture_session records a browser session and distills one, search_skills finds shared ones.")
		}
		return nil, output, nil
	}
}

// ToolGetSkill loads one skill's manifest and reports whether usable
// credentials are stored for it.
func ToolGetSkill(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input GetSkillInput) (*sdkmcp.CallToolResult, GetSkillOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input GetSkillInput) (*sdkmcp.CallToolResult, GetSkillOutput, error) {
		m, err := d.Store.Manifest(input.SkillID)
		if err != nil {
			return nil, GetSkillOutput{}, WrapEngineError(err)
		}
		auth, err := d.Store.Auth(input.SkillID)
		if err != nil {
			return nil, GetSkillOutput{}, WrapEngineError(err)
		}

		output := GetSkillOutput{
			Skill:   m,
			HasAuth: auth.HasUsableAuth(),
			Hints: []string{
				fmt.Sprintf("Resources: %s (manifest), %s (correlation graph).", skillResourceURI(m.SkillID), dagResourceURI(m.SkillID)),
			},
		}
		if !output.HasAuth {
			output.Hints = append(output.Hints, "No usable credentials stored. "+authHint+".")
		}
		return nil, output, nil
	}
}
