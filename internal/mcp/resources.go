package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/unbrowse/unbrowse/internal/mcp/tools"
)

// Resource URI scheme: unbrowse://
// Supported URIs:
//   unbrowse://skill/{skill_id}
//   unbrowse://skill/{skill_id}/dag

// registerResources registers resource templates and handlers.
func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(&sdkmcp.ResourceTemplate{
		URITemplate: "unbrowse://skill/{skill_id}",
		Name:        "Skill Manifest",
		Description: "Complete skill manifest: endpoints with URL templates, methods, parameter and body schemas, reliability scores, intent signature, and consumed values. get_skill returns the same document; use the resource when the host caches reads.",
		MIMEType:    tools.MimeJSON,
		Annotations: &sdkmcp.Annotations{
			Audience: []sdkmcp.Role{"assistant"},
			Priority: 0.8,
		},
	}, s.handleResourceSkill)

	s.mcpServer.AddResourceTemplate(&sdkmcp.ResourceTemplate{
		URITemplate: "unbrowse://skill/{skill_id}/dag",
		Name:        "Correlation Graph",
		Description: "The skill's correlation graph: which captured request produced each token, cookie, and CSRF value, and which requests consume them. Read this to understand why an endpoint replays as a chain rather than a single call.",
		MIMEType:    tools.MimeJSON,
		Annotations: &sdkmcp.Annotations{
			Audience: []sdkmcp.Role{"assistant"},
			Priority: 0.4,
		},
	}, s.handleResourceDAG)
}

// Resource handlers

func (s *Server) handleResourceSkill(ctx context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
	skillID, _, err := parseResourceURI(req.Params.URI)
	if err != nil {
		return nil, err
	}

	m, err := s.deps.Store.Manifest(skillID)
	if err != nil {
		return nil, tools.WrapEngineError(err)
	}
	return toResourceResult(req.Params.URI, m)
}

func (s *Server) handleResourceDAG(ctx context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
	skillID, _, err := parseResourceURI(req.Params.URI)
	if err != nil {
		return nil, err
	}

	graph, err := s.deps.Store.Graph(skillID)
	if err != nil {
		return nil, tools.WrapEngineError(err)
	}
	if graph == nil {
		return nil, sdkmcp.ResourceNotFoundError(req.Params.URI)
	}
	return toResourceResult(req.Params.URI, graph)
}

// Helper functions

// parseResourceURI extracts the skill ID and optional subresource from
// an unbrowse:// URI.
func parseResourceURI(uri string) (skillID, sub string, err error) {
	if !strings.HasPrefix(uri, "unbrowse://") {
		return "", "", tools.ErrInvalidInput("invalid URI scheme: expected unbrowse://")
	}

	parts := strings.Split(strings.TrimPrefix(uri, "unbrowse://"), "/")
	if len(parts) == 0 || parts[0] != "skill" {
		return "", "", tools.ErrInvalidInput("unknown resource type: expected unbrowse://skill/{skill_id}")
	}
	if len(parts) < 2 || parts[1] == "" {
		return "", "", tools.ErrInvalidInput("skill URI requires a skill ID")
	}
	skillID = parts[1]
	if len(parts) >= 3 {
		sub = parts[2]
		if sub != "dag" {
			return "", "", tools.ErrInvalidInput(fmt.Sprintf("unknown skill subresource: %s", sub))
		}
	}
	return skillID, sub, nil
}

// toResourceResult serializes content to a ReadResourceResult.
func toResourceResult(uri string, content any) (*sdkmcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializing resource: %w", err)
	}

	return &sdkmcp.ReadResourceResult{
		Contents: []*sdkmcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: tools.MimeJSON,
				Text:     string(data),
			},
		},
	}, nil
}
