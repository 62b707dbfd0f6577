// Package mcpsrv runs the unbrowse skill engine as an embeddable MCP
// server.
//
// The builtin surface covers the full skill lifecycle: resolve_intent,
// execute_skill, search_skills, list_skills, get_skill,
// capture_session and apply_projection, plus the unbrowse://skill
// resources and workflow prompts. Everything is extensible through
// functional options.
//
// # Basic Usage
//
// Configuration comes from the environment; the server speaks MCP on
// stdio until the context ends:
//
//	server, err := mcpsrv.NewServer()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer server.Close()
//	server.Run(ctx)
//
// # Custom Tools
//
// Self-contained tools register with [WithTool]. Tools that need the
// skill store, resolver, or marketplace client build their handler
// from [Deps] via [WithDepsTool]:
//
//	import mcp "github.com/modelcontextprotocol/go-sdk/mcp"
//
//	type CountInput struct {
//	    Domain string `json:"domain"`
//	}
//
//	type CountOutput struct {
//	    Count int `json:"count"`
//	}
//
//	server, err := mcpsrv.NewServer(
//	    mcpsrv.WithDepsTool(
//	        &mcp.Tool{Name: "count_skills", Description: "Count stored skills for a domain"},
//	        func(d *mcpsrv.Deps) func(context.Context, *mcp.CallToolRequest, CountInput) (*mcp.CallToolResult, CountOutput, error) {
//	            return func(ctx context.Context, req *mcp.CallToolRequest, in CountInput) (*mcp.CallToolResult, CountOutput, error) {
//	                manifests, err := d.Store.List()
//	                if err != nil {
//	                    return nil, CountOutput{}, err
//	                }
//	                n := 0
//	                for _, m := range manifests {
//	                    if in.Domain == "" || m.Domain == in.Domain {
//	                        n++
//	                    }
//	                }
//	                return nil, CountOutput{Count: n}, nil
//	            }
//	        },
//	    ),
//	)
//
// # Overrides
//
// Logging and transport behavior can be overridden without touching
// the environment:
//
//	server, err := mcpsrv.NewServer(
//	    mcpsrv.WithLogLevel("debug"),
//	    mcpsrv.WithLogFile("/var/log/unbrowse.log"),
//	    mcpsrv.WithHTTPClient(httpClient),
//	)
package mcpsrv
