package mcpsrv

import (
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/unbrowse/unbrowse/internal/mcp/tools"
)

// AddTool registers a tool on the server after validating that the
// output type's zero value survives the SDK's inferred JSON schema.
// json.Marshal turns a nil slice into null while the schema inferred
// from the Go type says array, so a handler returning its zero value
// would fail validation mid-conversation; this check moves that
// failure to startup.
//
// Panics with an actionable message naming the field to fix. Use it
// in place of [sdkmcp.AddTool] when registering custom tools.
func AddTool[In, Out any](srv *sdkmcp.Server, t *sdkmcp.Tool, h sdkmcp.ToolHandlerFor[In, Out]) {
	tools.AddTool(srv, t, h)
}
