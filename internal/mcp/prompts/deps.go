// Package prompts contains the MCP prompt implementations: workflow
// guides that teach a host agent how to use the skill tools cheaply.
package prompts

// Config holds configuration needed by prompts.
type Config struct {
	// CaptureAvailable gates the live-capture sections: without a
	// browser gateway the guides only cover stored and marketplace
	// skills.
	CaptureAvailable bool
}
