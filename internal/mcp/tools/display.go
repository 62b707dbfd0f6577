// Package tools contains the MCP tool implementations: intent
// resolution, direct execution, search, skill inspection, live capture
// and result projection, each a thin typed wrapper over the engine.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/unbrowse/unbrowse/pkg/jsoncompact"
)

// MimeJSON is the MIME type for JSON tool and resource content.
const MimeJSON = "application/json"

// budgetResult caps an execution result for tool display. A result
// whose JSON form exceeds the tool byte budget is compacted: arrays
// trimmed to a few items, long strings truncated. Reports whether
// compaction ran so handlers can hint at the full-data paths.
func (d *Deps) budgetResult(result any) (any, bool) {
	if result == nil {
		return nil, false
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return result, false
	}
	budget := d.Config.ToolMaxBytes
	if budget <= 0 || len(raw) <= budget {
		return result, false
	}
	return jsoncompact.CompactValue(result, d.compactOptions()), true
}

// skillResourceURI points at the full manifest resource for a skill.
func skillResourceURI(skillID string) string {
	return fmt.Sprintf("unbrowse://skill/%s", skillID)
}

// dagResourceURI points at the correlation graph resource for a skill.
func dagResourceURI(skillID string) string {
	return fmt.Sprintf("unbrowse://skill/%s/dag", skillID)
}
