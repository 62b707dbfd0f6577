package skillstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/pkg/types"
)

const frontmatterFence = "---\n"

// RenderSkillMD renders a manifest as a markdown document with YAML
// frontmatter. The frontmatter is the manifest itself; the body below
// it is a human-readable summary regenerated on every save.
func RenderSkillMD(m *types.SkillManifest) ([]byte, error) {
	front, err := yamlFromJSON(m)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "encode skill frontmatter", err)
	}
	var b bytes.Buffer
	b.WriteString(frontmatterFence)
	b.Write(front)
	b.WriteString(frontmatterFence)
	b.WriteString("\n# " + m.Name + "\n\n")
	if m.Description != "" {
		b.WriteString(m.Description + "\n\n")
	}
	if m.IntentSignature != "" {
		b.WriteString("> " + m.IntentSignature + "\n\n")
	}
	b.WriteString("## Endpoints\n\n")
	b.WriteString("| Method | Path | Category | Reliability | Status |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, ep := range m.Endpoints {
		fmt.Fprintf(&b, "| %s | %s | %s | %.2f | %s |\n",
			ep.Method, pathOf(ep.URLTemplate), ep.Category, ep.ReliabilityScore, ep.VerificationStatus)
	}
	b.WriteString("\nSee `references/REFERENCE.md` for schemas and `scripts/api.go` for a standalone client.\n")
	return b.Bytes(), nil
}

// ParseSkillMD reads the manifest back out of the frontmatter. The
// markdown body is presentation only and ignored.
func ParseSkillMD(doc []byte) (*types.SkillManifest, error) {
	front, ok := frontmatter(doc)
	if !ok {
		return nil, fault.New(fault.CodeInternal, "skill document has no frontmatter")
	}
	var m types.SkillManifest
	if err := jsonFromYAML(front, &m); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "decode skill frontmatter", err)
	}
	if m.SkillID == "" {
		return nil, fault.New(fault.CodeInternal, "skill frontmatter has no skill_id")
	}
	return &m, nil
}

func frontmatter(doc []byte) ([]byte, bool) {
	s := string(doc)
	if !strings.HasPrefix(s, frontmatterFence) {
		return nil, false
	}
	rest := s[len(frontmatterFence):]
	end := strings.Index(rest, "\n"+frontmatterFence)
	if end < 0 {
		return nil, false
	}
	return []byte(rest[:end+1]), true
}

// yamlFromJSON marshals through the JSON representation so the YAML
// keys match the manifest's wire names exactly.
func yamlFromJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

// jsonFromYAML is the inverse bridge.
func jsonFromYAML(data []byte, v any) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func pathOf(urlTemplate string) string {
	if i := strings.Index(urlTemplate, "://"); i >= 0 {
		rest := urlTemplate[i+3:]
		if j := strings.Index(rest, "/"); j >= 0 {
			return rest[j:]
		}
		return "/"
	}
	return urlTemplate
}
