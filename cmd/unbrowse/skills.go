package main

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/unbrowse/unbrowse/internal/capture"
	"github.com/unbrowse/unbrowse/internal/exchange"
	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/internal/skill"
	"github.com/unbrowse/unbrowse/internal/skillstore"
	"github.com/unbrowse/unbrowse/pkg/types"
)

func newSkillsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Inspect and manage saved skills",
	}
	cmd.AddCommand(
		newSkillsListCmd(),
		newSkillsShowCmd(),
		newSkillsDeleteCmd(),
		newSkillsImportCmd(),
	)
	return cmd
}

func newSkillsListCmd() *cobra.Command {
	var domain string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved skills",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			manifests, err := eng.store.List()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SKILL ID\tNAME\tDOMAIN\tTYPE\tENDPOINTS\tUPDATED")
			for _, m := range manifests {
				if domain != "" && m.Domain != domain {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					m.SkillID, m.Name, m.Domain, m.ExecutionType,
					len(m.Endpoints), m.UpdatedAt.Time().Format(time.DateOnly))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "", "only skills for this domain")
	return cmd
}

func newSkillsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <skill-id>",
		Short: "Print one skill manifest as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			m, err := eng.store.Manifest(args[0])
			if err != nil {
				return err
			}
			return printJSON(m)
		},
	}
}

func newSkillsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <skill-id>",
		Short: "Delete a skill and its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			if err := eng.store.Delete(args[0]); err != nil {
				return err
			}
			eng.index.Delete(args[0])
			fmt.Fprintf(os.Stdout, "deleted %s\n", args[0])
			return nil
		},
	}
}

func newSkillsImportCmd() *cobra.Command {
	var (
		harPath     string
		openapiPath string
		baseURL     string
		name        string
		skillID     string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Build a skill from a HAR archive or an OpenAPI document",
		Long: `Import runs the capture pipeline over offline input. --har feeds a HAR 1.2
archive through the same analysis a live session gets; --openapi parses an
OpenAPI 3 document into spec-flagged endpoints, merged into the skill named
by --skill when given. Captured examples always win over spec claims.`,
		Example: `  unbrowse skills import --har session.har --base-url https://api.example.com
  unbrowse skills import --openapi spec.yaml --skill sk_example`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (harPath == "") == (openapiPath == "") {
				return fault.Input("exactly one of --har or --openapi is required")
			}

			eng, err := buildEngine()
			if err != nil {
				return err
			}
			defer eng.close()
			if err := ensureTosAccepted(eng.cfg, true); err != nil {
				return err
			}

			if harPath != "" {
				return importHAR(eng, harPath, baseURL, name)
			}
			return importOpenAPI(eng, openapiPath, skillID, name)
		},
	}

	cmd.Flags().StringVar(&harPath, "har", "", "HAR 1.2 archive to import")
	cmd.Flags().StringVar(&openapiPath, "openapi", "", "OpenAPI 3 document to import")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "only keep HAR entries under this URL prefix")
	cmd.Flags().StringVar(&name, "name", "", "skill name override")
	cmd.Flags().StringVar(&skillID, "skill", "", "merge OpenAPI endpoints into this existing skill")
	return cmd
}

// importHAR runs the offline pipeline: parse, analyze, build, save.
func importHAR(eng *engine, path, baseURL, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fault.Wrap(fault.CodeInput, "open har file", err)
	}
	defer f.Close()

	exchanges, err := exchange.ImportHAR(f, baseURL)
	if err != nil {
		return err
	}
	if len(exchanges) == 0 {
		return fault.Input("no API traffic in %s; check --base-url", path)
	}

	set := capture.Analyze(exchanges, capture.PageState{})
	analysis, err := capture.Build(set, time.Now(), capture.BuildOptions{Name: name})
	if err != nil {
		return err
	}
	if err := eng.store.Save(&skillstore.Bundle{
		Manifest: analysis.Skill,
		Auth:     analysis.Auth,
		Graph:    analysis.Graph,
	}); err != nil {
		return err
	}
	eng.index.Upsert(analysis.Skill)

	fmt.Fprintf(os.Stdout, "imported %d exchanges into %s (%d endpoints)\n",
		len(exchanges), analysis.Skill.SkillID, len(analysis.Skill.Endpoints))
	return nil
}

// importOpenAPI builds spec-flagged endpoint groups and either merges
// them into an existing skill or creates a spec-only one.
func importOpenAPI(eng *engine, path, skillID, name string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fault.Wrap(fault.CodeInput, "read openapi document", err)
	}
	groups, specBase, err := skill.ImportOpenAPI(data)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return fault.Input("no operations in %s", path)
	}

	if skillID == "" {
		if specBase == "" {
			return fault.Input("document has no servers; pass --skill to merge into an existing skill")
		}
		return createSpecSkill(eng, groups, specBase, name)
	}

	existing, err := eng.store.Manifest(skillID)
	if err != nil {
		return err
	}
	base := specBase
	if base == "" {
		base = "https://" + existing.Domain
	}
	incoming, err := skill.Generate(specGroupSet(groups, base), time.Now(), &skill.GenerateOptions{Name: existing.Name})
	if err != nil {
		return err
	}
	merged, diff, err := skill.Merge(existing, incoming, "", time.Now())
	if err != nil {
		return err
	}
	if err := eng.store.SaveManifest(merged); err != nil {
		return err
	}
	eng.index.Upsert(merged)

	fmt.Fprintf(os.Stdout, "merged %s into %s: %s\n", path, skillID, diff)
	return nil
}

func createSpecSkill(eng *engine, groups []*types.EndpointGroup, base, name string) error {
	analysis, err := capture.Build(specGroupSet(groups, base), time.Now(), capture.BuildOptions{Name: name})
	if err != nil {
		return err
	}
	if err := eng.store.Save(&skillstore.Bundle{
		Manifest: analysis.Skill,
		Auth:     analysis.Auth,
		Graph:    analysis.Graph,
	}); err != nil {
		return err
	}
	eng.index.Upsert(analysis.Skill)

	fmt.Fprintf(os.Stdout, "created %s from spec (%d endpoints, unverified)\n",
		analysis.Skill.SkillID, len(analysis.Skill.Endpoints))
	return nil
}

// specGroupSet wraps spec-derived endpoint groups in a synthetic
// exchange set so the generator can run without captured traffic.
func specGroupSet(groups []*types.EndpointGroup, base string) *types.AnalyzedExchangeSet {
	set := &types.AnalyzedExchangeSet{
		EndpointGroups: groups,
		BaseURLs:       []string{base},
	}
	if u, err := url.Parse(base); err == nil && u.Host != "" {
		set.Domains = []string{u.Host}
	}
	return set
}
