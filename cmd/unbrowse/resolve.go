package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/internal/resolver"
	"github.com/unbrowse/unbrowse/pkg/types"
)

func newResolveCmd() *cobra.Command {
	var (
		rawURL        string
		params        []string
		endpointID    string
		dryRun        bool
		confirmUnsafe bool
		forceCapture  bool
		projPath      string
		projExtract   string
		projLimit     int
	)

	cmd := &cobra.Command{
		Use:   "resolve \"<intent>\"",
		Short: "Resolve a natural-language intent to an API call",
		Long: `Walk the resolution ladder for an intent: local skills first, then the
marketplace, then a live capture when --url names the target site. The
response is printed as JSON; use --path/--extract/--limit to project the
result down to the fields you need.`,
		Example: `  unbrowse resolve "list my orders" --url https://shop.example.com
  unbrowse resolve "search repos" --param q=cli --extract full_name --limit 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine()
			if err != nil {
				return err
			}
			defer eng.close()
			if err := ensureTosAccepted(eng.cfg, true); err != nil {
				return err
			}

			paramMap, err := parseParams(params)
			if err != nil {
				return err
			}

			req := resolver.Request{
				Intent:        args[0],
				Params:        paramMap,
				EndpointID:    endpointID,
				DryRun:        dryRun,
				ConfirmUnsafe: confirmUnsafe,
				ForceCapture:  forceCapture,
			}
			if rawURL != "" {
				req.Context = &resolver.IntentContext{URL: rawURL}
			}
			if projPath != "" || projExtract != "" || projLimit > 0 {
				req.Projection = &types.Recipe{Path: projPath, Extract: projExtract, Limit: projLimit}
			}

			resp, err := eng.resolver.Resolve(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}

	cmd.Flags().StringVar(&rawURL, "url", "", "target site URL, enables the capture rung")
	cmd.Flags().StringArrayVar(&params, "param", nil, "endpoint parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&endpointID, "endpoint", "", "execute this endpoint id instead of the scored pick")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "describe the call without executing it")
	cmd.Flags().BoolVar(&confirmUnsafe, "confirm-unsafe", false, "allow mutating (non-GET) endpoints")
	cmd.Flags().BoolVar(&forceCapture, "force-capture", false, "skip caches and capture fresh")
	cmd.Flags().StringVar(&projPath, "path", "", "projection: dot-path into the result")
	cmd.Flags().StringVar(&projExtract, "extract", "", "projection: comma-separated fields to keep per row")
	cmd.Flags().IntVar(&projLimit, "limit", 0, "projection: cap result rows")
	return cmd
}

// parseParams turns repeated key=value flags into a parameter map.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fault.Input("bad --param %q, want key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}

func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fault.Wrap(fault.CodeInternal, "encode output", err)
	}
	fmt.Fprintln(os.Stdout, string(raw))
	return nil
}
