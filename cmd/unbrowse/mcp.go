package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/unbrowse/unbrowse/internal/config"
	"github.com/unbrowse/unbrowse/pkg/mcpsrv"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		Long: `Expose the skill engine to agents over the Model Context Protocol.
Stdin and stdout carry the protocol, so this command never prompts; accept
the terms once via ` + "`unbrowse serve`" + ` or UNBROWSE_TOS_ACCEPTED=1.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureTosAccepted(config.Load(), false); err != nil {
				return err
			}

			server, err := mcpsrv.NewServer()
			if err != nil {
				return err
			}
			defer server.Close()

			err = server.Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
