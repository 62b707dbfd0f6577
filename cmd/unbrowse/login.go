package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <url>",
		Short: "Record a fresh login session for a site",
		Long: `Open an interactive browser session on the given URL, wait for the login
to complete, and persist the resulting auth state. Credentials are prefilled
from the configured provider (UNBROWSE_CREDENTIAL_SOURCE) when available.
Existing skills for the domain pick up the refreshed session.`,
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

			result, err := eng.captures.Login(cmd.Context(), args[0], eng.creds)
			if err != nil {
				return err
			}

			method := result.AuthMethod
			if method == "" {
				method = "no auth detected"
			}
			fmt.Fprintf(os.Stdout, "logged in to %s (%s)\n", result.Domain, method)
			if result.SkillID != "" {
				fmt.Fprintf(os.Stdout, "auth refreshed for skill %s\n", result.SkillID)
			}
			return nil
		},
	}
}
