package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unbrowse/unbrowse/internal/config"
	"github.com/unbrowse/unbrowse/internal/fault"
)

// tosMarker is written to the data dir once the terms notice has been
// accepted, so the prompt shows at most once per machine.
const tosMarker = ".tos-accepted"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "unbrowse",
		Short: "Turn captured browser traffic into reusable API skills",
		Long: `unbrowse records the network traffic behind a browser session, infers the
site's API surface, reconstructs authentication, and saves the result as a
skill that can be re-executed headlessly. Skills resolve by intent: a request
like "list my orders" finds a matching saved or marketplace skill and calls
the underlying API directly.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fault.Wrap(fault.CodeInput, "bad arguments", err)
	})

	root.AddCommand(
		newServeCmd(),
		newMCPCmd(),
		newResolveCmd(),
		newSkillsCmd(),
		newLoginCmd(),
		newVersionCmd(),
	)
	return root
}

// ensureTosAccepted gates commands that capture or replay traffic. The
// gate passes when UNBROWSE_TOS_ACCEPTED is set or the marker file
// exists; otherwise it prompts on the terminal. interactive is false
// for the MCP command, whose stdin belongs to the protocol.
func ensureTosAccepted(cfg *config.Config, interactive bool) error {
	if cfg.TosAccepted {
		return nil
	}
	marker := filepath.Join(cfg.DataDir, tosMarker)
	if _, err := os.Stat(marker); err == nil {
		return nil
	}
	if !interactive {
		return fault.New(fault.CodePrecondition,
			"terms not accepted yet: run `unbrowse serve` once or set UNBROWSE_TOS_ACCEPTED=1")
	}

	fmt.Fprintln(os.Stderr, "unbrowse records HTTP traffic from sites you visit, including")
	fmt.Fprintln(os.Stderr, "authentication tokens, and stores it locally under "+cfg.DataDir+".")
	fmt.Fprintln(os.Stderr, "Only capture sites you are authorized to automate.")
	fmt.Fprint(os.Stderr, "Continue? [y/N] ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fault.Wrap(fault.CodeInput, "read terms response", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
	default:
		return fault.New(fault.CodePrecondition, "terms not accepted")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fault.Wrap(fault.CodeInternal, "create data dir", err)
	}
	if err := os.WriteFile(marker, []byte("accepted\n"), 0o644); err != nil {
		return fault.Wrap(fault.CodeInternal, "write terms marker", err)
	}
	return nil
}
