package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/unbrowse/unbrowse/internal/fault"
)

func main() {
	// Best-effort .env bootstrap before config.Load reads the
	// environment. A missing file is not an error.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "unbrowse: %s\n", fault.MessageOf(err))
		os.Exit(exitCode(err))
	}
}

// exitCode maps the fault taxonomy onto shell conventions: 2 for bad
// input, 3 when the upstream site or marketplace is unreachable, 4 when
// a capture is already in flight, 1 for everything else.
func exitCode(err error) int {
	switch fault.CodeOf(err) {
	case fault.CodeInput, fault.CodeNotFound:
		return 2
	case fault.CodeUpstream:
		return 3
	case fault.CodeCaptureInFlight:
		return 4
	default:
		return 1
	}
}
