// Command quorum runs review batches against a reviewer, merges their
// output into a consensus, and reconciles findings into the review state.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/ahrav/go-quorum/internal/domain"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI and maps the error to a process exit status.
func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return domain.ExitOK
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	var coder domain.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return domain.ExitFault
}
