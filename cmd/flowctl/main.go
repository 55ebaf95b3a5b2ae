// Command flowctl manages FlowMinds projects from the terminal: listing and
// sharing projects, managing members, and generating plans headlessly.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	stop()
	if err != nil {
		bad.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}
