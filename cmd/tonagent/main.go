// Command tonagent runs the TON wallet agent: an HTTP API over the agent's
// actions backed by an asynchronous invocation queue, plus one-shot commands
// for inspecting and driving the wallet from a shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "tonagent:", err)
		stop()
		os.Exit(1)
	}
}
