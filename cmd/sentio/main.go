// Command sentio is the reviewer CLI. It works directly against the
// configured backend, so it needs the same config as the server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
