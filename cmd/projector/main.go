// Command projector computes per-game fantasy hockey projections and
// validates them against completed games.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/projector/pkg/logger"
)

func main() {
	// Reports go to stdout; logs stay on stderr.
	if err := logger.Init(logger.WithOutput(os.Stderr)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			os.Stderr.WriteString("failed to sync logger: " + err.Error() + "\n")
		}
	}()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := Execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		logger.Get().Error(ctx, "command failed", logger.Error(err))
		os.Exit(1)
	}
}
