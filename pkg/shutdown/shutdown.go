// Package shutdown wires process signals to context cancellation so every
// long-running loop stops through the same path.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"heartbeat/pkg/logger"
)

// Context returns a context cancelled on SIGINT or SIGTERM. A second signal
// exits immediately without waiting for cleanup.
func Context() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-ch
		logger.Info("shutdown_signal", "signal", sig.String())
		cancel()
		<-ch
		logger.Error("forced_exit")
		os.Exit(1)
	}()
	return ctx, cancel
}
