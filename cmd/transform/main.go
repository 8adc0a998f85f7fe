package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tigerroll/weatherlake/internal/app"
	"github.com/tigerroll/weatherlake/internal/support/util/logger"
)

// main is the entry point of the bulk transform job. It plans the
// unprocessed raw objects and rewrites them as partitioned parquet files.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Attempting to stop the job...", sig)
		cancel()
	}()

	if err := app.RunTransform(ctx); err != nil {
		logger.Errorf("Transform failed: %v", err)
		os.Exit(1)
	}
}
