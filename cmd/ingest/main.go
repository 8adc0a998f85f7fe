package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/tigerroll/weatherlake/internal/app"
	"github.com/tigerroll/weatherlake/internal/support/util/logger"
)

// main is the entry point of the ingestion job. The -event flag carries the
// invocation payload; an empty object targets the scheduled hour.
func main() {
	event := flag.String("event", "{}", "invocation event payload (JSON)")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Attempting to stop the job...", sig)
		cancel()
	}()

	if err := app.RunIngest(ctx, *event); err != nil {
		logger.Errorf("Ingestion failed: %v", err)
		os.Exit(1)
	}
}
