package ingestion

import (
	"context"
	"log"
	"os"
)

// WatchSignals cancels the pipeline on the first signal from sigCh.
// Later signals are logged and ignored; shutdown is not re-entrant.
// Returns when done is closed.
func WatchSignals(done <-chan struct{}, sigCh <-chan os.Signal, cancel context.CancelFunc, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}

	received := false
	for {
		select {
		case <-done:
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}
			if received {
				logger.Printf("Received %v during shutdown, ignoring", sig)
				continue
			}
			received = true
			logger.Printf("Received %v, shutting down...", sig)
			cancel()
		}
	}
}
