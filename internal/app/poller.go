package app

import (
	"context"
	"log/slog"
	"time"
)

const defaultPollInterval = time.Hour

// StartPoller launches a background goroutine that calls check at a fixed
// cadence until ctx ends. It returns immediately. The first call happens
// one interval after start.
func StartPoller(ctx context.Context, interval time.Duration, logger *slog.Logger, check func()) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Debug("periodic update check")
				check()
			}
		}
	}()
}
