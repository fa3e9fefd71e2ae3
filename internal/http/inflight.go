package http

import (
	"context"
	"sync/atomic"
	"time"
)

var inFlight atomic.Int64

func inFlightAdd(delta int64) {
	inFlight.Add(delta)
}

// InFlightCount returns the number of requests currently being served.
func InFlightCount() int64 {
	return inFlight.Load()
}

// WaitForInFlight polls until the in-flight count reaches zero or the context
// expires. Used during graceful shutdown after the listener closes.
func WaitForInFlight(ctx context.Context, checkInterval time.Duration) error {
	if checkInterval <= 0 {
		checkInterval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		if InFlightCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
