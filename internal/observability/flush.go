package observability

import (
	"context"

	"go.uber.org/zap"
)

// FlushTelemetry performs a final telemetry sync during shutdown. Prometheus
// metrics are pull-based so there is nothing to push; this flushes buffered
// log entries and gives a hook for future push-based exporters.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	// Sync may fail on stderr; that is not actionable at shutdown.
	_ = logger.Sync()
	return nil
}
