package observability

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// FlushTelemetry drains buffered telemetry during shutdown, after in-flight
// weather requests have finished. The prometheus registry is pull-based and
// needs no flushing; what must not be lost are the final zap lines recording
// the drain. Respects ctx so a stuck sink cannot hold up shutdown.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("flush telemetry: %w", err)
	}
	if logger != nil {
		if err := logger.Sync(); err != nil {
			return fmt.Errorf("flush logs: %w", err)
		}
	}
	return nil
}
