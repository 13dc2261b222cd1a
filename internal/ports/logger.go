package ports

import "context"

// Logger is the leveled logging seam used across the trader. Call sites
// attach structured context through optional field maps; the adapter
// decides how fields are rendered.
type Logger interface {
	// Debug logs high-volume diagnostic detail (per-kline decisions).
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	// Info logs normal operation milestones (orders placed, streams connected).
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	// Warn logs recoverable anomalies the trader absorbs on its own.
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	// Error logs failures together with their underlying error.
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}
