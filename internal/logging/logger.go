// Package logging provides the shared structured logger and the
// operation-scoped error wrapper used across the service.
package logging

import (
	"go.uber.org/zap"
)

// NewLogger builds the production structured logger. All components derive
// their named loggers from this root.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	return cfg.Build()
}

// WithOperation enriches the logger with operation and request identifiers
// so every log line of a verification request carries both.
func WithOperation(logger *zap.Logger, operation, requestID string) *zap.Logger {
	fields := []zap.Field{zap.String("operation", operation)}
	if requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	return logger.With(fields...)
}
