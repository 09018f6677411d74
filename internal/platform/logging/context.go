package logging

import (
	"context"
	"log/slog"
)

// Attribute keys added to the request-scoped logger.
const (
	KeyRequestID     = "request_id"
	KeyCorrelationID = "correlation_id"
	KeyTraceID       = "trace_id"
)

type loggerKey struct{}

var defaultLogger = slog.Default()

// FromContext returns the request-scoped logger, or the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	return FromContextOr(ctx, nil)
}

// FromContextOr returns the logger carried by ctx, else fallback, else the
// default logger.
func FromContextOr(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return logger
		}
	}

	if fallback != nil {
		return fallback
	}

	return defaultLogger
}

// WithContext returns ctx carrying logger.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// WithRequestID tags the request-scoped logger with the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withAttr(ctx, KeyRequestID, id)
}

// WithCorrelationID tags the request-scoped logger with the correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return withAttr(ctx, KeyCorrelationID, id)
}

// WithTraceID tags the request-scoped logger with the W3C trace ID.
func WithTraceID(ctx context.Context, id string) context.Context {
	return withAttr(ctx, KeyTraceID, id)
}

func withAttr(ctx context.Context, key, value string) context.Context {
	return WithContext(ctx, FromContext(ctx).With(slog.String(key, value)))
}

// Trace logs at LevelTrace with the logger carried by ctx.
func Trace(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Log(ctx, LevelTrace, msg, args...)
}

// SetDefault replaces both this package's fallback logger and slog's default.
func SetDefault(logger *slog.Logger) {
	defaultLogger = logger
	slog.SetDefault(logger)
}
