// Package log provides the Logger interface used by all services.
// The implementation is a thin wrapper around the go.uber.org/zap SugaredLogger.
//
// Context attributes are added by the With* methods, for example:
//
//	logger = logger.WithComponent("watchdog").With(attribute.String("episode", id))
//	logger.Infof(ctx, `finalised "%d" parcels`, count)
package log

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap/zapcore"
)

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
)

type Logger interface {
	contextLogger
	withAttributes
}

type contextLogger interface {
	// Debug logs message in the debug level.
	Debug(ctx context.Context, message string)
	// Info logs message in the info level.
	Info(ctx context.Context, message string)
	// Warn logs message in the warning level.
	Warn(ctx context.Context, message string)
	// Error logs message in the error level.
	Error(ctx context.Context, message string)

	Debugf(ctx context.Context, template string, args ...any)
	Infof(ctx context.Context, template string, args ...any)
	Warnf(ctx context.Context, template string, args ...any)
	Errorf(ctx context.Context, template string, args ...any)

	Sync() error
}

type withAttributes interface {
	// With returns a logger with additional attributes, they are present in each log message.
	With(attrs ...attribute.KeyValue) Logger
	// WithComponent returns a logger with the component name, nested components are joined by a dot.
	WithComponent(component string) Logger
	// WithDuration returns a logger with the "duration" attribute.
	WithDuration(v time.Duration) Logger
}
