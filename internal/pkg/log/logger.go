package log

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const componentKey = "component"

// zapLogger is the default implementation of the Logger interface.
type zapLogger struct {
	sugar     *zap.SugaredLogger
	component string
}

func loggerFromZapCore(core zapcore.Core) *zapLogger {
	return &zapLogger{sugar: zap.New(core).Sugar()}
}

func (l *zapLogger) Debug(_ context.Context, message string) {
	l.withComponentField().Debug(message)
}

func (l *zapLogger) Info(_ context.Context, message string) {
	l.withComponentField().Info(message)
}

func (l *zapLogger) Warn(_ context.Context, message string) {
	l.withComponentField().Warn(message)
}

func (l *zapLogger) Error(_ context.Context, message string) {
	l.withComponentField().Error(message)
}

func (l *zapLogger) Debugf(_ context.Context, template string, args ...any) {
	l.withComponentField().Debugf(template, args...)
}

func (l *zapLogger) Infof(_ context.Context, template string, args ...any) {
	l.withComponentField().Infof(template, args...)
}

func (l *zapLogger) Warnf(_ context.Context, template string, args ...any) {
	l.withComponentField().Warnf(template, args...)
}

func (l *zapLogger) Errorf(_ context.Context, template string, args ...any) {
	l.withComponentField().Errorf(template, args...)
}

func (l *zapLogger) Sync() error {
	return l.sugar.Sync()
}

func (l *zapLogger) With(attrs ...attribute.KeyValue) Logger {
	fields := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		fields = append(fields, attrToField(attr))
	}
	return &zapLogger{sugar: l.sugar.With(fields...), component: l.component}
}

func (l *zapLogger) WithComponent(component string) Logger {
	if l.component != "" {
		component = l.component + "." + component
	}
	return &zapLogger{sugar: l.sugar, component: component}
}

// withComponentField adds the component field at the time of logging,
// so nested components replace the field instead of duplicating it.
func (l *zapLogger) withComponentField() *zap.SugaredLogger {
	if l.component == "" {
		return l.sugar
	}
	return l.sugar.With(zap.String(componentKey, l.component))
}

func (l *zapLogger) WithDuration(v time.Duration) Logger {
	return &zapLogger{sugar: l.sugar.With(zap.Stringer("duration", v)), component: l.component}
}

func attrToField(attr attribute.KeyValue) zap.Field {
	key := string(attr.Key)
	switch attr.Value.Type() {
	case attribute.BOOL:
		return zap.Bool(key, attr.Value.AsBool())
	case attribute.INT64:
		return zap.Int64(key, attr.Value.AsInt64())
	case attribute.FLOAT64:
		return zap.Float64(key, attr.Value.AsFloat64())
	case attribute.STRING:
		return zap.String(key, attr.Value.AsString())
	default:
		return zap.String(key, attr.Value.Emit())
	}
}
