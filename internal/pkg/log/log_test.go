package log

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestDebugLogger_Attributes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logger := NewDebugLogger()
	logger.Debug(ctx, "Debug message.")

	withCtx := logger.
		WithComponent("c1").
		With(attribute.String("key1", "value1"), attribute.Int("count", 3)).
		WithComponent("c2").
		WithDuration(123 * time.Second)
	withCtx.Infof(ctx, "Info %s.", "message")

	logger.AssertJSONMessages(t, `
{"level":"debug","message":"Debug message."}
{"level":"info","message":"Info message.","component":"c1.c2","duration":"2m3s","key1":"value1","count":3}
`)
}

func TestDebugLogger_AllMessagesTxt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logger := NewDebugLogger()
	logger.Debug(ctx, "debug")
	logger.Info(ctx, "info")
	logger.Warn(ctx, "warn")
	logger.Error(ctx, "error")
	assert.Equal(t, "DEBUG  debug\nINFO  info\nWARN  warn\nERROR  error\n", logger.AllMessagesTxt())
	assert.Empty(t, logger.AllMessages())
}

func TestServiceLogger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var out strings.Builder
	logger := NewServiceLogger(&out, false, LogFormatJSON).WithComponent("plant")
	logger.Debug(ctx, "Debug msg")
	logger.Info(ctx, "Info msg")

	AssertJSONMessages(t, `{"level":"info","message":"Info msg","component":"plant","time":"%s"}`, out.String())
	assert.NotContains(t, out.String(), "Debug msg")
}

func TestCompareJSONMessages_Mismatch(t *testing.T) {
	t.Parallel()
	err := CompareJSONMessages(`{"message":"foo"}`, `{"message":"bar"}`)
	assert.Error(t, err)
}

func TestNewLogFormat(t *testing.T) {
	t.Parallel()
	f, err := NewLogFormat("json")
	assert.NoError(t, err)
	assert.Equal(t, LogFormatJSON, f)

	f, err = NewLogFormat("xml")
	assert.Error(t, err)
	assert.Equal(t, LogFormatConsole, f)
}
