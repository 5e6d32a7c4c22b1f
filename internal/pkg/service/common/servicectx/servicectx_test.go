package servicectx

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/processing-plant/internal/pkg/log"
	"github.com/keboola/processing-plant/internal/pkg/utils/errors"
)

func TestProcess_ShutdownOrder(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	logger := log.NewDebugLogger()
	proc, err := New(ctx, cancel, WithLogger(logger), WithUniqueID("<id>"))
	require.NoError(t, err)

	// Sleep determines the completion order of the parallel operations to make it testable
	proc.Add(func(ctx context.Context, errCh chan<- error) {
		<-ctx.Done()
		time.Sleep(100 * time.Millisecond)
		logger.Info(ctx, "watchdog stopped")
	})
	proc.Add(func(ctx context.Context, errCh chan<- error) {
		<-ctx.Done()
		time.Sleep(200 * time.Millisecond)
		logger.Info(ctx, "metrics server stopped")
	})
	proc.OnShutdown(func(ctx context.Context) {
		logger.Info(ctx, "onShutdown1")
	})
	proc.OnShutdown(func(ctx context.Context) {
		logger.Info(ctx, "onShutdown2")
	})
	proc.Shutdown(errors.New("some error"))
	proc.WaitForShutdown()

	expected := `
INFO  process unique id "<id>"
INFO  exiting (some error)
INFO  onShutdown2
INFO  onShutdown1
INFO  watchdog stopped
INFO  metrics server stopped
INFO  exited
`
	assert.Equal(t, strings.TrimLeft(expected, "\n"), logger.AllMessagesTxt())
}

func TestProcess_OperationError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	logger := log.NewDebugLogger()
	proc, err := New(ctx, cancel, WithLogger(logger), WithUniqueID("<id>"))
	require.NoError(t, err)

	proc.Add(func(ctx context.Context, errCh chan<- error) {
		errCh <- errors.New("operation failed")
	})
	proc.WaitForShutdown()

	assert.Contains(t, logger.AllMessagesTxt(), "INFO  exiting (operation failed)\n")
}
