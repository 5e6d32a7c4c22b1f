package prometheus_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/processing-plant/internal/pkg/log"
	"github.com/keboola/processing-plant/internal/pkg/service/common/servicectx"
	"github.com/keboola/processing-plant/internal/pkg/telemetry/metric/prometheus"
)

func TestServeMetrics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	addr := freeAddress(t)

	logger := log.NewDebugLogger()
	proc := servicectx.NewForTest(t)
	provider, err := prometheus.ServeMetrics(ctx, "plant-node", addr, logger, proc)
	require.NoError(t, err)

	counter, err := provider.Meter("test").Int64Counter("plant_requests")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		resp, err := http.Get("http://" + addr + prometheus.Endpoint) // nolint:noctx
		if !assert.NoError(c, err) {
			return
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		assert.NoError(c, err)
		assert.Equal(c, http.StatusOK, resp.StatusCode)
		assert.Contains(c, string(body), "plant_requests_total 3")
	}, 10*time.Second, 50*time.Millisecond)
}

func TestServeMetrics_Disabled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logger := log.NewDebugLogger()
	proc := servicectx.NewForTest(t)
	provider, err := prometheus.ServeMetrics(ctx, "plant-node", "", logger, proc)
	require.NoError(t, err)
	assert.NotNil(t, provider)

	logger.AssertJSONMessages(t, `{"level":"info","message":"metrics endpoint is disabled","component":"metrics"}`)
}

func freeAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().String()
}
