package metrics_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkMetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/keboola/processing-plant/internal/pkg/service/plant/metrics"
)

func TestOTelCollector(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reader := sdkMetric.NewManualReader()
	provider := sdkMetric.NewMeterProvider(sdkMetric.WithReader(reader))
	collector := metrics.NewOTelCollector(provider.Meter("test"))

	collector.ReportCacheStatus(ctx, "plant", "jobCards", `{"size":3,"added":5,"removed":2}`)
	collector.ReportCacheStatus(ctx, "plant", "parcels", `{"size":1}`)
	collector.ReportCacheStatus(ctx, "plant", "other", `invalid`)
	collector.ReportQueueDepth(ctx, "wup1", 7)

	status, found := collector.LastStatus("plant", "jobCards")
	assert.True(t, found)
	assert.Equal(t, `{"size":3,"added":5,"removed":2}`, status)
	status, found = collector.LastStatus("plant", "other")
	assert.True(t, found)
	assert.Equal(t, `invalid`, status)
	_, found = collector.LastStatus("plant", "missing")
	assert.False(t, found)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	values := make(map[string]map[string]int64)
	for _, m := range rm.ScopeMetrics[0].Metrics {
		gauge, ok := m.Data.(metricdata.Gauge[int64])
		require.True(t, ok, m.Name)
		values[m.Name] = make(map[string]int64)
		for _, point := range gauge.DataPoints {
			cache, _ := point.Attributes.Value(attribute.Key("cache"))
			component, _ := point.Attributes.Value(attribute.Key("component.id"))
			values[m.Name][component.AsString()+"/"+cache.AsString()] = point.Value
		}
	}

	assert.Equal(t, map[string]map[string]int64{
		"plant.cache.size":  {"plant/jobCards": 3, "plant/parcels": 1},
		"plant.queue.depth": {"wup1/": 7},
	}, values)
}
