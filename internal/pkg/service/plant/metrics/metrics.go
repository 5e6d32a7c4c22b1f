// Package metrics reports state of the plant caches and ingress queues.
package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/keboola/processing-plant/internal/pkg/encoding/json"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
	"github.com/keboola/processing-plant/internal/pkg/telemetry"
)

const (
	attrComponent = "component.id"
	attrCache     = "cache"
)

type Collector interface {
	// ReportCacheStatus reports the status of a cache, the status is a JSON object, the "size" key is exported as a gauge.
	ReportCacheStatus(ctx context.Context, id model.ComponentID, cache string, status string)
	ReportQueueDepth(ctx context.Context, id model.ComponentID, size int)
}

type statusKey struct {
	id    model.ComponentID
	cache string
}

// OTelCollector exports the reports as OpenTelemetry gauges and keeps the last status of each cache.
type OTelCollector struct {
	cacheSize  metric.Int64Gauge
	queueDepth metric.Int64Gauge

	lock     sync.Mutex
	statuses map[statusKey]string
}

func NewOTelCollector(meter metric.Meter) *OTelCollector {
	return &OTelCollector{
		cacheSize:  telemetry.Int64Gauge(meter, "plant.cache.size", "Number of entries in a plant cache.", "{entry}"),
		queueDepth: telemetry.Int64Gauge(meter, "plant.queue.depth", "Number of messages waiting in an ingress queue.", "{message}"),
		statuses:   make(map[statusKey]string),
	}
}

func (c *OTelCollector) ReportCacheStatus(ctx context.Context, id model.ComponentID, cache string, status string) {
	c.lock.Lock()
	c.statuses[statusKey{id: id, cache: cache}] = status
	c.lock.Unlock()

	var parsed struct {
		Size *int64 `json:"size"`
	}
	if err := json.DecodeString(status, &parsed); err == nil && parsed.Size != nil {
		c.cacheSize.Record(ctx, *parsed.Size, metric.WithAttributes(
			attribute.String(attrComponent, id.String()),
			attribute.String(attrCache, cache),
		))
	}
}

func (c *OTelCollector) ReportQueueDepth(ctx context.Context, id model.ComponentID, size int) {
	c.queueDepth.Record(ctx, int64(size), metric.WithAttributes(attribute.String(attrComponent, id.String())))
}

// LastStatus returns the last reported status of the cache.
func (c *OTelCollector) LastStatus(id model.ComponentID, cache string) (string, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	status, found := c.statuses[statusKey{id: id, cache: cache}]
	return status, found
}
