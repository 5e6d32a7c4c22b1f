package dependencies

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	sdkMetric "go.opentelemetry.io/otel/sdk/metric"
	sdkTrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/keboola/processing-plant/internal/pkg/log"
	"github.com/keboola/processing-plant/internal/pkg/service/common/servicectx"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/audit"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/config"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/lease"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/metrics"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/topology"
	"github.com/keboola/processing-plant/internal/pkg/telemetry"
)

// Mocked dependencies container, all outbound dependencies are in memory.
type Mocked interface {
	ServiceScope
	DebugLogger() log.DebugLogger
	FakeClock() *clockwork.FakeClock
	MockedTopology() *topology.Static
	MockedLeaseStore() *lease.MemoryStore
	MockedAuditSink() *audit.MemorySink
	MockedMetrics() *metrics.OTelCollector
	MetricReader() *sdkMetric.ManualReader
	SpanRecorder() *tracetest.SpanRecorder
}

type mocked struct {
	*serviceScope
	config      *MockedConfig
	clock       *clockwork.FakeClock
	topology    *topology.Static
	leases      *lease.MemoryStore
	audit       *audit.MemorySink
	metrics     *metrics.OTelCollector
	reader      *sdkMetric.ManualReader
	spans       *tracetest.SpanRecorder
	debugLogger log.DebugLogger
}

type MockedConfig struct {
	clock       *clockwork.FakeClock
	debugLogger log.DebugLogger
	workers     map[model.ComponentID]model.WorkerConfig
	modify      []func(cfg *config.Config)
}

type MockedOption func(c *MockedConfig)

func WithClock(v *clockwork.FakeClock) MockedOption {
	return func(c *MockedConfig) {
		c.clock = v
	}
}

func WithDebugLogger(v log.DebugLogger) MockedOption {
	return func(c *MockedConfig) {
		c.debugLogger = v
	}
}

// WithWorker adds the worker to the static topology.
func WithWorker(id model.ComponentID, resilience model.ResilienceMode, concurrency model.ConcurrencyMode) MockedOption {
	return func(c *MockedConfig) {
		c.workers[id] = model.WorkerConfig{Resilience: resilience, Concurrency: concurrency}
	}
}

// WithConfig modifies the default test configuration.
func WithConfig(fn func(cfg *config.Config)) MockedOption {
	return func(c *MockedConfig) {
		c.modify = append(c.modify, fn)
	}
}

func NewMockedConfig() config.Config {
	cfg := config.NewConfig()
	cfg.NodeID = "test-node"
	cfg.ClusterName = "test-cluster"
	cfg.Watchdog.InitialDelay = time.Second
	cfg.Watchdog.Period = 10 * time.Second
	cfg.Watchdog.ActivityRetention = time.Hour
	cfg.Metrics.Listen = ""
	return cfg
}

func NewMocked(t *testing.T, opts ...MockedOption) Mocked {
	t.Helper()

	mc := &MockedConfig{
		clock:       clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)),
		debugLogger: log.NewDebugLogger(),
		workers:     make(map[model.ComponentID]model.WorkerConfig),
	}
	for _, o := range opts {
		o(mc)
	}

	cfg := NewMockedConfig()
	for _, fn := range mc.modify {
		fn(&cfg)
	}
	cfg.Normalize()

	reader := sdkMetric.NewManualReader()
	spans := tracetest.NewSpanRecorder()
	tel := telemetry.New(
		sdkTrace.NewTracerProvider(sdkTrace.WithSpanProcessor(spans)),
		sdkMetric.NewMeterProvider(sdkMetric.WithReader(reader)),
	)

	d := &mocked{
		serviceScope: newScope(cfg, mc.clock, mc.debugLogger, tel, servicectx.NewForTest(t)),
		config:       mc,
		clock:        mc.clock,
		topology:     topology.NewStatic(mc.workers),
		leases:       lease.NewMemoryStore(),
		audit:        audit.NewMemorySink(),
		metrics:      metrics.NewOTelCollector(tel.Meter()),
		reader:       reader,
		spans:        spans,
		debugLogger:  mc.debugLogger,
	}
	d.serviceScope.topology = d.topology
	d.serviceScope.leases = d.leases
	d.serviceScope.audit = d.audit
	d.serviceScope.metrics = d.metrics

	// Clear logs
	d.debugLogger.Truncate()

	return d
}

func (v *mocked) DebugLogger() log.DebugLogger {
	return v.debugLogger
}

func (v *mocked) FakeClock() *clockwork.FakeClock {
	return v.clock
}

func (v *mocked) MockedTopology() *topology.Static {
	return v.topology
}

func (v *mocked) MockedLeaseStore() *lease.MemoryStore {
	return v.leases
}

func (v *mocked) MockedAuditSink() *audit.MemorySink {
	return v.audit
}

func (v *mocked) MockedMetrics() *metrics.OTelCollector {
	return v.metrics
}

func (v *mocked) MetricReader() *sdkMetric.ManualReader {
	return v.reader
}

func (v *mocked) SpanRecorder() *tracetest.SpanRecorder {
	return v.spans
}
