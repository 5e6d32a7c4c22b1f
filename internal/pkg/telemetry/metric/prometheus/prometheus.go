// Package prometheus exposes OpenTelemetry metrics in the Prometheus format.
package prometheus

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	exporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkMetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/keboola/processing-plant/internal/pkg/log"
	"github.com/keboola/processing-plant/internal/pkg/service/common/servicectx"
	"github.com/keboola/processing-plant/internal/pkg/utils/errors"
)

const (
	Endpoint          = "/metrics"
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// ServeMetrics creates the meter provider and starts the HTTP server with the metrics endpoint.
// The server is stopped on the process shutdown. If the listenAddr is empty, the metrics are collected, but not served.
func ServeMetrics(ctx context.Context, serviceName, listenAddr string, logger log.Logger, proc *servicectx.Process) (metric.MeterProvider, error) {
	logger = logger.WithComponent("metrics")

	registry := prometheus.NewRegistry()
	exp, err := exporter.New(exporter.WithRegisterer(registry), exporter.WithoutScopeInfo())
	if err != nil {
		return nil, errors.Errorf("cannot create metrics exporter: %w", err)
	}

	provider := sdkMetric.NewMeterProvider(
		sdkMetric.WithReader(exp),
		sdkMetric.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	proc.OnShutdown(func(ctx context.Context) {
		if err := provider.Shutdown(ctx); err != nil {
			logger.Errorf(ctx, "cannot shutdown meter provider: %s", err)
		}
	})

	if listenAddr == "" {
		logger.Info(ctx, "metrics endpoint is disabled")
		return provider, nil
	}

	handler := http.NewServeMux()
	handler.Handle(Endpoint, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv := &http.Server{Addr: listenAddr, Handler: handler, ReadHeaderTimeout: readHeaderTimeout}

	proc.Add(func(ctx context.Context, _ chan<- error) {
		logger.Infof(ctx, `metrics HTTP server listening on "%s%s"`, listenAddr, Endpoint)
		// ListenAndServe blocks while the server is running
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			proc.Shutdown(errors.Errorf("metrics HTTP server error: %w", err))
		}
	})

	proc.OnShutdown(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		logger.Info(ctx, "shutting down metrics HTTP server")
		if err := srv.Shutdown(ctx); err != nil {
			logger.Errorf(ctx, `metrics HTTP server shutdown error: %s`, err)
		}
		logger.Info(ctx, "metrics HTTP server shutdown finished")
	})

	return provider, nil
}
