// Package watchdog periodically reconciles the plant caches.
//
// Each run finalises completed episodes, purges cancelled and discarded attempts,
// purges aged activity entries and reports the cache status.
// Runs never overlap, a tick arriving during a run is skipped.
package watchdog

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/atomic"

	"github.com/keboola/processing-plant/internal/pkg/log"
	"github.com/keboola/processing-plant/internal/pkg/service/common/distribution"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/audit"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/config"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/episode"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/jobcard"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/metrics"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/registry"
	"github.com/keboola/processing-plant/internal/pkg/telemetry"
	"github.com/keboola/processing-plant/internal/pkg/utils/errors"
)

const spanPrefix = "keboola.go.plant.watchdog."

// QueueProbe returns the current number of messages in a bounded ingress queue.
type QueueProbe func() int

// RunResult contains counts of one run.
type RunResult struct {
	// Skipped is true if the previous run was still in progress.
	Skipped bool
	// Finalised episodes owned by this node.
	Finalised int
	// FinalisedElsewhere episodes owned by another node.
	FinalisedElsewhere int
	// Deferred episodes have an attempt in flight.
	Deferred int
	// Failed episodes are retried on the next run.
	Failed int
	// AuditRecords written.
	AuditRecords int
	// PurgedParcels dropped without an audit record.
	PurgedParcels int
	// ReclaimedJobCards marked to be discarded.
	ReclaimedJobCards int
	// PurgedActivity entries older than the retention.
	PurgedActivity int
}

func (r RunResult) IsEmpty() bool {
	return r == RunResult{}
}

type Watchdog struct {
	config       config.WatchdogConfig
	clock        clockwork.Clock
	logger       log.Logger
	telemetry    telemetry.Telemetry
	nodeID       model.ComponentID
	assigner     *distribution.Assigner
	audit        audit.Sink
	metrics      metrics.Collector
	jobCards     *jobcard.Registry
	actionable   *registry.ActionableTasks
	fulfillment  *registry.FulfillmentTasks
	parcels      *episode.Parcels
	finalisation *episode.FinalisationCache
	activity     *episode.ActivityMatrix

	runLock *sync.Mutex
	runs    *atomic.Int64
	skipped *atomic.Int64

	queuesLock *sync.Mutex
	queues     map[model.ComponentID]QueueProbe

	startLock *sync.Mutex
	cancel    context.CancelFunc
	wg        *sync.WaitGroup
}

type dependencies interface {
	Clock() clockwork.Clock
	Logger() log.Logger
	Telemetry() telemetry.Telemetry
	NodeID() string
	Distribution() *distribution.Assigner
	AuditSink() audit.Sink
	MetricsCollector() metrics.Collector
	JobCards() *jobcard.Registry
	ActionableTasks() *registry.ActionableTasks
	FulfillmentTasks() *registry.FulfillmentTasks
	Parcels() *episode.Parcels
	FinalisationCache() *episode.FinalisationCache
	ActivityMatrix() *episode.ActivityMatrix
}

func New(d dependencies, cfg config.WatchdogConfig) *Watchdog {
	return &Watchdog{
		config:       cfg,
		clock:        d.Clock(),
		logger:       d.Logger().WithComponent("watchdog"),
		telemetry:    d.Telemetry(),
		nodeID:       model.ComponentID(d.NodeID()),
		assigner:     d.Distribution(),
		audit:        d.AuditSink(),
		metrics:      d.MetricsCollector(),
		jobCards:     d.JobCards(),
		actionable:   d.ActionableTasks(),
		fulfillment:  d.FulfillmentTasks(),
		parcels:      d.Parcels(),
		finalisation: d.FinalisationCache(),
		activity:     d.ActivityMatrix(),
		runLock:      &sync.Mutex{},
		runs:         atomic.NewInt64(0),
		skipped:      atomic.NewInt64(0),
		queuesLock:   &sync.Mutex{},
		queues:       make(map[model.ComponentID]QueueProbe),
		startLock:    &sync.Mutex{},
		wg:           &sync.WaitGroup{},
	}
}

// RegisterQueue adds a probe of an ingress queue, its depth is reported on each run.
func (w *Watchdog) RegisterQueue(id model.ComponentID, probe QueueProbe) {
	w.queuesLock.Lock()
	defer w.queuesLock.Unlock()
	w.queues[id] = probe
}

// Runs returns the number of completed runs.
func (w *Watchdog) Runs() int64 {
	return w.runs.Load()
}

// Skipped returns the number of skipped runs.
func (w *Watchdog) Skipped() int64 {
	return w.skipped.Load()
}

// Start runs the watchdog after the initial delay and then periodically, until Stop is called or the ctx is done.
// Start of an already started watchdog is ignored.
func (w *Watchdog) Start(ctx context.Context) {
	w.startLock.Lock()
	defer w.startLock.Unlock()
	if w.cancel != nil {
		return
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.logger.Infof(ctx, "watchdog started, initial delay %s, period %s", w.config.InitialDelay, w.config.Period)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		select {
		case <-ctx.Done():
			return
		case <-w.clock.After(w.config.InitialDelay):
		}

		ticker := w.clock.NewTicker(w.config.Period)
		defer ticker.Stop()

		w.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				w.tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the running run.
func (w *Watchdog) Stop(ctx context.Context) {
	w.startLock.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.startLock.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	w.wg.Wait()
	w.logger.Info(ctx, "watchdog stopped")
}

// tick starts the run in the background, so a long run does not delay the ticker.
func (w *Watchdog) tick(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.Errorf(ctx, "watchdog run failed: %s", err)
		}
	}()
}

// RunOnce reconciles the caches. If a run is already in progress, the call is skipped.
// Errors of individual episodes are collected, the episodes are retried on the next run.
func (w *Watchdog) RunOnce(ctx context.Context) (result RunResult, err error) {
	if !w.runLock.TryLock() {
		w.skipped.Inc()
		w.logger.Info(ctx, "watchdog run skipped, the previous run is still in progress")
		return RunResult{Skipped: true}, nil
	}
	defer w.runLock.Unlock()

	ctx, span := w.telemetry.Tracer().Start(ctx, spanPrefix+"RunOnce")
	defer span.End(&err)

	startTime := w.clock.Now()
	errs := errors.NewMultiError()

	w.finalise(ctx, &result, errs)
	w.purgeCancelled(ctx, &result)
	w.purgeDiscarded(ctx, &result)
	w.purgeAged(ctx, &result)
	w.reportMetrics(ctx)

	w.runs.Inc()
	span.SetAttributes(
		attribute.Int("finalised", result.Finalised),
		attribute.Int("finalisedElsewhere", result.FinalisedElsewhere),
		attribute.Int("purgedParcels", result.PurgedParcels),
	)

	if !result.IsEmpty() {
		w.logger.WithDuration(w.clock.Since(startTime)).Infof(
			ctx,
			`watchdog run finished, finalised "%d", finalised elsewhere "%d", deferred "%d", failed "%d", purged parcels "%d", reclaimed job cards "%d", purged activity "%d"`,
			result.Finalised, result.FinalisedElsewhere, result.Deferred, result.Failed, result.PurgedParcels, result.ReclaimedJobCards, result.PurgedActivity,
		)
	}

	return result, errs.ErrorOrNil()
}
