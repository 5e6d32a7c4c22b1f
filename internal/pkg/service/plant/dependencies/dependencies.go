// Package dependencies provides dependencies for the processing plant node.
//
// # Dependency Containers
//
// This package extends the common approach of the repository:
// a component declares a small "dependencies" interface with the methods it needs,
// the ServiceScope implements all of them, so the scope can be passed to any component constructor.
//
// The ServiceScope is created once per node, see NewServiceScope.
// Tests use NewMocked, it provides in-memory implementations of all outbound interfaces.
package dependencies

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/keboola/processing-plant/internal/pkg/log"
	"github.com/keboola/processing-plant/internal/pkg/service/common/distribution"
	"github.com/keboola/processing-plant/internal/pkg/service/common/etcdclient"
	"github.com/keboola/processing-plant/internal/pkg/service/common/servicectx"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/audit"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/config"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/episode"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/jobcard"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/lease"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/metrics"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/registry"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/topology"
	"github.com/keboola/processing-plant/internal/pkg/telemetry"
)

// ServiceScope contains all dependencies of the processing plant node.
type ServiceScope interface {
	Clock() clockwork.Clock
	Logger() log.Logger
	Telemetry() telemetry.Telemetry
	Process() *servicectx.Process
	Config() config.Config
	NodeID() string
	ClusterName() string
	Topology() topology.Resolver
	LeaseStore() lease.Store
	AuditSink() audit.Sink
	MetricsCollector() metrics.Collector
	Distribution() *distribution.Assigner
	JobCards() *jobcard.Registry
	ActionableTasks() *registry.ActionableTasks
	FulfillmentTasks() *registry.FulfillmentTasks
	Parcels() *episode.Parcels
	FinalisationCache() *episode.FinalisationCache
	ActivityMatrix() *episode.ActivityMatrix
}

// serviceScope implements ServiceScope interface.
type serviceScope struct {
	clock        clockwork.Clock
	logger       log.Logger
	telemetry    telemetry.Telemetry
	proc         *servicectx.Process
	config       config.Config
	topology     topology.Resolver
	leases       lease.Store
	audit        audit.Sink
	metrics      metrics.Collector
	distribution *distribution.Assigner
	jobCards     *jobcard.Registry
	actionable   *registry.ActionableTasks
	fulfillment  *registry.FulfillmentTasks
	parcels      *episode.Parcels
	finalisation *episode.FinalisationCache
	activity     *episode.ActivityMatrix
}

// NewServiceScope creates the node dependencies.
// If etcd is enabled, the cluster and system scope claims are stored in etcd, otherwise in memory.
func NewServiceScope(ctx context.Context, proc *servicectx.Process, cfg config.Config, logger log.Logger, tel telemetry.Telemetry) (v ServiceScope, err error) {
	ctx, span := tel.Tracer().Start(ctx, "keboola.go.plant.dependencies.NewServiceScope")
	defer span.End(&err)

	d := newScope(cfg, clockwork.NewRealClock(), logger, tel, proc)

	// Topology
	cached, err := topology.NewCached(topology.NewStatic(cfg.WorkerConfigs()), cfg.Topology.CacheTTL)
	if err != nil {
		return nil, err
	}
	proc.OnShutdown(func(ctx context.Context) {
		cached.Close()
	})
	d.topology = cached

	// Claims
	if cfg.Etcd.Enabled {
		client, err := etcdclient.New(ctx, proc, cfg.Etcd, etcdclient.WithLogger(logger))
		if err != nil {
			return nil, err
		}

		// The session is closed before the client, callbacks are invoked in LIFO order
		sessionCtx, sessionCancel := context.WithCancel(context.WithoutCancel(ctx))
		wg := &sync.WaitGroup{}
		proc.OnShutdown(func(ctx context.Context) {
			sessionCancel()
			wg.Wait()
		})

		store, err := lease.NewEtcdStore(sessionCtx, wg, logger, client, cfg.Etcd.LeaseTTLSeconds)
		if err != nil {
			return nil, err
		}
		d.leases = store
	} else {
		d.leases = lease.NewMemoryStore()
	}

	d.audit = audit.NewLogSink(logger)
	d.metrics = metrics.NewOTelCollector(tel.Meter())
	return d, nil
}

// newScope creates the in-memory caches, outbound dependencies are set by the caller.
func newScope(cfg config.Config, clock clockwork.Clock, logger log.Logger, tel telemetry.Telemetry, proc *servicectx.Process) *serviceScope {
	return &serviceScope{
		clock:        clock,
		logger:       logger,
		telemetry:    tel,
		proc:         proc,
		config:       cfg,
		distribution: distribution.NewAssigner(cfg.NodeID, cfg.Cluster.Nodes...),
		jobCards:     jobcard.NewRegistry(logger),
		actionable:   registry.NewActionableTasks(),
		fulfillment:  registry.NewFulfillmentTasks(),
		parcels:      episode.NewParcels(),
		finalisation: episode.NewFinalisationCache(),
		activity:     episode.NewActivityMatrix(),
	}
}

func (v *serviceScope) Clock() clockwork.Clock {
	return v.clock
}

func (v *serviceScope) Logger() log.Logger {
	return v.logger
}

func (v *serviceScope) Telemetry() telemetry.Telemetry {
	return v.telemetry
}

func (v *serviceScope) Process() *servicectx.Process {
	return v.proc
}

func (v *serviceScope) Config() config.Config {
	return v.config
}

func (v *serviceScope) NodeID() string {
	return v.config.NodeID
}

func (v *serviceScope) ClusterName() string {
	return v.config.ClusterName
}

func (v *serviceScope) Topology() topology.Resolver {
	return v.topology
}

func (v *serviceScope) LeaseStore() lease.Store {
	return v.leases
}

func (v *serviceScope) AuditSink() audit.Sink {
	return v.audit
}

func (v *serviceScope) MetricsCollector() metrics.Collector {
	return v.metrics
}

func (v *serviceScope) Distribution() *distribution.Assigner {
	return v.distribution
}

func (v *serviceScope) JobCards() *jobcard.Registry {
	return v.jobCards
}

func (v *serviceScope) ActionableTasks() *registry.ActionableTasks {
	return v.actionable
}

func (v *serviceScope) FulfillmentTasks() *registry.FulfillmentTasks {
	return v.fulfillment
}

func (v *serviceScope) Parcels() *episode.Parcels {
	return v.parcels
}

func (v *serviceScope) FinalisationCache() *episode.FinalisationCache {
	return v.finalisation
}

func (v *serviceScope) ActivityMatrix() *episode.ActivityMatrix {
	return v.activity
}
