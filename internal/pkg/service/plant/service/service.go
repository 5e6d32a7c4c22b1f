// Package service is the entry point of the processing plant node.
//
// The Service wires the job card coordinator, the outcome distribution and the watchdog,
// and maintains the episode caches when actionable tasks are registered.
package service

import (
	"context"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/processing-plant/internal/pkg/log"
	"github.com/keboola/processing-plant/internal/pkg/service/common/servicectx"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/config"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/dependencies"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/episode"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/fulfilment"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/outcome"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/registry"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/watchdog"
	"github.com/keboola/processing-plant/internal/pkg/telemetry"
	"github.com/keboola/processing-plant/internal/pkg/utils/errors"
)

const spanPrefix = "keboola.go.plant.service."

type Service struct {
	config       config.Config
	clock        clockwork.Clock
	logger       log.Logger
	telemetry    telemetry.Telemetry
	proc         *servicectx.Process
	coordinator  *fulfilment.Coordinator
	distributor  *outcome.Distributor
	watchdog     *watchdog.Watchdog
	actionable   *registry.ActionableTasks
	finalisation *episode.FinalisationCache
	activity     *episode.ActivityMatrix
}

func New(d dependencies.ServiceScope) *Service {
	return &Service{
		config:       d.Config(),
		clock:        d.Clock(),
		logger:       d.Logger().WithComponent("plant"),
		telemetry:    d.Telemetry(),
		proc:         d.Process(),
		coordinator:  fulfilment.NewCoordinator(d),
		distributor:  outcome.NewDistributor(d.Logger(), d.ActionableTasks()),
		watchdog:     watchdog.New(d, d.Config().Watchdog),
		actionable:   d.ActionableTasks(),
		finalisation: d.FinalisationCache(),
		activity:     d.ActivityMatrix(),
	}
}

// Start starts the watchdog, if it is enabled. The watchdog is stopped on the process shutdown.
func (s *Service) Start(ctx context.Context) {
	if !s.config.Watchdog.Enabled {
		s.logger.Info(ctx, "watchdog is disabled")
		return
	}
	s.watchdog.Start(ctx)
	s.proc.OnShutdown(func(ctx context.Context) {
		s.watchdog.Stop(ctx)
	})
}

func (s *Service) Coordinator() *fulfilment.Coordinator {
	return s.coordinator
}

func (s *Service) Watchdog() *watchdog.Watchdog {
	return s.watchdog
}

// RegisterIngressQueue adds a bounded ingress queue of the worker, its depth is reported by the watchdog.
func (s *Service) RegisterIngressQueue(id model.ComponentID, probe watchdog.QueueProbe) {
	s.watchdog.RegisterQueue(id, probe)
}

// RegisterActionableTask registers the task and starts tracking of its episode.
// An already registered task is returned unchanged.
func (s *Service) RegisterActionableTask(ctx context.Context, task *model.ActionableTask) (*model.ActionableTask, error) {
	if task == nil || task.ID == "" {
		err := errors.Wrap(fulfilment.ErrInvalidRequest, "actionable task ID is missing")
		s.logger.Warnf(ctx, "cannot register actionable task: %s", err)
		return nil, err
	}

	stored, added := s.actionable.Register(task)
	if added {
		s.finalisation.Register(stored.Episode())
		s.activity.Touch(stored.Episode(), s.clock.Now())
		s.logger.With(attribute.String("actionableTask.id", stored.ID.String())).Debugf(ctx, `registered actionable task, reason "%s"`, stored.Reason)
	}
	return stored, nil
}

// UnregisterActionableTask removes the task, nil is returned if the task is not registered.
// The episode caches are kept, they are cleaned by the watchdog.
func (s *Service) UnregisterActionableTask(ctx context.Context, id model.TaskID) *model.ActionableTask {
	task := s.actionable.Unregister(id)
	if task != nil {
		s.logger.With(attribute.String("actionableTask.id", id.String())).Debug(ctx, "unregistered actionable task")
	}
	return task
}

// CollectOutcomesAndCreateNewTasks creates and registers one actionable task for each egress payload of the task.
//
// Each new task is recorded as a downstream episode of the parent episode.
// When all of them are registered, the parent episode is marked as complete, so the watchdog can finalise it.
func (s *Service) CollectOutcomesAndCreateNewTasks(ctx context.Context, task *model.FulfillmentTask) (out []*model.ActionableTask) {
	ctx, span := s.telemetry.Tracer().Start(ctx, spanPrefix+"CollectOutcomesAndCreateNewTasks")
	defer span.End(nil)

	children := s.distributor.CollectOutcomesAndCreateNewTasks(ctx, task)
	if task == nil {
		return nil
	}

	now := s.clock.Now()
	parent := model.EpisodeFor(task.ActionableTaskID)
	tracked := task.Fulfillment != nil && s.finalisation.Has(parent)

	for _, child := range children {
		if tracked {
			s.finalisation.RegisterDownstream(parent, child.Episode())
		}

		stored, _ := s.actionable.Register(child)
		s.finalisation.Register(stored.Episode())
		s.activity.Touch(stored.Episode(), now)

		if tracked {
			s.finalisation.MarkDownstreamRegistered(parent, stored.Episode())
		}
		out = append(out, stored)
	}

	if tracked {
		s.finalisation.MarkAllDownstreamRegistered(parent)
		s.activity.Touch(parent, now)
	}

	span.SetAttributes(attribute.Int("outcomes", len(out)))
	return out
}
