// Package fulfilment implements the job card admission protocol.
//
// The Coordinator owns the GrantAuthority, it is the only writer of the granted job card status.
// A worker glue registers a fulfillment task, requests status changes and unregisters the task at the end.
//
// Exclusive policies never grant two live cards of one worker:
// the local check-and-add is atomic in the job card registry,
// the cluster and system scopes are additionally guarded by a claim in the lease store.
// A busy worker is refused, the card is returned with the UNREGISTERED status and the reason.
//
// No lock is held during the topology lookup or the lease store calls.
package fulfilment

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/processing-plant/internal/pkg/log"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/episode"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/jobcard"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/lease"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/policy"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/registry"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/topology"
	"github.com/keboola/processing-plant/internal/pkg/telemetry"
	"github.com/keboola/processing-plant/internal/pkg/utils/errors"
)

const spanPrefix = "keboola.go.plant.fulfilment."

// ErrInvalidRequest is returned if a required identifier is missing, no state is modified.
var ErrInvalidRequest = errors.New("invalid request")

type Coordinator struct {
	clock        clockwork.Clock
	logger       log.Logger
	telemetry    telemetry.Telemetry
	clusterName  string
	authority    *model.GrantAuthority
	topology     topology.Resolver
	leases       lease.Store
	jobCards     *jobcard.Registry
	tasks        *registry.FulfillmentTasks
	parcels      *episode.Parcels
	finalisation *episode.FinalisationCache
	activity     *episode.ActivityMatrix
}

type dependencies interface {
	Clock() clockwork.Clock
	Logger() log.Logger
	Telemetry() telemetry.Telemetry
	ClusterName() string
	Topology() topology.Resolver
	LeaseStore() lease.Store
	JobCards() *jobcard.Registry
	FulfillmentTasks() *registry.FulfillmentTasks
	Parcels() *episode.Parcels
	FinalisationCache() *episode.FinalisationCache
	ActivityMatrix() *episode.ActivityMatrix
}

func NewCoordinator(d dependencies) *Coordinator {
	return &Coordinator{
		clock:        d.Clock(),
		logger:       d.Logger().WithComponent("fulfilment"),
		telemetry:    d.Telemetry(),
		clusterName:  d.ClusterName(),
		authority:    model.NewGrantAuthority("fulfilment.coordinator"),
		topology:     d.Topology(),
		leases:       d.LeaseStore(),
		jobCards:     d.JobCards(),
		tasks:        d.FulfillmentTasks(),
		parcels:      d.Parcels(),
		finalisation: d.FinalisationCache(),
		activity:     d.ActivityMatrix(),
	}
}

// RegisterFulfillmentTask creates the job card of the attempt and registers the fulfillment task.
//
// The granted status is REGISTERED, or EXECUTING for a non-exclusive policy.
// If the worker is busy under an exclusive policy, the returned card stays UNREGISTERED,
// the CurrentStateReason contains the reason and nothing is stored.
// Registration of an already registered fulfillment task returns the existing card.
func (c *Coordinator) RegisterFulfillmentTask(ctx context.Context, actionable *model.ActionableTask, task *model.FulfillmentTask) (card *model.JobCard, err error) {
	ctx, span := c.telemetry.Tracer().Start(ctx, spanPrefix+"RegisterFulfillmentTask")
	defer span.End(&err)

	if err = c.validateRegistration(actionable, task); err != nil {
		c.logger.Warnf(ctx, "cannot register fulfillment task: %s", err)
		return nil, err
	}

	task = task.Clone()
	task.ActionableTaskID = actionable.ID
	logger := c.taskLogger(task.ID, task.Worker())
	span.SetAttributes(attribute.String("fulfillmentTask.id", task.ID.String()), attribute.String("worker.id", task.Worker().String()))

	// At-least-once delivery
	if existing := c.jobCards.GetJobCardForFulfillmentTask(task.ID); existing != nil {
		logger.Debugf(ctx, `fulfillment task is already registered, status "%s"`, existing.Status.Granted())
		return existing, nil
	}

	// Resolve policy, outside any lock
	p := c.resolvePolicy(ctx, logger, task.Worker())
	span.SetAttributes(attribute.String("policy", p.String()))

	// Grant the status before the card is added, so the exclusivity check sees a live card
	now := c.clock.Now()
	target := model.StatusRegistered
	if p.DirectExecution {
		target = model.StatusExecuting
	}
	card = model.NewJobCard(task, now)
	card.ClusterMode = p.Concurrency
	card.SystemMode = p.Resilience
	card.Status.Requested = target
	c.authority.Grant(card, target, "registered", now)

	// Local registration
	if p.Exclusive {
		if added, blocking := c.jobCards.TryAddExclusive(ctx, card); !added {
			reason := "worker is busy"
			if blocking != nil {
				reason = `worker is busy with fulfillment task "` + blocking.FulfillmentTaskID.String() + `"`
			}
			return c.refuse(ctx, logger, card, reason), nil
		}
	} else if !c.jobCards.AddJobCard(ctx, card) {
		return nil, errors.Wrap(ErrInvalidRequest, "job card key is missing")
	}

	// Cluster or system registration, outside any lock
	if key := lease.Key(p.Scope, c.clusterName, card.WorkUnitProcessor); key != "" {
		acquired, holder, err := c.leases.TryAcquire(ctx, key, card.FulfillmentTaskID.String())
		if err != nil || !acquired {
			c.jobCards.RemoveJobCard(card)
			reason := `worker is busy with fulfillment task "` + holder + `" in the ` + string(p.Scope) + ` scope`
			if err != nil {
				logger.Warnf(ctx, "cannot acquire claim: %s", err)
				reason = "cannot acquire claim: " + err.Error()
			}
			return c.refuse(ctx, logger, card, reason), nil
		}
	}

	if p.PinFocus {
		c.jobCards.PinFocus(card)
	}

	// Register the task and the parcel
	c.applyStatus(task, target, now)
	if _, added := c.tasks.Register(task); !added {
		c.tasks.Update(task.ID, func(v *model.FulfillmentTask) {
			c.applyStatus(v, target, now)
		})
	}

	ep := model.EpisodeFor(actionable.ID)
	c.parcels.Put(&episode.Parcel{
		EpisodeID:           ep,
		FulfillmentTaskID:   card.FulfillmentTaskID,
		ActionableTaskID:    card.ActionableTaskID,
		WorkUnitProcessor:   card.WorkUnitProcessor,
		Status:              target,
		RegistrationInstant: now,
	})
	c.finalisation.Register(ep)
	c.activity.Touch(ep, now)

	logger.Infof(ctx, `registered job card, policy "%s", status "%s"`, p, target)
	return card.Clone(), nil
}

// RequestExecutionStatusChange grants or rejects the Requested status of the card.
// A rejected request keeps the granted status, the reason is recorded in the CurrentStateReason.
// FINALISED and the *_ELSEWHERE statuses are never granted on a worker request.
func (c *Coordinator) RequestExecutionStatusChange(ctx context.Context, request *model.JobCard) (card *model.JobCard, err error) {
	ctx, span := c.telemetry.Tracer().Start(ctx, spanPrefix+"RequestExecutionStatusChange")
	defer span.End(&err)

	if request == nil || request.FulfillmentTaskID == "" {
		err = errors.Wrap(ErrInvalidRequest, "fulfillment task ID is missing")
		c.logger.Warnf(ctx, "cannot change status: %s", err)
		return nil, err
	}

	if request.IsToBeDiscarded {
		return c.discard(ctx, request.FulfillmentTaskID)
	}

	logger := c.taskLogger(request.FulfillmentTaskID, request.WorkUnitProcessor)
	now := c.clock.Now()
	requested := request.Status.Requested

	card = c.jobCards.GetJobCardForFulfillmentTask(request.FulfillmentTaskID)
	if card == nil {
		card = request.Clone()
		c.authority.Reject(card, "job card is not registered", now)
		logger.Debugf(ctx, `status change to "%s" rejected, job card is not registered`, requested)
		return card, nil
	}

	current := card.Status.Granted()
	card.Status.Requested = requested
	if requested == current {
		return card, nil
	}

	if requested.IsGrantedByWatchdog() {
		reason := `status "` + requested.String() + `" is granted by the watchdog only`
		c.authority.Reject(card, reason, now)
		c.jobCards.UpdateJobCard(card)
		logger.Infof(ctx, "status change rejected: %s", reason)
		return card, nil
	}

	if !model.CanTransition(current, requested) {
		reason := `transition from "` + current.String() + `" to "` + requested.String() + `" is not allowed`
		c.authority.Reject(card, reason, now)
		c.jobCards.UpdateJobCard(card)
		logger.Infof(ctx, "status change rejected: %s", reason)
		return card, nil
	}

	c.authority.Grant(card, requested, "granted", now)
	c.jobCards.UpdateJobCard(card)
	c.tasks.Update(card.FulfillmentTaskID, func(v *model.FulfillmentTask) {
		c.applyStatus(v, requested, now)
	})
	ep := model.EpisodeFor(card.ActionableTaskID)
	c.parcels.SetStatus(ep, card.FulfillmentTaskID, requested)
	c.activity.Touch(ep, now)

	if !requested.IsInFlight() {
		c.releaseClaim(ctx, logger, card)
	}

	logger.Infof(ctx, `status changed from "%s" to "%s"`, current, requested)
	return card, nil
}

// UnregisterFulfillmentTask ends the attempt. An in-flight card is cancelled.
// The job card is removed before the fulfillment task. The parcel stays for the watchdog.
// Nil is returned if the task has no job card.
func (c *Coordinator) UnregisterFulfillmentTask(ctx context.Context, task *model.FulfillmentTask) (card *model.JobCard, err error) {
	ctx, span := c.telemetry.Tracer().Start(ctx, spanPrefix+"UnregisterFulfillmentTask")
	defer span.End(&err)

	if task == nil || task.ID == "" {
		err = errors.Wrap(ErrInvalidRequest, "fulfillment task ID is missing")
		c.logger.Warnf(ctx, "cannot unregister fulfillment task: %s", err)
		return nil, err
	}

	logger := c.taskLogger(task.ID, task.Worker())
	now := c.clock.Now()

	card = c.jobCards.GetJobCardForFulfillmentTask(task.ID)
	if card == nil {
		c.tasks.Unregister(task.ID)
		logger.Debug(ctx, "fulfillment task has no job card")
		return nil, nil
	}

	status := card.Status.Granted()
	if status.IsInFlight() || status == model.StatusUnregistered {
		status = model.StatusCancelled
		c.authority.Grant(card, status, "unregistered", now)
	}

	// Job card before the task
	c.jobCards.RemoveJobCard(card)
	c.tasks.Unregister(task.ID)
	ep := model.EpisodeFor(card.ActionableTaskID)
	c.parcels.SetStatus(ep, card.FulfillmentTaskID, status)
	c.activity.Touch(ep, now)
	c.releaseClaim(ctx, logger, card)

	logger.Infof(ctx, `unregistered fulfillment task, status "%s"`, status)
	return card, nil
}

// DiscardFulfillmentTask ends the attempt with the "no processing required" outcome.
// The card is granted FINISHED and marked to be discarded, it is reclaimed by the watchdog.
func (c *Coordinator) DiscardFulfillmentTask(ctx context.Context, task *model.FulfillmentTask) (card *model.JobCard, err error) {
	if task == nil || task.ID == "" {
		err = errors.Wrap(ErrInvalidRequest, "fulfillment task ID is missing")
		c.logger.Warnf(ctx, "cannot discard fulfillment task: %s", err)
		return nil, err
	}
	return c.discard(ctx, task.ID)
}

func (c *Coordinator) discard(ctx context.Context, id model.TaskID) (card *model.JobCard, err error) {
	ctx, span := c.telemetry.Tracer().Start(ctx, spanPrefix+"DiscardFulfillmentTask")
	defer span.End(&err)

	card = c.jobCards.GetJobCardForFulfillmentTask(id)
	if card == nil {
		c.logger.Debugf(ctx, `cannot discard fulfillment task "%s", job card is not registered`, id)
		return nil, nil
	}

	logger := c.taskLogger(card.FulfillmentTaskID, card.WorkUnitProcessor)
	now := c.clock.Now()

	card.IsToBeDiscarded = true
	card.Status.Requested = model.StatusFinished
	c.authority.Grant(card, model.StatusFinished, "no processing required", now)
	c.jobCards.UpdateJobCard(card)
	c.tasks.Update(id, func(v *model.FulfillmentTask) {
		c.applyStatus(v, model.StatusFinished, now)
		v.WorkItem.Outcome = model.OutcomeNoProcessingRequired
	})
	ep := model.EpisodeFor(card.ActionableTaskID)
	c.parcels.SetStatus(ep, id, model.StatusFinished)
	c.finalisation.MarkAllDownstreamRegistered(ep)
	c.activity.Touch(ep, now)
	c.releaseClaim(ctx, logger, card)

	logger.Info(ctx, "fulfillment task discarded, no processing required")
	return card, nil
}

func (c *Coordinator) validateRegistration(actionable *model.ActionableTask, task *model.FulfillmentTask) error {
	switch {
	case actionable == nil || actionable.ID == "":
		return errors.Wrap(ErrInvalidRequest, "actionable task ID is missing")
	case task == nil || task.ID == "":
		return errors.Wrap(ErrInvalidRequest, "fulfillment task ID is missing")
	case task.Worker() == "":
		return errors.Wrap(ErrInvalidRequest, "worker ID is missing")
	case task.ActionableTaskID != "" && task.ActionableTaskID != actionable.ID:
		return errors.Wrapf(ErrInvalidRequest, `fulfillment task belongs to actionable task "%s", not "%s"`, task.ActionableTaskID, actionable.ID)
	default:
		return nil
	}
}

// resolvePolicy never fails, an unknown worker or a lookup error degrades to the unset modes.
func (c *Coordinator) resolvePolicy(ctx context.Context, logger log.Logger, worker model.ComponentID) policy.Policy {
	cfg, err := c.topology.ResolveWorkerConfig(ctx, worker)
	if err != nil {
		logger.Debugf(ctx, "cannot resolve worker config, using defaults: %s", err)
		cfg = model.WorkerConfig{}
	}

	p := policy.DecideFor(cfg)
	if p.Degraded {
		logger.Debugf(ctx, `worker modes "%s/%s" degraded to "%s"`, cfg.Resilience, cfg.Concurrency, p)
	}
	return p
}

func (c *Coordinator) refuse(ctx context.Context, logger log.Logger, card *model.JobCard, reason string) *model.JobCard {
	c.authority.Revoke(card, reason, c.clock.Now())
	logger.Infof(ctx, "registration refused: %s", reason)
	return card
}

func (c *Coordinator) releaseClaim(ctx context.Context, logger log.Logger, card *model.JobCard) {
	p := policy.Decide(card.SystemMode, card.ClusterMode)
	if key := lease.Key(p.Scope, c.clusterName, card.WorkUnitProcessor); key != "" {
		if err := c.leases.Release(ctx, key, card.FulfillmentTaskID.String()); err != nil {
			logger.Warnf(ctx, "cannot release claim: %s", err)
		}
	}
}

// applyStatus sets the fulfillment status and the stage timestamps.
func (c *Coordinator) applyStatus(task *model.FulfillmentTask, status model.ExecutionStatus, now time.Time) {
	if task.Fulfillment == nil {
		task.Fulfillment = &model.TaskFulfillment{}
	}
	task.Fulfillment.Status = status
	task.Fulfillment.LastCheckedInstant = &now
	switch status {
	case model.StatusRegistered:
		task.Fulfillment.Advance(model.StageRegistration, now)
	case model.StatusInitiated:
		task.Fulfillment.Advance(model.StageReady, now)
	case model.StatusExecuting:
		task.Fulfillment.Advance(model.StageStart, now)
	case model.StatusFinished, model.StatusFailed, model.StatusCancelled:
		task.Fulfillment.Advance(model.StageFinish, now)
	case model.StatusFinalised:
		task.Fulfillment.Advance(model.StageFinalisation, now)
	default:
	}
}

func (c *Coordinator) taskLogger(id model.TaskID, worker model.ComponentID) log.Logger {
	return c.logger.With(attribute.String("fulfillmentTask.id", id.String()), attribute.String("worker.id", worker.String()))
}
