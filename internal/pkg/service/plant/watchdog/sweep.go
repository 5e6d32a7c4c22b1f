package watchdog

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/processing-plant/internal/pkg/service/common/utctime"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/audit"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/episode"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
	"github.com/keboola/processing-plant/internal/pkg/utils/errors"
)

// finalise processes all finalisable episodes, each in its own guarded call.
func (w *Watchdog) finalise(ctx context.Context, result *RunResult, errs errors.MultiError) {
	for _, ep := range w.finalisation.Finalisable() {
		if ctx.Err() != nil {
			errs.Append(ctx.Err())
			return
		}

		parcels := w.parcels.Episode(ep)
		if hasInFlight(parcels) {
			result.Deferred++
			continue
		}

		if err := w.finaliseEpisode(ctx, ep, parcels, result); err != nil {
			result.Failed++
			w.logger.With(attribute.String("episode.id", ep.String())).Errorf(ctx, "cannot finalise episode: %s", err)
			errs.Append(errors.Errorf(`cannot finalise episode "%s": %w`, ep, err))
		}
	}
}

func (w *Watchdog) finaliseEpisode(ctx context.Context, ep model.EpisodeID, parcels []*episode.Parcel, result *RunResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()

	owner, err := w.assigner.IsOwner(ep.String())
	if err != nil {
		return err
	}

	now := w.clock.Now()
	if owner {
		for _, parcel := range parcels {
			if parcel.Status.IsHandledElsewhere() {
				w.dropParcel(parcel)
				result.PurgedParcels++
				continue
			}
			w.finaliseParcel(ctx, parcel, now)
			result.AuditRecords++
		}
		result.Finalised++
		w.logger.With(attribute.String("episode.id", ep.String())).Debugf(ctx, `episode finalised, "%d" parcels`, len(parcels))
	} else {
		// Parcels are dropped by the purge
		for _, parcel := range parcels {
			w.parcels.Finalise(ep, parcel.FulfillmentTaskID, model.StatusFinalisedElsewhere, now)
		}
		result.FinalisedElsewhere++
		w.logger.With(attribute.String("episode.id", ep.String())).Debug(ctx, "episode is finalised by another node")
	}

	w.actionable.Unregister(model.TaskID(ep))
	w.finalisation.Remove(ep)
	w.activity.Remove(ep)
	return nil
}

// purgeCancelled drops cancelled and elsewhere-handled parcels without an audit record.
// Terminal siblings in the same episode are finalised first, active siblings are kept.
func (w *Watchdog) purgeCancelled(ctx context.Context, result *RunResult) {
	now := w.clock.Now()
	episodes := make(map[model.EpisodeID]bool)
	for _, parcel := range w.parcels.ByStatus(model.StatusCancelled, model.StatusFinishedElsewhere, model.StatusFinalisedElsewhere) {
		episodes[parcel.EpisodeID] = true
	}

	for ep := range episodes {
		for _, parcel := range w.parcels.Episode(ep) {
			switch parcel.Status {
			case model.StatusFinished, model.StatusFailed:
				w.finaliseParcel(ctx, parcel, now)
				result.AuditRecords++
			case model.StatusCancelled, model.StatusFinishedElsewhere, model.StatusFinalisedElsewhere:
				w.dropParcel(parcel)
				result.PurgedParcels++
			default:
			}
		}
	}
}

// purgeDiscarded reclaims job cards with the "no processing required" outcome.
func (w *Watchdog) purgeDiscarded(ctx context.Context, result *RunResult) {
	for _, card := range w.jobCards.All() {
		if !card.IsToBeDiscarded {
			continue
		}

		// Job card before the task
		w.jobCards.RemoveJobCard(card)
		w.fulfillment.Unregister(card.FulfillmentTaskID)
		w.parcels.Remove(model.EpisodeFor(card.ActionableTaskID), card.FulfillmentTaskID)
		result.ReclaimedJobCards++
		w.logger.With(attribute.String("fulfillmentTask.id", card.FulfillmentTaskID.String())).Debug(ctx, "discarded job card reclaimed")
	}
}

// purgeAged removes episodes without activity within the retention.
// Parcels are dropped with their job cards and tasks, then the actionable task and the finalisation entry.
func (w *Watchdog) purgeAged(ctx context.Context, result *RunResult) {
	if w.config.ActivityRetention <= 0 {
		return
	}
	purged := w.activity.PurgeOlderThan(w.clock.Now().Add(-w.config.ActivityRetention))
	result.PurgedActivity = len(purged)
	for _, ep := range purged {
		parcels := w.parcels.Episode(ep)
		for _, parcel := range parcels {
			w.dropParcel(parcel)
			result.PurgedParcels++
		}
		w.actionable.Unregister(model.TaskID(ep))
		w.finalisation.Remove(ep)
		w.logger.With(attribute.String("episode.id", ep.String())).Debugf(ctx, `aged episode purged, "%d" parcels`, len(parcels))
	}
}

func (w *Watchdog) reportMetrics(ctx context.Context) {
	w.metrics.ReportCacheStatus(ctx, w.nodeID, "jobCards", w.jobCards.CacheStatus())
	w.metrics.ReportCacheStatus(ctx, w.nodeID, "actionableTasks", w.actionable.CacheStatus())
	w.metrics.ReportCacheStatus(ctx, w.nodeID, "fulfillmentTasks", w.fulfillment.CacheStatus())
	w.metrics.ReportCacheStatus(ctx, w.nodeID, "parcels", w.parcels.CacheStatus())
	w.metrics.ReportCacheStatus(ctx, w.nodeID, "episodes", w.finalisation.CacheStatus())
	w.metrics.ReportCacheStatus(ctx, w.nodeID, "activityMatrix", w.activity.CacheStatus())

	w.queuesLock.Lock()
	queues := make(map[model.ComponentID]QueueProbe, len(w.queues))
	for id, probe := range w.queues {
		queues[id] = probe
	}
	w.queuesLock.Unlock()

	for id, probe := range queues {
		w.metrics.ReportQueueDepth(ctx, id, probe())
	}
}

// finaliseParcel writes the audit record and removes the parcel with its job card and fulfillment task.
func (w *Watchdog) finaliseParcel(ctx context.Context, parcel *episode.Parcel, now time.Time) {
	w.parcels.Finalise(parcel.EpisodeID, parcel.FulfillmentTaskID, model.StatusFinalised, now)
	w.audit.LogActivity(ctx, audit.Record{
		EpisodeID:           parcel.EpisodeID,
		FulfillmentTaskID:   parcel.FulfillmentTaskID,
		ActionableTaskID:    parcel.ActionableTaskID,
		WorkUnitProcessor:   parcel.WorkUnitProcessor,
		Status:              model.StatusFinalised,
		RegistrationInstant: utctime.From(parcel.RegistrationInstant),
		FinalisationInstant: utctime.From(now),
	})
	w.dropParcel(parcel)
}

// dropParcel removes the parcel, its job card and its fulfillment task, the job card is removed first.
func (w *Watchdog) dropParcel(parcel *episode.Parcel) {
	if card := w.jobCards.GetJobCardForFulfillmentTask(parcel.FulfillmentTaskID); card != nil {
		w.jobCards.RemoveJobCard(card)
	}
	w.fulfillment.Unregister(parcel.FulfillmentTaskID)
	w.parcels.Remove(parcel.EpisodeID, parcel.FulfillmentTaskID)
}

func hasInFlight(parcels []*episode.Parcel) bool {
	for _, parcel := range parcels {
		if parcel.Status.IsInFlight() {
			return true
		}
	}
	return false
}
