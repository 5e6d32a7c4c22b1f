// Package outcome turns egress payloads of a completed fulfillment task into new actionable tasks.
package outcome

import (
	"context"

	"github.com/c2h5oh/datasize"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/processing-plant/internal/pkg/log"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
)

// ActionableTaskGetter resolves the parent actionable task.
type ActionableTaskGetter interface {
	Get(id model.TaskID) *model.ActionableTask
}

type Distributor struct {
	logger  log.Logger
	parents ActionableTaskGetter
}

func NewDistributor(logger log.Logger, parents ActionableTaskGetter) *Distributor {
	return &Distributor{logger: logger.WithComponent("outcome"), parents: parents}
}

// CollectOutcomesAndCreateNewTasks creates one actionable task for each egress payload.
//
// The traceability of each new task is the parent's log with one entry appended, describing the fulfillment task.
// An empty result is returned if the parent is not registered, the fulfillment segment is missing
// or there is no egress payload. The new tasks are not registered.
func (d *Distributor) CollectOutcomesAndCreateNewTasks(ctx context.Context, task *model.FulfillmentTask) []*model.ActionableTask {
	if task == nil {
		return nil
	}

	logger := d.logger.With(attribute.String("fulfillmentTask.id", task.ID.String()))

	if task.Fulfillment == nil {
		logger.Debug(ctx, "no outcome, fulfillment segment is missing")
		return nil
	}

	if len(task.WorkItem.Egress) == 0 {
		logger.Debug(ctx, "no outcome, egress is empty")
		return nil
	}

	parent := d.parents.Get(task.ActionableTaskID)
	if parent == nil {
		logger.Debugf(ctx, `no outcome, actionable task "%s" not found`, task.ActionableTaskID)
		return nil
	}

	entry := model.TraceabilityEntry{
		FulfillerID:         task.Fulfillment.FulfillerComponentID,
		ActionableTaskID:    parent.ID,
		FulfillmentTaskID:   task.ID,
		RegistrationInstant: task.Fulfillment.RegistrationInstant,
		StartInstant:        task.Fulfillment.StartInstant,
		FinishInstant:       task.Fulfillment.FinishInstant,
	}
	traceability := parent.Traceability.Append(entry)

	var size datasize.ByteSize
	out := make([]*model.ActionableTask, 0, len(task.WorkItem.Egress))
	for _, payload := range task.WorkItem.Egress {
		size += datasize.ByteSize(len(payload.Content))
		ingres := payload.Clone()
		out = append(out, &model.ActionableTask{
			ID:           model.NewActionableTaskID(model.ReasonOutcome, payload.Descriptor),
			WorkItem:     model.WorkItem{Ingres: &ingres, Outcome: model.OutcomePending},
			Reason:       model.ReasonOutcome,
			Traceability: traceability,
		})
	}

	logger.Debugf(ctx, `created "%d" actionable tasks, egress size "%s"`, len(out), size.HumanReadable())
	return out
}
