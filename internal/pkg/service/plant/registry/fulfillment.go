package registry

import (
	"slices"

	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
)

type FulfillmentTasks struct {
	tasks *tasks[*model.FulfillmentTask]
}

func NewFulfillmentTasks() *FulfillmentTasks {
	return &FulfillmentTasks{tasks: newTasks((*model.FulfillmentTask).Clone)}
}

// Register stores the task.
// If the ID is already registered, the existing record is returned unchanged and added is false.
func (r *FulfillmentTasks) Register(task *model.FulfillmentTask) (stored *model.FulfillmentTask, added bool) {
	return r.tasks.register(task.ID, task)
}

// Unregister removes the task, nil is returned for an unknown ID.
func (r *FulfillmentTasks) Unregister(id model.TaskID) *model.FulfillmentTask {
	return r.tasks.unregister(id)
}

func (r *FulfillmentTasks) Get(id model.TaskID) *model.FulfillmentTask {
	return r.tasks.get(id)
}

func (r *FulfillmentTasks) Has(id model.TaskID) bool {
	return r.tasks.has(id)
}

// Update modifies the stored task under the registry lock, false is returned for an unknown ID.
func (r *FulfillmentTasks) Update(id model.TaskID, fn func(task *model.FulfillmentTask)) bool {
	return r.tasks.modify(id, fn)
}

// UpdateStatus sets status of the fulfillment segment, the segment is created if it is missing.
func (r *FulfillmentTasks) UpdateStatus(id model.TaskID, status model.ExecutionStatus) bool {
	return r.tasks.modify(id, func(task *model.FulfillmentTask) {
		if task.Fulfillment == nil {
			task.Fulfillment = &model.TaskFulfillment{}
		}
		task.Fulfillment.Status = status
	})
}

// Active returns all EXECUTING tasks.
func (r *FulfillmentTasks) Active() []*model.FulfillmentTask {
	return r.ByStatus(model.StatusExecuting)
}

// Finished returns all FINISHED tasks.
func (r *FulfillmentTasks) Finished() []*model.FulfillmentTask {
	return r.ByStatus(model.StatusFinished)
}

// InFlight returns all REGISTERED, INITIATED and EXECUTING tasks.
func (r *FulfillmentTasks) InFlight() []*model.FulfillmentTask {
	return r.tasks.filter(func(v *model.FulfillmentTask) bool {
		return v.Status().IsInFlight()
	})
}

func (r *FulfillmentTasks) ByStatus(statuses ...model.ExecutionStatus) []*model.FulfillmentTask {
	return r.tasks.filter(func(v *model.FulfillmentTask) bool {
		return slices.Contains(statuses, v.Status())
	})
}

func (r *FulfillmentTasks) ForActionableTask(id model.TaskID) []*model.FulfillmentTask {
	return r.tasks.filter(func(v *model.FulfillmentTask) bool {
		return v.ActionableTaskID == id
	})
}

func (r *FulfillmentTasks) All() []*model.FulfillmentTask {
	return r.tasks.filter(nil)
}

func (r *FulfillmentTasks) Len() int {
	return r.tasks.len()
}

func (r *FulfillmentTasks) Added() int64 {
	return r.tasks.added.Load()
}

func (r *FulfillmentTasks) Removed() int64 {
	return r.tasks.removed.Load()
}

// CacheStatus returns JSON summary of the registry, grouped by the execution status.
func (r *FulfillmentTasks) CacheStatus() string {
	return r.tasks.cacheStatus(func(v *model.FulfillmentTask) string {
		return v.Status().String()
	})
}
