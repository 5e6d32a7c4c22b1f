package registry

import (
	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
)

type ActionableTasks struct {
	tasks *tasks[*model.ActionableTask]
}

func NewActionableTasks() *ActionableTasks {
	return &ActionableTasks{tasks: newTasks((*model.ActionableTask).Clone)}
}

// Register stores the task and marks it registered.
// If the ID is already registered, the existing record is returned unchanged and added is false.
func (r *ActionableTasks) Register(task *model.ActionableTask) (stored *model.ActionableTask, added bool) {
	task = task.Clone()
	task.Registered = true
	return r.tasks.register(task.ID, task)
}

// Unregister removes the task, nil is returned for an unknown ID.
func (r *ActionableTasks) Unregister(id model.TaskID) *model.ActionableTask {
	task := r.tasks.unregister(id)
	if task != nil {
		task.Registered = false
	}
	return task
}

func (r *ActionableTasks) Get(id model.TaskID) *model.ActionableTask {
	return r.tasks.get(id)
}

func (r *ActionableTasks) Has(id model.TaskID) bool {
	return r.tasks.has(id)
}

func (r *ActionableTasks) All() []*model.ActionableTask {
	return r.tasks.filter(nil)
}

func (r *ActionableTasks) Len() int {
	return r.tasks.len()
}

func (r *ActionableTasks) Added() int64 {
	return r.tasks.added.Load()
}

func (r *ActionableTasks) Removed() int64 {
	return r.tasks.removed.Load()
}

// CacheStatus returns JSON summary of the registry, grouped by the task reason.
func (r *ActionableTasks) CacheStatus() string {
	return r.tasks.cacheStatus(func(v *model.ActionableTask) string {
		return string(v.Reason)
	})
}
