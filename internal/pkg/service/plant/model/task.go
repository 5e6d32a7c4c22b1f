package model

import (
	"github.com/gofrs/uuid/v5"
)

// ActionableTask represents business intent awaiting (re-)processing.
type ActionableTask struct {
	ID           TaskID
	WorkItem     WorkItem
	Reason       TaskReason
	Traceability TaskTraceability
	Registered   bool
}

// FulfillmentTask represents one worker's attempt to execute an actionable task.
type FulfillmentTask struct {
	ID               TaskID
	ActionableTaskID TaskID
	WorkItem         WorkItem
	Fulfillment      *TaskFulfillment
	Traceability     TaskTraceability
}

// NewFulfillmentTask creates an attempt of the worker, the work item and traceability are copied.
// Each attempt gets a time-ordered tracking ID.
func NewFulfillmentTask(actionable *ActionableTask, worker ComponentID) *FulfillmentTask {
	return &FulfillmentTask{
		ID:               NewFulfillmentTaskID(actionable.ID, worker),
		ActionableTaskID: actionable.ID,
		WorkItem:         actionable.WorkItem.Clone(),
		Fulfillment:      &TaskFulfillment{FulfillerComponentID: worker, TrackingID: newTrackingID(), Status: StatusUnregistered},
		Traceability:     actionable.Traceability,
	}
}

func (t *ActionableTask) Episode() EpisodeID {
	return EpisodeFor(t.ID)
}

func (t *ActionableTask) Clone() *ActionableTask {
	if t == nil {
		return nil
	}
	clone := *t
	clone.WorkItem = t.WorkItem.Clone()
	return &clone
}

// Status returns status of the fulfillment segment, or UNREGISTERED if it is not present.
func (t *FulfillmentTask) Status() ExecutionStatus {
	if t.Fulfillment == nil {
		return StatusUnregistered
	}
	return t.Fulfillment.Status
}

// Worker returns the fulfiller of the attempt, or an empty value if the segment is not present.
func (t *FulfillmentTask) Worker() ComponentID {
	if t.Fulfillment == nil {
		return ""
	}
	return t.Fulfillment.FulfillerComponentID
}

func (t *FulfillmentTask) Clone() *FulfillmentTask {
	if t == nil {
		return nil
	}
	clone := *t
	clone.WorkItem = t.WorkItem.Clone()
	clone.Fulfillment = t.Fulfillment.Clone()
	return &clone
}

func newTrackingID() string {
	return uuid.Must(uuid.NewV7()).String()
}
