package model

import (
	"time"
)

// JobCardStatus tracks the three views of the job card status.
// The worker writes Requested, the Granted value is authoritative and it is written only through a GrantAuthority.
type JobCardStatus struct {
	Current   ExecutionStatus
	Requested ExecutionStatus
	granted   ExecutionStatus
}

func (s JobCardStatus) Granted() ExecutionStatus {
	return s.granted
}

// JobCard is the admission-control lease granting a worker the right to execute a fulfillment task.
type JobCard struct {
	FulfillmentTaskID  TaskID
	ActionableTaskID   TaskID
	WorkUnitProcessor  ComponentID
	Status             JobCardStatus
	ClusterMode        ConcurrencyMode
	SystemMode         ResilienceMode
	IsToBeDiscarded    bool
	UpdateInstant      time.Time
	CurrentStateReason string
}

// NewJobCard creates an UNREGISTERED job card for the fulfillment task.
func NewJobCard(task *FulfillmentTask, now time.Time) *JobCard {
	return &JobCard{
		FulfillmentTaskID: task.ID,
		ActionableTaskID:  task.ActionableTaskID,
		WorkUnitProcessor: task.Worker(),
		Status: JobCardStatus{
			Current:   StatusUnregistered,
			Requested: StatusUnregistered,
			granted:   StatusUnregistered,
		},
		UpdateInstant: now,
	}
}

// HasKeys returns true if the card can be indexed by all three keys.
func (c *JobCard) HasKeys() bool {
	return c.FulfillmentTaskID != "" && c.ActionableTaskID != "" && c.WorkUnitProcessor != ""
}

// IsLive returns true if the card holds the worker.
func (c *JobCard) IsLive() bool {
	return !c.IsToBeDiscarded && c.Status.granted.IsInFlight()
}

func (c *JobCard) Clone() *JobCard {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// GrantAuthority is the only writer of the granted status.
// It is owned by the component which owns the shared job card registry.
type GrantAuthority struct {
	name string
}

func NewGrantAuthority(name string) *GrantAuthority {
	return &GrantAuthority{name: name}
}

func (a *GrantAuthority) Name() string {
	return a.name
}

// Grant accepts the requested status change, the current status follows the granted status.
func (a *GrantAuthority) Grant(card *JobCard, status ExecutionStatus, reason string, now time.Time) {
	card.Status.granted = status
	card.Status.Current = status
	card.CurrentStateReason = reason
	card.UpdateInstant = now
}

// Reject keeps the granted status and records the reason.
func (a *GrantAuthority) Reject(card *JobCard, reason string, now time.Time) {
	card.Status.Current = card.Status.granted
	card.CurrentStateReason = reason
	card.UpdateInstant = now
}

// Revoke resets the granted status to UNREGISTERED, it is used when a registration is rolled back.
func (a *GrantAuthority) Revoke(card *JobCard, reason string, now time.Time) {
	a.Grant(card, StatusUnregistered, reason, now)
}
