package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskID(t *testing.T) {
	t.Parallel()

	descriptor := DataDescriptor{Type: "hl7", Subtype: "adt", Version: "2.4", Source: "emr"}
	a1 := NewActionableTaskID(ReasonOutcome, descriptor)
	a2 := NewActionableTaskID(ReasonOutcome, descriptor)
	assert.NotEqual(t, a1, a2)
	assert.Regexp(t, `^AT:OUTCOME:hl7\.adt:[0-9a-f]{16}:[0-9a-zA-Z]{8}$`, a1.String())
	assert.True(t, a1.IsActionable())
	assert.False(t, a1.IsFulfillment())

	// Same descriptor, same digest
	assert.Equal(t, a1.String()[:len(a1)-8], a2.String()[:len(a2)-8])

	f1 := NewFulfillmentTaskID(a1, "wup1")
	assert.Regexp(t, `^FT:wup1:[0-9a-f]{16}:[0-9a-zA-Z]{8}$`, f1.String())
	assert.True(t, f1.IsFulfillment())
	assert.False(t, f1.IsActionable())
	assert.Equal(t, EpisodeID(a1), EpisodeFor(a1))
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to ExecutionStatus
		allowed  bool
	}{
		{StatusUnregistered, StatusRegistered, true},
		{StatusUnregistered, StatusExecuting, true},
		{StatusUnregistered, StatusFinished, false},
		{StatusRegistered, StatusExecuting, true},
		{StatusRegistered, StatusFinished, false},
		{StatusExecuting, StatusRegistered, false},
		{StatusExecuting, StatusFinished, true},
		{StatusExecuting, StatusFailed, true},
		{StatusFinished, StatusExecuting, false},
		{StatusFinished, StatusFinalised, true},
		{StatusFinalised, StatusFinalised, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTaskFulfillment_SetInstant(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	f := &TaskFulfillment{}

	// Later stage cannot be set while an earlier one is absent
	err := f.SetInstant(StageStart, now)
	require.Error(t, err)
	assert.Equal(t, "cannot set start instant: registration instant is not set", err.Error())

	require.NoError(t, f.SetInstant(StageRegistration, now))
	require.NoError(t, f.SetInstant(StageReady, now.Add(time.Second)))

	// Timestamps must not decrease
	err = f.SetInstant(StageStart, now)
	require.Error(t, err)
	assert.Equal(t, "cannot set start instant: it is before the ready instant", err.Error())
	require.NoError(t, f.SetInstant(StageStart, now.Add(2*time.Second)))
	require.NoError(t, f.Validate())
}

func TestTaskFulfillment_Advance(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	f := &TaskFulfillment{}
	f.Advance(StageRegistration, now)
	f.Advance(StageFinish, now.Add(time.Minute))
	require.NoError(t, f.Validate())
	assert.Equal(t, now, *f.RegistrationInstant)
	assert.Equal(t, now.Add(time.Minute), *f.ReadyInstant)
	assert.Equal(t, now.Add(time.Minute), *f.StartInstant)
	assert.Equal(t, now.Add(time.Minute), *f.FinishInstant)
	assert.Nil(t, f.FinalisationInstant)

	// Time is moved forward to keep timestamps monotonic
	f.Advance(StageFinalisation, now)
	assert.Equal(t, now.Add(time.Minute), *f.FinalisationInstant)
	require.NoError(t, f.Validate())
}

func TestTaskFulfillment_Validate(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	before := now.Add(-time.Second)
	err := (&TaskFulfillment{StartInstant: &now}).Validate()
	require.Error(t, err)
	assert.Equal(t, "start instant is set, but ready instant is not set", err.Error())

	err = (&TaskFulfillment{RegistrationInstant: &now, ReadyInstant: &before}).Validate()
	require.Error(t, err)
	assert.Equal(t, "ready instant is before registration instant", err.Error())
}

func TestTaskTraceability_AppendDoesNotAlias(t *testing.T) {
	t.Parallel()

	parent := NewTaskTraceability(TraceabilityEntry{FulfillerID: "wup1", ActionableTaskID: "AT:1", FulfillmentTaskID: "FT:1"})
	child1 := parent.Append(TraceabilityEntry{FulfillerID: "wup2", ActionableTaskID: "AT:2", FulfillmentTaskID: "FT:2"})
	child2 := parent.Append(TraceabilityEntry{FulfillerID: "wup3", ActionableTaskID: "AT:3", FulfillmentTaskID: "FT:3"})

	assert.Equal(t, 1, parent.Len())
	assert.Equal(t, 2, child1.Len())
	assert.Equal(t, 2, child2.Len())

	last1, ok := child1.Last()
	require.True(t, ok)
	assert.Equal(t, ComponentID("wup2"), last1.FulfillerID)
	last2, ok := child2.Last()
	require.True(t, ok)
	assert.Equal(t, ComponentID("wup3"), last2.FulfillerID)

	_, ok = TaskTraceability{}.Last()
	assert.False(t, ok)
}

func TestWorkItem_Clone(t *testing.T) {
	t.Parallel()

	original := WorkItem{
		Ingres: &Payload{Descriptor: DataDescriptor{Type: "a"}, Content: []byte("in")},
		Egress: []Payload{{Descriptor: DataDescriptor{Type: "b"}, Content: []byte("out")}},
	}
	clone := original.Clone()
	clone.Ingres.Content[0] = 'X'
	clone.Egress[0].Content[0] = 'Y'
	assert.Equal(t, "in", string(original.Ingres.Content))
	assert.Equal(t, "out", string(original.Egress[0].Content))
}

func TestJobCard_Grant(t *testing.T) {
	t.Parallel()

	now := time.Now()
	actionable := &ActionableTask{ID: NewActionableTaskID(ReasonIngress, DataDescriptor{Type: "x"})}
	card := NewJobCard(NewFulfillmentTask(actionable, "wup1"), now)
	assert.True(t, card.HasKeys())
	assert.False(t, card.IsLive())
	assert.Equal(t, StatusUnregistered, card.Status.Granted())

	authority := NewGrantAuthority("test")
	authority.Grant(card, StatusRegistered, "registered", now)
	assert.True(t, card.IsLive())
	assert.Equal(t, StatusRegistered, card.Status.Current)

	card.Status.Requested = StatusFinished
	authority.Reject(card, "out of order", now)
	assert.Equal(t, StatusRegistered, card.Status.Granted())
	assert.Equal(t, "out of order", card.CurrentStateReason)
}

func TestNewFulfillmentTask(t *testing.T) {
	t.Parallel()

	actionable := &ActionableTask{
		ID:       NewActionableTaskID(ReasonIngress, DataDescriptor{Type: "x"}),
		WorkItem: WorkItem{Ingres: &Payload{Content: []byte("in")}},
	}
	task1 := NewFulfillmentTask(actionable, "wup1")
	task2 := NewFulfillmentTask(actionable, "wup1")
	assert.Equal(t, actionable.ID, task1.ActionableTaskID)
	assert.Equal(t, ComponentID("wup1"), task1.Worker())
	assert.Equal(t, StatusUnregistered, task1.Status())
	assert.Len(t, task1.Fulfillment.TrackingID, 36)
	assert.NotEqual(t, task1.Fulfillment.TrackingID, task2.Fulfillment.TrackingID)
	assert.NotEqual(t, task1.ID, task2.ID)

	// Work item is copied
	task1.WorkItem.Ingres.Content[0] = 'X'
	assert.Equal(t, "in", string(actionable.WorkItem.Ingres.Content))
}
