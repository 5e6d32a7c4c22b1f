package outcome_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/processing-plant/internal/pkg/log"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/outcome"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/registry"
)

func TestDistributor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	parents := registry.NewActionableTasks()

	previous := model.TraceabilityEntry{FulfillerID: "wup0", ActionableTaskID: "AT:0", FulfillmentTaskID: "FT:0"}
	parent := &model.ActionableTask{
		ID:           model.NewActionableTaskID(model.ReasonIngress, model.DataDescriptor{Type: "order"}),
		Reason:       model.ReasonIngress,
		Traceability: model.NewTaskTraceability(previous),
	}
	parents.Register(parent)

	task := model.NewFulfillmentTask(parent, "wup1")
	task.Fulfillment.Advance(model.StageFinish, now)
	task.WorkItem.Egress = []model.Payload{
		{Descriptor: model.DataDescriptor{Type: "invoice"}, Content: []byte("a")},
		{Descriptor: model.DataDescriptor{Type: "shipment", Subtype: "eu"}, Content: []byte("b")},
		{Descriptor: model.DataDescriptor{Type: "shipment", Subtype: "eu"}, Content: []byte("c")},
	}

	logger := log.NewDebugLogger()
	tasks := outcome.NewDistributor(logger, parents).CollectOutcomesAndCreateNewTasks(ctx, task)
	require.Len(t, tasks, 3)

	ids := make(map[model.TaskID]bool)
	for i, created := range tasks {
		ids[created.ID] = true
		assert.Equal(t, model.ReasonOutcome, created.Reason)
		assert.False(t, created.Registered)
		require.NotNil(t, created.WorkItem.Ingres)
		assert.Equal(t, task.WorkItem.Egress[i].Content, created.WorkItem.Ingres.Content)
		assert.Empty(t, created.WorkItem.Egress)

		// Parent log + one entry
		require.Equal(t, 2, created.Traceability.Len())
		entries := created.Traceability.Entries()
		assert.Equal(t, previous, entries[0])
		last, _ := created.Traceability.Last()
		assert.Equal(t, parent.ID, last.ActionableTaskID)
		assert.Equal(t, task.ID, last.FulfillmentTaskID)
		assert.Equal(t, model.ComponentID("wup1"), last.FulfillerID)
		require.NotNil(t, last.FinishInstant)
		assert.True(t, now.Equal(*last.FinishInstant))
	}
	assert.Len(t, ids, 3, "IDs are unique")
	assert.Regexp(t, `^AT:OUTCOME:invoice:`, tasks[0].ID.String())
	assert.Regexp(t, `^AT:OUTCOME:shipment\.eu:`, tasks[1].ID.String())

	// Payload is copied
	tasks[0].WorkItem.Ingres.Content[0] = 'X'
	assert.Equal(t, "a", string(task.WorkItem.Egress[0].Content))

	// Parent is not modified
	assert.Equal(t, 1, parents.Get(parent.ID).Traceability.Len())

	logger.AssertJSONMessages(t, `{"level":"debug","message":"created \"3\" actionable tasks, egress size \"%s\"","component":"outcome"}`)
}

func TestDistributor_Empty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	parents := registry.NewActionableTasks()
	parent := &model.ActionableTask{ID: "AT:1"}
	parents.Register(parent)
	d := outcome.NewDistributor(log.NewNopLogger(), parents)

	egress := []model.Payload{{Descriptor: model.DataDescriptor{Type: "x"}}}

	// Nil task
	assert.Empty(t, d.CollectOutcomesAndCreateNewTasks(ctx, nil))

	// No fulfillment segment
	noSegment := &model.FulfillmentTask{ID: "FT:1", ActionableTaskID: "AT:1", WorkItem: model.WorkItem{Egress: egress}}
	assert.Empty(t, d.CollectOutcomesAndCreateNewTasks(ctx, noSegment))

	// No egress
	noEgress := model.NewFulfillmentTask(parent, "wup1")
	assert.Empty(t, d.CollectOutcomesAndCreateNewTasks(ctx, noEgress))

	// Unknown parent
	orphan := model.NewFulfillmentTask(&model.ActionableTask{ID: "AT:missing"}, "wup1")
	orphan.WorkItem.Egress = egress
	assert.Empty(t, d.CollectOutcomesAndCreateNewTasks(ctx, orphan))

	// Valid
	valid := model.NewFulfillmentTask(parent, "wup1")
	valid.WorkItem.Egress = egress
	assert.Len(t, d.CollectOutcomesAndCreateNewTasks(ctx, valid), 1)
}
