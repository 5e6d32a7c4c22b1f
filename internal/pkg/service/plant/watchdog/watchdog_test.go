package watchdog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/processing-plant/internal/pkg/service/common/utctime"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/audit"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/config"
	plantDeps "github.com/keboola/processing-plant/internal/pkg/service/plant/dependencies"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/fulfilment"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
)

type testEnv struct {
	t           *testing.T
	ctx         context.Context
	d           plantDeps.Mocked
	coordinator *fulfilment.Coordinator
	watchdog    *Watchdog
}

func newTestEnv(t *testing.T, opts ...plantDeps.MockedOption) *testEnv {
	t.Helper()
	opts = append([]plantDeps.MockedOption{
		plantDeps.WithWorker("wup", model.ResilienceMultisite, model.ConcurrencyConcurrent),
	}, opts...)
	d := plantDeps.NewMocked(t, opts...)
	return &testEnv{
		t:           t,
		ctx:         context.Background(),
		d:           d,
		coordinator: fulfilment.NewCoordinator(d),
		watchdog:    New(d, d.Config().Watchdog),
	}
}

func (e *testEnv) newActionable() *model.ActionableTask {
	actionable := &model.ActionableTask{
		ID:       model.NewActionableTaskID(model.ReasonIngress, model.DataDescriptor{Type: "hl7"}),
		Reason:   model.ReasonIngress,
		WorkItem: model.WorkItem{Outcome: model.OutcomePending},
	}
	stored, _ := e.d.ActionableTasks().Register(actionable)
	return stored
}

// attempt registers a fulfillment task of the actionable task and moves it to the status.
func (e *testEnv) attempt(actionable *model.ActionableTask, status model.ExecutionStatus) (*model.FulfillmentTask, *model.JobCard) {
	e.t.Helper()
	task := model.NewFulfillmentTask(actionable, "wup")
	card, err := e.coordinator.RegisterFulfillmentTask(e.ctx, actionable, task)
	require.NoError(e.t, err)
	require.Equal(e.t, model.StatusExecuting, card.Status.Granted())

	switch status {
	case model.StatusExecuting:
	case model.StatusCancelled:
		card, err = e.coordinator.UnregisterFulfillmentTask(e.ctx, task)
		require.NoError(e.t, err)
	default:
		r := card.Clone()
		r.Status.Requested = status
		card, err = e.coordinator.RequestExecutionStatusChange(e.ctx, r)
		require.NoError(e.t, err)
	}
	require.Equal(e.t, status, card.Status.Granted())
	return task, card
}

func TestWatchdog_FinaliseEpisode(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	d := e.d

	actionable := e.newActionable()
	task, _ := e.attempt(actionable, model.StatusFinished)
	registeredAt := d.Clock().Now()

	// Downstream registration is not complete
	result, err := e.watchdog.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Finalised)
	assert.Equal(t, 1, d.Parcels().Len())

	d.FinalisationCache().MarkAllDownstreamRegistered(actionable.Episode())
	d.FakeClock().Advance(time.Minute)
	result, err = e.watchdog.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, RunResult{Finalised: 1, AuditRecords: 1}, result)

	assert.Equal(t, []audit.Record{
		{
			EpisodeID:           actionable.Episode(),
			FulfillmentTaskID:   task.ID,
			ActionableTaskID:    actionable.ID,
			WorkUnitProcessor:   "wup",
			Status:              model.StatusFinalised,
			RegistrationInstant: utctime.From(registeredAt),
			FinalisationInstant: utctime.From(d.Clock().Now()),
		},
	}, d.MockedAuditSink().Records())

	// Everything is removed
	assert.Equal(t, 0, d.Parcels().Len())
	assert.Equal(t, 0, d.JobCards().Len())
	assert.Equal(t, 0, d.FulfillmentTasks().Len())
	assert.Equal(t, 0, d.ActionableTasks().Len())
	assert.Equal(t, 0, d.FinalisationCache().Len())
	assert.Equal(t, 0, d.ActivityMatrix().Len())

	// Second run without new traffic is a no-op
	result, err = e.watchdog.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.True(t, result.IsEmpty())
	assert.Len(t, d.MockedAuditSink().Records(), 1)
	assert.Equal(t, int64(3), e.watchdog.Runs())
}

func TestWatchdog_FinaliseEpisode_InFlight(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	d := e.d

	actionable := e.newActionable()
	e.attempt(actionable, model.StatusFinished)
	e.attempt(actionable, model.StatusExecuting)
	d.FinalisationCache().MarkAllDownstreamRegistered(actionable.Episode())

	result, err := e.watchdog.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, RunResult{Deferred: 1}, result)
	assert.Equal(t, 2, d.Parcels().Len())
	assert.Empty(t, d.MockedAuditSink().Records())
}

func TestWatchdog_FinaliseEpisode_OtherOwner(t *testing.T) {
	t.Parallel()

	nodes := []string{"node-a", "node-b", "node-c", "node-d", "node-e", "node-f"}
	e := newTestEnv(t, plantDeps.WithConfig(func(cfg *config.Config) {
		cfg.Cluster.Nodes = nodes
	}))
	d := e.d

	// Find an episode owned by another node
	var actionable *model.ActionableTask
	for i := 0; i < 1000 && actionable == nil; i++ {
		candidate := &model.ActionableTask{ID: model.TaskID(fmt.Sprintf("AT:INGRESS:test:%04d", i))}
		if owner, err := d.Distribution().IsOwner(candidate.Episode().String()); err == nil && !owner {
			actionable = candidate
		}
	}
	require.NotNil(t, actionable)
	d.ActionableTasks().Register(actionable)

	e.attempt(actionable, model.StatusFinished)
	d.FinalisationCache().MarkAllDownstreamRegistered(actionable.Episode())

	result, err := e.watchdog.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, RunResult{FinalisedElsewhere: 1, PurgedParcels: 1}, result)

	// No audit record, the parcels are dropped by the purge in the same run
	assert.Empty(t, d.MockedAuditSink().Records())
	assert.Equal(t, 0, d.Parcels().Len())
	assert.Equal(t, 0, d.JobCards().Len())
	assert.Equal(t, 0, d.FulfillmentTasks().Len())
	assert.False(t, d.ActionableTasks().Has(actionable.ID))
	assert.False(t, d.FinalisationCache().Has(actionable.Episode()))
}

func TestWatchdog_PurgeCancelled(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	d := e.d

	actionable := e.newActionable()
	finished, _ := e.attempt(actionable, model.StatusFinished)
	cancelled, _ := e.attempt(actionable, model.StatusCancelled)
	executing, _ := e.attempt(actionable, model.StatusExecuting)

	result, err := e.watchdog.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, RunResult{AuditRecords: 1, PurgedParcels: 1}, result)

	records := d.MockedAuditSink().Records()
	require.Len(t, records, 1)
	assert.Equal(t, finished.ID, records[0].FulfillmentTaskID)

	ep := actionable.Episode()
	assert.Nil(t, d.Parcels().Get(ep, finished.ID))
	assert.Nil(t, d.Parcels().Get(ep, cancelled.ID))
	assert.NotNil(t, d.Parcels().Get(ep, executing.ID))
	assert.Equal(t, 1, d.JobCards().Len())
	assert.True(t, d.FulfillmentTasks().Has(executing.ID))
	assert.True(t, d.ActionableTasks().Has(actionable.ID))
}

func TestWatchdog_PurgeDiscarded(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	d := e.d

	actionable := e.newActionable()
	discarded, _ := e.attempt(actionable, model.StatusExecuting)
	e.attempt(actionable, model.StatusExecuting)

	_, err := e.coordinator.DiscardFulfillmentTask(e.ctx, discarded)
	require.NoError(t, err)

	// The episode is deferred, the other attempt is in flight, the discarded card is reclaimed
	result, err := e.watchdog.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, RunResult{Deferred: 1, ReclaimedJobCards: 1}, result)
	assert.Nil(t, d.JobCards().GetJobCardForFulfillmentTask(discarded.ID))
	assert.False(t, d.FulfillmentTasks().Has(discarded.ID))
	assert.Nil(t, d.Parcels().Get(actionable.Episode(), discarded.ID))
	assert.Equal(t, 1, d.JobCards().Len())
	assert.Empty(t, d.MockedAuditSink().Records())
}

func TestWatchdog_PurgeAged(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	d := e.d

	d.ActivityMatrix().Touch("AT:old", d.Clock().Now())
	d.FakeClock().Advance(30 * time.Minute)
	d.ActivityMatrix().Touch("AT:new", d.Clock().Now())
	d.FakeClock().Advance(31 * time.Minute)

	result, err := e.watchdog.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, RunResult{PurgedActivity: 1}, result)
	_, found := d.ActivityMatrix().LastActivity("AT:old")
	assert.False(t, found)
	_, found = d.ActivityMatrix().LastActivity("AT:new")
	assert.True(t, found)
}

func TestWatchdog_PurgeAged_Episode(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	d := e.d

	// Neither attempt reaches finalisation, downstream registration never completes
	actionable := e.newActionable()
	e.attempt(actionable, model.StatusCancelled)
	stuck, _ := e.attempt(actionable, model.StatusExecuting)
	require.True(t, d.FinalisationCache().Has(actionable.Episode()))

	d.FakeClock().Advance(2 * time.Hour)
	result, err := e.watchdog.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, RunResult{PurgedParcels: 2, PurgedActivity: 1}, result)

	assert.Equal(t, 0, d.FinalisationCache().Len())
	assert.Equal(t, 0, d.ActionableTasks().Len())
	assert.Equal(t, 0, d.ActivityMatrix().Len())
	assert.Equal(t, 0, d.Parcels().Len())
	assert.Equal(t, 0, d.JobCards().Len())
	assert.Nil(t, d.JobCards().GetJobCardForWUP("wup"))
	assert.False(t, d.FulfillmentTasks().Has(stuck.ID))
	assert.Empty(t, d.MockedAuditSink().Records())

	// Nothing is left for the next run
	result, err = e.watchdog.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.True(t, result.IsEmpty())
	assert.Equal(t, 0, d.FinalisationCache().Len())
	assert.Equal(t, 0, d.ActionableTasks().Len())
}

func TestWatchdog_Metrics(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	d := e.d

	e.attempt(e.newActionable(), model.StatusExecuting)
	e.watchdog.RegisterQueue("wup", func() int { return 7 })

	_, err := e.watchdog.RunOnce(e.ctx)
	require.NoError(t, err)

	for _, cache := range []string{"jobCards", "actionableTasks", "fulfillmentTasks", "parcels", "episodes", "activityMatrix"} {
		status, found := d.MockedMetrics().LastStatus("test-node", cache)
		assert.True(t, found, cache)
		assert.Contains(t, status, `"size":1`, cache)
	}
}

func TestWatchdog_RunOnce_Skipped(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)

	e.watchdog.runLock.Lock()
	result, err := e.watchdog.RunOnce(e.ctx)
	e.watchdog.runLock.Unlock()

	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, int64(1), e.watchdog.Skipped())
	assert.Equal(t, int64(0), e.watchdog.Runs())

	e.d.DebugLogger().AssertJSONMessages(t, `
{"level":"info","message":"watchdog run skipped, the previous run is still in progress","component":"watchdog"}
`)
}

func TestWatchdog_FinaliseEpisode_Panic(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	d := e.d

	actionable := e.newActionable()
	e.attempt(actionable, model.StatusFinished)
	d.FinalisationCache().MarkAllDownstreamRegistered(actionable.Episode())

	// Broken assigner
	assigner := e.watchdog.assigner
	e.watchdog.assigner = nil
	result, err := e.watchdog.RunOnce(e.ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, d.Parcels().Len())

	// Retried on the next run
	e.watchdog.assigner = assigner
	result, err = e.watchdog.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Finalised)
	assert.Equal(t, 0, d.Parcels().Len())
}

func TestWatchdog_StartStop(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	d := e.d
	clk := d.FakeClock()
	cfg := d.Config().Watchdog

	ctx, cancel := context.WithTimeout(e.ctx, 10*time.Second)
	defer cancel()

	e.watchdog.Start(ctx)
	e.watchdog.Start(ctx) // ignored

	// Initial delay
	require.NoError(t, clk.BlockUntilContext(ctx, 1))
	clk.Advance(cfg.InitialDelay)
	assert.Eventually(t, func() bool { return e.watchdog.Runs() == 1 }, 5*time.Second, 10*time.Millisecond)

	// Period
	require.NoError(t, clk.BlockUntilContext(ctx, 1))
	clk.Advance(cfg.Period)
	assert.Eventually(t, func() bool { return e.watchdog.Runs() == 2 }, 5*time.Second, 10*time.Millisecond)

	e.watchdog.Stop(ctx)
	e.watchdog.Stop(ctx) // ignored

	d.DebugLogger().AssertJSONMessages(t, `
{"level":"info","message":"watchdog started, initial delay 1s, period 10s","component":"watchdog"}
{"level":"info","message":"watchdog stopped","component":"watchdog"}
`)
}
