// Package jobcard provides the shared job card registry.
//
// Three indices are kept over the same set of cards: by the fulfillment task ID,
// by the actionable task ID (one-to-many) and by the worker ID (one-to-many, the latest card is the worker slot).
// A concurrent worker holds many live cards, an exclusive worker at most one.
// All indices are modified in one critical section, so a reader never observes one index updated and another stale.
//
// The registry is a dumb store, status transitions are checked by the fulfilment coordinator.
// Cards are copied on the way in and on the way out, callers never alias the registry memory.
package jobcard

import (
	"context"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/processing-plant/internal/pkg/encoding/json"
	"github.com/keboola/processing-plant/internal/pkg/log"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
)

// Focus is the attempt the cluster-wide and system-wide focus is pinned to, see PinFocus.
type Focus struct {
	FulfillmentTaskID model.TaskID
	WorkUnitProcessor model.ComponentID
}

type Registry struct {
	logger log.Logger

	lock          sync.Mutex
	byFulfillment map[model.TaskID]*model.JobCard
	byActionable  map[model.TaskID]map[model.TaskID]*model.JobCard
	byWorker      map[model.ComponentID]map[model.TaskID]*model.JobCard
	workerSlot    map[model.ComponentID]model.TaskID
	focus         *Focus
}

func NewRegistry(logger log.Logger) *Registry {
	return &Registry{
		logger:        logger.WithComponent("jobcard.registry"),
		byFulfillment: make(map[model.TaskID]*model.JobCard),
		byActionable:  make(map[model.TaskID]map[model.TaskID]*model.JobCard),
		byWorker:      make(map[model.ComponentID]map[model.TaskID]*model.JobCard),
		workerSlot:    make(map[model.ComponentID]model.TaskID),
	}
}

// AddJobCard inserts the card into all three indices, an existing card with the same keys is replaced.
// A card without all three keys is ignored, the call is logged.
func (r *Registry) AddJobCard(ctx context.Context, card *model.JobCard) bool {
	if !card.HasKeys() {
		r.logMissingKeys(ctx, card)
		return false
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	r.add(card.Clone())
	return true
}

// TryAddExclusive atomically checks that the worker holds no other live card, and adds the card.
// All cards of the worker are checked, not only the worker slot.
// If the worker is busy, the card is not added and the blocking card is returned.
func (r *Registry) TryAddExclusive(ctx context.Context, card *model.JobCard) (added bool, blocking *model.JobCard) {
	if !card.HasKeys() {
		r.logMissingKeys(ctx, card)
		return false, nil
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	var blockingCards []*model.JobCard
	for id, existing := range r.byWorker[card.WorkUnitProcessor] {
		if id != card.FulfillmentTaskID && existing.IsLive() {
			blockingCards = append(blockingCards, existing)
		}
	}
	if len(blockingCards) > 0 {
		sortCards(blockingCards)
		return false, blockingCards[0].Clone()
	}

	r.add(card.Clone())
	return true, nil
}

// UpdateJobCard replaces a stored card, the worker slot is not moved.
// Unknown card is not added, false is returned.
func (r *Registry) UpdateJobCard(card *model.JobCard) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	existing, found := r.byFulfillment[card.FulfillmentTaskID]
	if !found {
		return false
	}

	clone := card.Clone()
	if existing.ActionableTaskID != clone.ActionableTaskID || existing.WorkUnitProcessor != clone.WorkUnitProcessor {
		r.remove(existing)
		r.add(clone)
		return true
	}

	r.byFulfillment[clone.FulfillmentTaskID] = clone
	r.byActionable[clone.ActionableTaskID][clone.FulfillmentTaskID] = clone
	r.byWorker[clone.WorkUnitProcessor][clone.FulfillmentTaskID] = clone
	return true
}

// RemoveJobCard removes the card from all three indices, missing entries are tolerated.
func (r *Registry) RemoveJobCard(card *model.JobCard) bool {
	if card == nil {
		return false
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	existing, found := r.byFulfillment[card.FulfillmentTaskID]
	if !found {
		return false
	}
	r.remove(existing)
	return true
}

func (r *Registry) GetJobCardForFulfillmentTask(id model.TaskID) *model.JobCard {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.byFulfillment[id].Clone()
}

// GetJobCardForWUP returns the card in the worker slot, it is the most recently added card of the worker.
func (r *Registry) GetJobCardForWUP(worker model.ComponentID) *model.JobCard {
	r.lock.Lock()
	defer r.lock.Unlock()
	id, found := r.workerSlot[worker]
	if !found {
		return nil
	}
	return r.byWorker[worker][id].Clone()
}

// GetJobCardsForWUP returns a snapshot of all cards of the worker, sorted by the fulfillment task ID.
func (r *Registry) GetJobCardsForWUP(worker model.ComponentID) []*model.JobCard {
	r.lock.Lock()
	defer r.lock.Unlock()

	out := make([]*model.JobCard, 0, len(r.byWorker[worker]))
	for _, card := range r.byWorker[worker] {
		out = append(out, card.Clone())
	}
	sortCards(out)
	return out
}

// GetJobCardsForActionableTask returns a snapshot of all cards of the actionable task, sorted by the fulfillment task ID.
func (r *Registry) GetJobCardsForActionableTask(id model.TaskID) []*model.JobCard {
	r.lock.Lock()
	defer r.lock.Unlock()

	out := make([]*model.JobCard, 0, len(r.byActionable[id]))
	for _, card := range r.byActionable[id] {
		out = append(out, card.Clone())
	}
	sortCards(out)
	return out
}

// All returns a snapshot of all cards, sorted by the fulfillment task ID.
func (r *Registry) All() []*model.JobCard {
	r.lock.Lock()
	defer r.lock.Unlock()

	out := make([]*model.JobCard, 0, len(r.byFulfillment))
	for _, card := range r.byFulfillment {
		out = append(out, card.Clone())
	}
	sortCards(out)
	return out
}

func (r *Registry) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.byFulfillment)
}

// CacheStatus returns JSON summary of the registry, grouped by the granted status.
func (r *Registry) CacheStatus() string {
	r.lock.Lock()
	byState := make(map[string]int)
	for _, card := range r.byFulfillment {
		byState[card.Status.Granted().String()]++
	}
	status := map[string]any{"size": len(r.byFulfillment), "workers": len(r.byWorker), "byState": byState}
	if r.focus != nil {
		status["focus"] = r.focus.FulfillmentTaskID.String()
	}
	r.lock.Unlock()
	return json.MustEncodeString(status, false)
}

// PinFocus pins the cluster-wide and system-wide focus to the card.
// The focus is cleared when the card is removed.
func (r *Registry) PinFocus(card *model.JobCard) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.focus = &Focus{FulfillmentTaskID: card.FulfillmentTaskID, WorkUnitProcessor: card.WorkUnitProcessor}
}

func (r *Registry) Focus() (Focus, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.focus == nil {
		return Focus{}, false
	}
	return *r.focus, true
}

// add must be called under the lock.
func (r *Registry) add(card *model.JobCard) {
	// Last writer wins
	if existing, found := r.byFulfillment[card.FulfillmentTaskID]; found {
		r.remove(existing)
	}

	r.byFulfillment[card.FulfillmentTaskID] = card
	set, found := r.byActionable[card.ActionableTaskID]
	if !found {
		set = make(map[model.TaskID]*model.JobCard)
		r.byActionable[card.ActionableTaskID] = set
	}
	set[card.FulfillmentTaskID] = card

	workerSet, found := r.byWorker[card.WorkUnitProcessor]
	if !found {
		workerSet = make(map[model.TaskID]*model.JobCard)
		r.byWorker[card.WorkUnitProcessor] = workerSet
	}
	workerSet[card.FulfillmentTaskID] = card
	r.workerSlot[card.WorkUnitProcessor] = card.FulfillmentTaskID
}

// remove must be called under the lock.
func (r *Registry) remove(card *model.JobCard) {
	delete(r.byFulfillment, card.FulfillmentTaskID)
	if set, found := r.byActionable[card.ActionableTaskID]; found {
		delete(set, card.FulfillmentTaskID)
		if len(set) == 0 {
			delete(r.byActionable, card.ActionableTaskID)
		}
	}
	if workerSet, found := r.byWorker[card.WorkUnitProcessor]; found {
		delete(workerSet, card.FulfillmentTaskID)
		if len(workerSet) == 0 {
			delete(r.byWorker, card.WorkUnitProcessor)
			delete(r.workerSlot, card.WorkUnitProcessor)
		} else if r.workerSlot[card.WorkUnitProcessor] == card.FulfillmentTaskID {
			r.workerSlot[card.WorkUnitProcessor] = latestCard(workerSet).FulfillmentTaskID
		}
	}
	if r.focus != nil && r.focus.FulfillmentTaskID == card.FulfillmentTaskID {
		r.focus = nil
	}
}

func (r *Registry) logMissingKeys(ctx context.Context, card *model.JobCard) {
	r.logger.With(
		attribute.String("fulfillmentTask.id", card.FulfillmentTaskID.String()),
		attribute.String("actionableTask.id", card.ActionableTaskID.String()),
		attribute.String("worker.id", card.WorkUnitProcessor.String()),
	).Warn(ctx, "job card ignored, a key field is missing")
}

// latestCard returns the most recently updated card, ties are broken by the fulfillment task ID.
func latestCard(cards map[model.TaskID]*model.JobCard) *model.JobCard {
	var latest *model.JobCard
	for _, card := range cards {
		if latest == nil || card.UpdateInstant.After(latest.UpdateInstant) ||
			(card.UpdateInstant.Equal(latest.UpdateInstant) && card.FulfillmentTaskID > latest.FulfillmentTaskID) {
			latest = card
		}
	}
	return latest
}

func sortCards(cards []*model.JobCard) {
	sort.Slice(cards, func(i, j int) bool {
		return cards[i].FulfillmentTaskID < cards[j].FulfillmentTaskID
	})
}
