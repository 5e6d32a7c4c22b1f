// Package episode contains the caches used to finalise episodes.
//
// An episode is the lineage of one actionable task. Each fulfillment attempt of the task is tracked as a parcel.
// The episode can be finalised when all downstream actionable tasks, created from its outcomes, are registered.
package episode

import (
	"sort"
	"strings"
	"time"

	"github.com/keboola/processing-plant/internal/pkg/encoding/json"
	"github.com/keboola/processing-plant/internal/pkg/service/common/prefixtree"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
)

const keySeparator = "/"

// Parcel tracks one fulfillment attempt within an episode.
type Parcel struct {
	EpisodeID           model.EpisodeID
	FulfillmentTaskID   model.TaskID
	ActionableTaskID    model.TaskID
	WorkUnitProcessor   model.ComponentID
	Status              model.ExecutionStatus
	RegistrationInstant time.Time
	FinalisationInstant *time.Time
}

func (p *Parcel) Clone() *Parcel {
	if p == nil {
		return nil
	}
	clone := *p
	if p.FinalisationInstant != nil {
		v := *p.FinalisationInstant
		clone.FinalisationInstant = &v
	}
	return &clone
}

// Parcels is a cache of parcels, keyed "<episode>/<fulfillment task>", so all parcels of an episode share a prefix.
type Parcels struct {
	tree *prefixtree.AtomicTree[*Parcel]
}

func NewParcels() *Parcels {
	return &Parcels{tree: prefixtree.New[*Parcel]()}
}

// Put adds or replaces the parcel.
func (c *Parcels) Put(parcel *Parcel) {
	c.tree.Insert(parcelKey(parcel.EpisodeID, parcel.FulfillmentTaskID), parcel.Clone())
}

func (c *Parcels) Get(episode model.EpisodeID, id model.TaskID) *Parcel {
	parcel, _ := c.tree.Get(parcelKey(episode, id))
	return parcel.Clone()
}

// SetStatus updates the parcel status, false is returned if the parcel does not exist.
func (c *Parcels) SetStatus(episode model.EpisodeID, id model.TaskID, status model.ExecutionStatus) bool {
	return c.modify(episode, id, func(parcel *Parcel) {
		parcel.Status = status
	})
}

// Finalise sets the final status, FINALISED or FINALISED_ELSEWHERE, and the finalisation instant.
func (c *Parcels) Finalise(episode model.EpisodeID, id model.TaskID, status model.ExecutionStatus, now time.Time) bool {
	return c.modify(episode, id, func(parcel *Parcel) {
		parcel.Status = status
		parcel.FinalisationInstant = &now
	})
}

// Episode returns parcels of the episode, sorted by the fulfillment task ID.
func (c *Parcels) Episode(episode model.EpisodeID) []*Parcel {
	var out []*Parcel
	for _, parcel := range c.tree.AllFromPrefix(episodePrefix(episode)) {
		out = append(out, parcel.Clone())
	}
	return out
}

// Episodes returns all episodes with at least one parcel.
func (c *Parcels) Episodes() []model.EpisodeID {
	var out []model.EpisodeID
	c.tree.Atomic(func(t *prefixtree.Tree[*Parcel]) {
		seen := make(map[model.EpisodeID]bool)
		t.WalkAll(func(_ string, parcel *Parcel) bool {
			if !seen[parcel.EpisodeID] {
				seen[parcel.EpisodeID] = true
				out = append(out, parcel.EpisodeID)
			}
			return false
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ByStatus returns all parcels with one of the statuses.
func (c *Parcels) ByStatus(statuses ...model.ExecutionStatus) []*Parcel {
	var out []*Parcel
	c.tree.Atomic(func(t *prefixtree.Tree[*Parcel]) {
		t.WalkAll(func(_ string, parcel *Parcel) bool {
			for _, status := range statuses {
				if parcel.Status == status {
					out = append(out, parcel.Clone())
					break
				}
			}
			return false
		})
	})
	return out
}

func (c *Parcels) Remove(episode model.EpisodeID, id model.TaskID) bool {
	return c.tree.Delete(parcelKey(episode, id))
}

// RemoveEpisode removes all parcels of the episode and returns their count.
func (c *Parcels) RemoveEpisode(episode model.EpisodeID) int {
	return c.tree.DeletePrefix(episodePrefix(episode))
}

func (c *Parcels) Len() int {
	return c.tree.Len()
}

// CacheStatus returns JSON summary of the cache, grouped by the parcel status.
func (c *Parcels) CacheStatus() string {
	byState := make(map[string]int)
	c.tree.Atomic(func(t *prefixtree.Tree[*Parcel]) {
		t.WalkAll(func(_ string, parcel *Parcel) bool {
			byState[parcel.Status.String()]++
			return false
		})
	})
	return json.MustEncodeString(map[string]any{"size": c.tree.Len(), "byState": byState}, false)
}

func (c *Parcels) modify(episode model.EpisodeID, id model.TaskID, fn func(parcel *Parcel)) (found bool) {
	key := parcelKey(episode, id)
	c.tree.ModifyAtomic(func(t *prefixtree.Tree[*Parcel]) {
		var parcel *Parcel
		if parcel, found = t.Get(key); found {
			parcel = parcel.Clone()
			fn(parcel)
			t.Insert(key, parcel)
		}
	})
	return found
}

func episodePrefix(episode model.EpisodeID) string {
	return escapeKey(episode.String()) + keySeparator
}

func parcelKey(episode model.EpisodeID, id model.TaskID) string {
	return episodePrefix(episode) + escapeKey(id.String())
}

func escapeKey(v string) string {
	return strings.ReplaceAll(v, keySeparator, "%2F")
}
