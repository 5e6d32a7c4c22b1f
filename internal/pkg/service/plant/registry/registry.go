// Package registry provides the actionable task and fulfillment task registries.
//
// Registration is idempotent, an already registered ID returns the existing record,
// so at-least-once delivery of registration requests is tolerated.
// Unregistration of an unknown ID returns nil, callers may race with the watchdog cleanup.
package registry

import (
	"sort"
	"sync"

	"go.uber.org/atomic"

	"github.com/keboola/processing-plant/internal/pkg/encoding/json"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
)

type record interface {
	comparable
}

// tasks is a mutex guarded map with running counters.
// Values are cloned on the way in and on the way out by the clone function.
type tasks[T record] struct {
	lock    sync.RWMutex
	items   map[model.TaskID]T
	clone   func(T) T
	added   *atomic.Int64
	removed *atomic.Int64
}

// CacheStatus is a summary of a registry, it is reported to the metrics collector.
type CacheStatus struct {
	Size    int            `json:"size"`
	Added   int64          `json:"added"`
	Removed int64          `json:"removed"`
	ByState map[string]int `json:"byState,omitempty"`
}

func newTasks[T record](clone func(T) T) *tasks[T] {
	return &tasks[T]{
		items:   make(map[model.TaskID]T),
		clone:   clone,
		added:   atomic.NewInt64(0),
		removed: atomic.NewInt64(0),
	}
}

// register returns the stored record and true if it has been added now.
func (r *tasks[T]) register(id model.TaskID, v T) (T, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if existing, found := r.items[id]; found {
		return r.clone(existing), false
	}

	r.items[id] = r.clone(v)
	r.added.Inc()
	return r.clone(v), true
}

func (r *tasks[T]) unregister(id model.TaskID) T {
	r.lock.Lock()
	defer r.lock.Unlock()

	existing, found := r.items[id]
	if !found {
		var empty T
		return empty
	}

	delete(r.items, id)
	r.removed.Inc()
	return existing
}

func (r *tasks[T]) get(id model.TaskID) T {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.clone(r.items[id])
}

func (r *tasks[T]) has(id model.TaskID) bool {
	r.lock.RLock()
	defer r.lock.RUnlock()
	_, found := r.items[id]
	return found
}

// modify calls the function with the stored record under the lock.
func (r *tasks[T]) modify(id model.TaskID, fn func(v T)) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	existing, found := r.items[id]
	if !found {
		return false
	}
	fn(existing)
	return true
}

// filter returns cloned records matching the predicate, sorted by ID.
func (r *tasks[T]) filter(fn func(v T) bool) []T {
	r.lock.RLock()
	defer r.lock.RUnlock()

	ids := make([]model.TaskID, 0, len(r.items))
	for id, v := range r.items {
		if fn == nil || fn(v) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.clone(r.items[id]))
	}
	return out
}

func (r *tasks[T]) len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.items)
}

func (r *tasks[T]) cacheStatus(state func(v T) string) string {
	r.lock.RLock()
	status := CacheStatus{Size: len(r.items), Added: r.added.Load(), Removed: r.removed.Load()}
	if state != nil {
		status.ByState = make(map[string]int)
		for _, v := range r.items {
			status.ByState[state(v)]++
		}
	}
	r.lock.RUnlock()
	return json.MustEncodeString(status, false)
}
