package episode

import (
	"sort"
	"sync"

	"github.com/keboola/processing-plant/internal/pkg/encoding/json"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
)

type finalisationEntry struct {
	allDownstreamRegistered bool
	// downstream episode -> registered
	downstream map[model.EpisodeID]bool
}

// FinalisationCache tracks downstream registration of episodes.
// An episode is finalisable when all its downstream episodes are known and all of them are registered.
type FinalisationCache struct {
	lock    sync.Mutex
	entries map[model.EpisodeID]*finalisationEntry
}

func NewFinalisationCache() *FinalisationCache {
	return &FinalisationCache{entries: make(map[model.EpisodeID]*finalisationEntry)}
}

// Register adds the episode, an existing entry is kept.
func (c *FinalisationCache) Register(episode model.EpisodeID) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.entry(episode)
}

// RegisterDownstream records a downstream episode which is not registered yet.
func (c *FinalisationCache) RegisterDownstream(episode, downstream model.EpisodeID) {
	c.lock.Lock()
	defer c.lock.Unlock()
	entry := c.entry(episode)
	if _, found := entry.downstream[downstream]; !found {
		entry.downstream[downstream] = false
	}
}

// MarkDownstreamRegistered acknowledges registration of the downstream episode.
func (c *FinalisationCache) MarkDownstreamRegistered(episode, downstream model.EpisodeID) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.entry(episode).downstream[downstream] = true
}

// MarkAllDownstreamRegistered marks that no more downstream episodes will be added.
func (c *FinalisationCache) MarkAllDownstreamRegistered(episode model.EpisodeID) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.entry(episode).allDownstreamRegistered = true
}

func (c *FinalisationCache) IsFinalisable(episode model.EpisodeID) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	entry, found := c.entries[episode]
	return found && entry.isFinalisable()
}

// Finalisable returns all finalisable episodes, sorted.
func (c *FinalisationCache) Finalisable() []model.EpisodeID {
	c.lock.Lock()
	defer c.lock.Unlock()

	var out []model.EpisodeID
	for episode, entry := range c.entries {
		if entry.isFinalisable() {
			out = append(out, episode)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *FinalisationCache) Has(episode model.EpisodeID) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	_, found := c.entries[episode]
	return found
}

func (c *FinalisationCache) Remove(episode model.EpisodeID) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	_, found := c.entries[episode]
	delete(c.entries, episode)
	return found
}

func (c *FinalisationCache) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.entries)
}

func (c *FinalisationCache) CacheStatus() string {
	c.lock.Lock()
	finalisable := 0
	for _, entry := range c.entries {
		if entry.isFinalisable() {
			finalisable++
		}
	}
	size := len(c.entries)
	c.lock.Unlock()
	return json.MustEncodeString(map[string]int{"size": size, "finalisable": finalisable}, false)
}

// entry must be called under the lock.
func (c *FinalisationCache) entry(episode model.EpisodeID) *finalisationEntry {
	entry, found := c.entries[episode]
	if !found {
		entry = &finalisationEntry{downstream: make(map[model.EpisodeID]bool)}
		c.entries[episode] = entry
	}
	return entry
}

func (e *finalisationEntry) isFinalisable() bool {
	if !e.allDownstreamRegistered {
		return false
	}
	for _, registered := range e.downstream {
		if !registered {
			return false
		}
	}
	return true
}
