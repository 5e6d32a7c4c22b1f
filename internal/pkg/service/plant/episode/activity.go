package episode

import (
	"sort"
	"sync"
	"time"

	"github.com/keboola/processing-plant/internal/pkg/encoding/json"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
)

// ActivityMatrix records the last activity of each episode, old entries are purged by the watchdog.
type ActivityMatrix struct {
	lock sync.Mutex
	last map[model.EpisodeID]time.Time
}

func NewActivityMatrix() *ActivityMatrix {
	return &ActivityMatrix{last: make(map[model.EpisodeID]time.Time)}
}

// Touch records an activity, the time never moves backward.
func (m *ActivityMatrix) Touch(episode model.EpisodeID, now time.Time) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if last, found := m.last[episode]; !found || now.After(last) {
		m.last[episode] = now
	}
}

func (m *ActivityMatrix) LastActivity(episode model.EpisodeID) (time.Time, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	last, found := m.last[episode]
	return last, found
}

// PurgeOlderThan removes entries with the last activity before the cutoff, the removed episodes are returned sorted.
func (m *ActivityMatrix) PurgeOlderThan(cutoff time.Time) []model.EpisodeID {
	m.lock.Lock()
	defer m.lock.Unlock()

	var out []model.EpisodeID
	for episode, last := range m.last {
		if last.Before(cutoff) {
			delete(m.last, episode)
			out = append(out, episode)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *ActivityMatrix) Remove(episode model.EpisodeID) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.last, episode)
}

func (m *ActivityMatrix) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.last)
}

func (m *ActivityMatrix) CacheStatus() string {
	return json.MustEncodeString(map[string]int{"size": m.Len()}, false)
}
