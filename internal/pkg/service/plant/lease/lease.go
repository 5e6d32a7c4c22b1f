// Package lease provides claims of cluster-wide and system-wide exclusivity.
//
// A claim is held by one holder, a fulfillment task ID. It is re-entrant for the same holder.
package lease

import (
	"context"
	"strings"
	"sync"

	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/policy"
)

type Store interface {
	// TryAcquire claims the key for the holder. If the key is claimed by another holder, acquired is false
	// and the current holder is returned. The call does not block on the claim.
	TryAcquire(ctx context.Context, key, holder string) (acquired bool, current string, err error)
	// Release removes the claim, if it is held by the holder.
	Release(ctx context.Context, key, holder string) error
}

// Key returns the claim key for the policy scope, an empty key is returned if no cluster claim is needed.
func Key(scope policy.Scope, clusterName string, worker model.ComponentID) string {
	switch scope {
	case policy.ScopeCluster:
		return strings.Join([]string{"cluster", clusterName, worker.String()}, "/")
	case policy.ScopeSystem:
		return strings.Join([]string{"system", worker.String()}, "/")
	default:
		return ""
	}
}

// MemoryStore is used by a single-node deployment and in tests.
type MemoryStore struct {
	lock    sync.Mutex
	holders map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{holders: make(map[string]string)}
}

func (s *MemoryStore) TryAcquire(_ context.Context, key, holder string) (bool, string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if current, found := s.holders[key]; found && current != holder {
		return false, current, nil
	}
	s.holders[key] = holder
	return true, holder, nil
}

func (s *MemoryStore) Release(_ context.Context, key, holder string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.holders[key] == holder {
		delete(s.holders, key)
	}
	return nil
}

// Holder returns the current holder of the key.
func (s *MemoryStore) Holder(key string) (string, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	holder, found := s.holders[key]
	return holder, found
}
