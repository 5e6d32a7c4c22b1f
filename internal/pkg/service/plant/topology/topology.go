// Package topology resolves a worker ID to its declared resilience and concurrency modes.
package topology

import (
	"context"
	"sync"

	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
	"github.com/keboola/processing-plant/internal/pkg/utils/errors"
)

// ErrUnknownWorker is returned if the worker is not present in the inventory.
var ErrUnknownWorker = errors.New("unknown worker")

type Resolver interface {
	ResolveWorkerConfig(ctx context.Context, id model.ComponentID) (model.WorkerConfig, error)
}

// Static is an inventory defined by the node configuration.
type Static struct {
	lock    sync.RWMutex
	workers map[model.ComponentID]model.WorkerConfig
}

func NewStatic(workers map[model.ComponentID]model.WorkerConfig) *Static {
	s := &Static{workers: make(map[model.ComponentID]model.WorkerConfig, len(workers))}
	for id, cfg := range workers {
		s.workers[id] = cfg
	}
	return s
}

func (s *Static) ResolveWorkerConfig(_ context.Context, id model.ComponentID) (model.WorkerConfig, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	cfg, found := s.workers[id]
	if !found {
		return model.WorkerConfig{}, errors.Errorf(`%w "%s"`, ErrUnknownWorker, id)
	}
	return cfg, nil
}

// Set adds or replaces the worker configuration.
func (s *Static) Set(id model.ComponentID, cfg model.WorkerConfig) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.workers[id] = cfg
}
