package topology

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"

	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
	"github.com/keboola/processing-plant/internal/pkg/utils/errors"
)

const (
	cacheNumCounters = 10000
	cacheMaxCost     = 1000
	cacheBufferItems = 64
)

// Cached wraps a Resolver, successful lookups are cached for the TTL.
// Parallel lookups of the same worker are merged into one call.
// Errors are not cached.
type Cached struct {
	resolver Resolver
	ttl      time.Duration
	cache    *ristretto.Cache[string, model.WorkerConfig]
	group    *singleflight.Group
}

func NewCached(resolver Resolver, ttl time.Duration) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, model.WorkerConfig]{
		NumCounters: cacheNumCounters,
		MaxCost:     cacheMaxCost,
		BufferItems: cacheBufferItems,
	})
	if err != nil {
		return nil, errors.Errorf("cannot create topology cache: %w", err)
	}

	return &Cached{resolver: resolver, ttl: ttl, cache: cache, group: &singleflight.Group{}}, nil
}

func (c *Cached) ResolveWorkerConfig(ctx context.Context, id model.ComponentID) (model.WorkerConfig, error) {
	key := id.String()
	if cfg, found := c.cache.Get(key); found {
		return cfg, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		cfg, err := c.resolver.ResolveWorkerConfig(ctx, id)
		if err != nil {
			return nil, err
		}
		c.cache.SetWithTTL(key, cfg, 1, c.ttl)
		c.cache.Wait()
		return cfg, nil
	})
	if err != nil {
		return model.WorkerConfig{}, err
	}

	return result.(model.WorkerConfig), nil
}

// Invalidate removes the cached configuration of the worker.
func (c *Cached) Invalidate(id model.ComponentID) {
	c.cache.Del(id.String())
}

func (c *Cached) Close() {
	c.cache.Close()
}
