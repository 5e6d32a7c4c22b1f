package lease_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	etcd "go.etcd.io/etcd/client/v3"

	"github.com/keboola/processing-plant/internal/pkg/idgenerator"
	"github.com/keboola/processing-plant/internal/pkg/log"
	"github.com/keboola/processing-plant/internal/pkg/service/common/etcdclient"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/lease"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/policy"
)

func TestKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "cluster/east/wup1", lease.Key(policy.ScopeCluster, "east", "wup1"))
	assert.Equal(t, "system/wup1", lease.Key(policy.ScopeSystem, "east", "wup1"))
	assert.Equal(t, "", lease.Key(policy.ScopeLocal, "east", "wup1"))
	assert.Equal(t, "", lease.Key(policy.ScopeNone, "east", "wup1"))
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	testStore(t, lease.NewMemoryStore())
}

func TestEtcdStore(t *testing.T) {
	t.Parallel()

	endpoint := os.Getenv("UNIT_ETCD_ENDPOINT")
	if endpoint == "" {
		t.Skip("UNIT_ETCD_ENDPOINT is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := etcd.New(etcd.Config{Endpoints: []string{endpoint}, DialTimeout: 5 * time.Second})
	require.NoError(t, err)
	etcdclient.UseNamespace(client, "unit-"+idgenerator.Random(8)+"/")
	t.Cleanup(func() { _ = client.Close() })

	wg := &sync.WaitGroup{}
	sessionCtx, sessionCancel := context.WithCancel(ctx)
	store, err := lease.NewEtcdStore(sessionCtx, wg, log.NewNopLogger(), client, 5)
	require.NoError(t, err)
	t.Cleanup(func() {
		sessionCancel()
		wg.Wait()
	})

	testStore(t, store)
}

func testStore(t *testing.T, store lease.Store) {
	t.Helper()
	ctx := context.Background()

	acquired, current, err := store.TryAcquire(ctx, "cluster/east/wup1", "FT:1")
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.Equal(t, "FT:1", current)

	// Re-entrant
	acquired, _, err = store.TryAcquire(ctx, "cluster/east/wup1", "FT:1")
	require.NoError(t, err)
	assert.True(t, acquired)

	// Held by another holder
	acquired, current, err = store.TryAcquire(ctx, "cluster/east/wup1", "FT:2")
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.Equal(t, "FT:1", current)

	// Another key is independent
	acquired, _, err = store.TryAcquire(ctx, "system/wup1", "FT:2")
	require.NoError(t, err)
	assert.True(t, acquired)

	// Release by another holder is ignored
	require.NoError(t, store.Release(ctx, "cluster/east/wup1", "FT:2"))
	acquired, _, err = store.TryAcquire(ctx, "cluster/east/wup1", "FT:2")
	require.NoError(t, err)
	assert.False(t, acquired)

	// Release
	require.NoError(t, store.Release(ctx, "cluster/east/wup1", "FT:1"))
	acquired, current, err = store.TryAcquire(ctx, "cluster/east/wup1", "FT:2")
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.Equal(t, "FT:2", current)

	// Release of a missing key is ok
	require.NoError(t, store.Release(ctx, "missing", "FT:1"))
}
