package lease

import (
	"context"
	"sync"

	"go.etcd.io/etcd/api/v3/mvccpb"
	etcd "go.etcd.io/etcd/client/v3"

	"github.com/keboola/processing-plant/internal/pkg/log"
	"github.com/keboola/processing-plant/internal/pkg/utils/errors"
)

const etcdKeyPrefix = "claim/"

// EtcdStore stores claims in etcd, each claim is attached to the session lease of the node.
// If the node dies, its claims expire with the lease TTL.
type EtcdStore struct {
	client   *etcd.Client
	logger   log.Logger
	sessions *sessionKeeper
}

// NewEtcdStore creates the store and waits for the first session.
// The session is closed when the context is done, the wait group is done when the session is closed.
func NewEtcdStore(ctx context.Context, wg *sync.WaitGroup, logger log.Logger, client *etcd.Client, ttlSeconds int) (*EtcdStore, error) {
	s := &EtcdStore{
		client:   client,
		logger:   logger.WithComponent("lease"),
		sessions: newSessionKeeper(logger, client, ttlSeconds),
	}

	if err := s.sessions.Start(ctx, wg); err != nil {
		return nil, errors.Errorf("cannot create etcd lease store: %w", err)
	}

	return s, nil
}

func (s *EtcdStore) TryAcquire(ctx context.Context, key, holder string) (bool, string, error) {
	session := s.sessions.Session()
	if session == nil {
		return false, "", errors.New("etcd session is not ready")
	}

	key = etcdKeyPrefix + key
	resp, err := s.client.Txn(ctx).
		If(etcd.Compare(etcd.CreateRevision(key), "=", 0)).
		Then(etcd.OpPut(key, holder, etcd.WithLease(session.Lease()))).
		Else(etcd.OpGet(key)).
		Commit()
	if err != nil {
		return false, "", errors.Errorf(`cannot acquire claim "%s": %w`, key, err)
	}

	if resp.Succeeded {
		return true, holder, nil
	}

	// The key has been deleted between the compare and the get, the caller can try again
	current, found := holderOf(resp.Responses[0].GetResponseRange().Kvs)
	if !found {
		return false, "", nil
	}
	return current == holder, current, nil
}

func (s *EtcdStore) Release(ctx context.Context, key, holder string) error {
	key = etcdKeyPrefix + key
	_, err := s.client.Txn(ctx).
		If(etcd.Compare(etcd.Value(key), "=", holder)).
		Then(etcd.OpDelete(key)).
		Commit()
	if err != nil {
		return errors.Errorf(`cannot release claim "%s": %w`, key, err)
	}
	return nil
}

func holderOf(kvs []*mvccpb.KeyValue) (string, bool) {
	if len(kvs) == 0 {
		return "", false
	}
	return string(kvs[0].Value), true
}
