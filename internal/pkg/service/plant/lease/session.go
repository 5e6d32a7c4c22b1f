package lease

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/atomic"

	"github.com/keboola/processing-plant/internal/pkg/log"
	"github.com/keboola/processing-plant/internal/pkg/utils/errors"
)

// sessionKeeper holds the etcd session which owns the lease of all claims of the node.
// An expired session is replaced, the claims of the old session expire with it.
type sessionKeeper struct {
	client     *etcd.Client
	logger     log.Logger
	ttlSeconds int
	backoff    *backoff.ExponentialBackOff
	current    *atomic.Pointer[concurrency.Session]
}

func newSessionKeeper(logger log.Logger, client *etcd.Client, ttlSeconds int) *sessionKeeper {
	return &sessionKeeper{
		client:     client,
		logger:     logger.WithComponent("etcd.session"),
		ttlSeconds: ttlSeconds,
		backoff:    newSessionBackoff(),
		current:    atomic.NewPointer[concurrency.Session](nil),
	}
}

// Session returns the current session, or nil while the session is re-created.
func (k *sessionKeeper) Session() *concurrency.Session {
	return k.current.Load()
}

// Start creates the first session and waits for its first keep-alive.
// Then the session is watched in the background and re-created until the ctx is done.
func (k *sessionKeeper) Start(ctx context.Context, wg *sync.WaitGroup) error {
	k.logger.Info(ctx, "creating etcd session")
	session, err := k.open(ctx)
	if err != nil {
		return err
	}
	if _, err := session.Client().KeepAliveOnce(ctx, session.Lease()); err != nil {
		_ = session.Close()
		return errors.Errorf("etcd session keep-alive failed: %w", err)
	}
	k.current.Store(session)

	wg.Add(1)
	go func() {
		defer wg.Done()
		k.watch(ctx, session)
	}()
	return nil
}

func (k *sessionKeeper) watch(ctx context.Context, session *concurrency.Session) {
	for {
		select {
		case <-ctx.Done():
			k.close(ctx, session)
			return
		case <-session.Done():
		}

		// The lease expired, claims held by the session are lost
		k.current.Store(nil)
		for {
			delay := k.backoff.NextBackOff()
			k.logger.Infof(ctx, "re-creating etcd session, backoff delay %s", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			var err error
			if session, err = k.open(ctx); err == nil {
				break
			}
			k.logger.Errorf(ctx, "cannot create etcd session: %s", err)
		}
		k.current.Store(session)
	}
}

func (k *sessionKeeper) open(ctx context.Context) (*concurrency.Session, error) {
	startTime := time.Now()
	session, err := concurrency.NewSession(k.client, concurrency.WithTTL(k.ttlSeconds))
	if err != nil {
		return nil, err
	}
	k.backoff.Reset()
	k.logger.WithDuration(time.Since(startTime)).Infof(ctx, `created etcd session, lease "%x"`, int64(session.Lease()))
	return session, nil
}

func (k *sessionKeeper) close(ctx context.Context, session *concurrency.Session) {
	startTime := time.Now()
	k.current.Store(nil)
	if err := session.Close(); err != nil {
		k.logger.Warnf(ctx, "cannot close etcd session: %s", err)
		return
	}
	k.logger.WithDuration(time.Since(startTime)).Info(ctx, "closed etcd session")
}

func newSessionBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.RandomizationFactor = 0.2
	b.InitialInterval = 50 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 1 * time.Minute
	b.MaxElapsedTime = 0 // never stop
	b.Reset()
	return b
}
