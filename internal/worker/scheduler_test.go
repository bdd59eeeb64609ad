package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/klaviyo-sync/internal/config"
	"github.com/ignite/klaviyo-sync/internal/pkg/distlock"
	"github.com/ignite/klaviyo-sync/internal/store"
	syncsvc "github.com/ignite/klaviyo-sync/internal/sync"
)

type fakeClients struct {
	clients []store.Client
	err     error
}

func (f *fakeClients) ActiveClients(context.Context) ([]store.Client, error) {
	return f.clients, f.err
}

type fakeSyncer struct {
	synced []string
	err    error
}

func (f *fakeSyncer) SyncAll(_ context.Context, client store.Client) (*syncsvc.RunReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.synced = append(f.synced, client.ID)
	return &syncsvc.RunReport{RunID: "run-1", ClientID: client.ID}, nil
}

func newTestScheduler(t *testing.T, clients ClientSource, syncer Syncer) (*Scheduler, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	cfg := config.SyncConfig{IntervalMinutes: 60, LockTTLMinutes: 30}
	return NewScheduler(clients, syncer, cfg, rc, nil), rc
}

func TestRunPass_SyncsEveryActiveClient(t *testing.T) {
	clients := &fakeClients{clients: []store.Client{{ID: "c-1"}, {ID: "c-2"}}}
	syncer := &fakeSyncer{}
	sched, _ := newTestScheduler(t, clients, syncer)

	sched.runPass(context.Background())

	assert.Equal(t, []string{"c-1", "c-2"}, syncer.synced)
}

func TestRunPass_SkipsLockedClient(t *testing.T) {
	clients := &fakeClients{clients: []store.Client{{ID: "c-1"}, {ID: "c-2"}}}
	syncer := &fakeSyncer{}
	sched, rc := newTestScheduler(t, clients, syncer)

	// Another worker holds c-1's lock.
	held := distlock.NewRedisLock(rc, "sync:c-1", sched.cfg.LockTTL())
	acquired, err := held.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, acquired)

	sched.runPass(context.Background())

	assert.Equal(t, []string{"c-2"}, syncer.synced)
}

func TestSyncClient_ReleasesLockAfterRun(t *testing.T) {
	clients := &fakeClients{clients: []store.Client{{ID: "c-1"}}}
	syncer := &fakeSyncer{}
	sched, rc := newTestScheduler(t, clients, syncer)

	sched.runPass(context.Background())

	// The lock must be free again for the next pass.
	again := distlock.NewRedisLock(rc, "sync:c-1", sched.cfg.LockTTL())
	acquired, err := again.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestSyncClient_ReleasesLockWhenSyncFails(t *testing.T) {
	clients := &fakeClients{clients: []store.Client{{ID: "c-1"}}}
	syncer := &fakeSyncer{err: errors.New("credential rotted")}
	sched, rc := newTestScheduler(t, clients, syncer)

	sched.runPass(context.Background())
	assert.Empty(t, syncer.synced)

	again := distlock.NewRedisLock(rc, "sync:c-1", sched.cfg.LockTTL())
	acquired, err := again.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestRunPass_ListFailureIsNonFatal(t *testing.T) {
	clients := &fakeClients{err: errors.New("db down")}
	syncer := &fakeSyncer{}
	sched, _ := newTestScheduler(t, clients, syncer)

	sched.runPass(context.Background())
	assert.Empty(t, syncer.synced)
}

func TestRunPass_StopsOnCancelledContext(t *testing.T) {
	clients := &fakeClients{clients: []store.Client{{ID: "c-1"}, {ID: "c-2"}}}
	syncer := &fakeSyncer{}
	sched, _ := newTestScheduler(t, clients, syncer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sched.runPass(ctx)

	assert.Empty(t, syncer.synced)
}
