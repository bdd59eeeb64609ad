// Package worker runs the periodic sync schedule: every interval it scans
// active clients and runs a full sync for each, guarded by a per-client
// distributed lock so overlapping workers never double-sync an account.
package worker

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/klaviyo-sync/internal/config"
	"github.com/ignite/klaviyo-sync/internal/pkg/distlock"
	"github.com/ignite/klaviyo-sync/internal/pkg/logger"
	"github.com/ignite/klaviyo-sync/internal/store"
	syncsvc "github.com/ignite/klaviyo-sync/internal/sync"
)

// ClientSource lists the accounts to sync. *store.Store satisfies it.
type ClientSource interface {
	ActiveClients(ctx context.Context) ([]store.Client, error)
}

// Syncer runs one full client sync. *sync.Service satisfies it.
type Syncer interface {
	SyncAll(ctx context.Context, client store.Client) (*syncsvc.RunReport, error)
}

// Scheduler drives the sync loop.
type Scheduler struct {
	clients ClientSource
	syncer  Syncer
	cfg     config.SyncConfig

	// newLock builds the per-client lock; swappable in tests.
	newLock func(clientID string) distlock.DistLock
}

// NewScheduler creates a Scheduler. redisClient may be nil; locking then
// falls back to Postgres advisory locks.
func NewScheduler(clients ClientSource, syncer Syncer, cfg config.SyncConfig, redisClient *redis.Client, db *sql.DB) *Scheduler {
	return &Scheduler{
		clients: clients,
		syncer:  syncer,
		cfg:     cfg,
		newLock: func(clientID string) distlock.DistLock {
			return distlock.NewSyncLock(redisClient, db, clientID, cfg.LockTTL())
		},
	}
}

// Run executes one pass immediately, then one per interval until the
// context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	logger.Info("worker: scheduler started", "interval", s.cfg.Interval().String())

	s.runPass(ctx)

	ticker := time.NewTicker(s.cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker: scheduler stopped")
			return
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

// runPass syncs every active client sequentially. One slow account delays
// the rest of the pass but never the next scheduled pass for other workers,
// which skip locked clients.
func (s *Scheduler) runPass(ctx context.Context) {
	clients, err := s.clients.ActiveClients(ctx)
	if err != nil {
		logger.Error("worker: listing active clients failed", "error", err)
		return
	}
	logger.Info("worker: pass started", "clients", len(clients))

	synced := 0
	for _, client := range clients {
		if ctx.Err() != nil {
			return
		}
		if s.syncClient(ctx, client) {
			synced++
		}
	}
	logger.Info("worker: pass finished", "clients", len(clients), "synced", synced)
}

// syncClient runs one client under its lock. Returns false when the lock is
// held elsewhere or the run failed.
func (s *Scheduler) syncClient(ctx context.Context, client store.Client) bool {
	lock := s.newLock(client.ID)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		logger.Error("worker: lock acquire failed", "client_id", client.ID, "error", err)
		return false
	}
	if !acquired {
		logger.Info("worker: client locked by another worker, skipping", "client_id", client.ID)
		return false
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			logger.Warn("worker: lock release failed", "client_id", client.ID, "error", err)
		}
	}()

	report, err := s.syncer.SyncAll(ctx, client)
	if err != nil {
		logger.Error("worker: sync failed", "client_id", client.ID, "error", err)
		return false
	}
	if failed := report.Failed(); len(failed) > 0 {
		logger.Warn("worker: sync finished with failed syncers",
			"client_id", client.ID, "run_id", report.RunID, "failed", len(failed))
	}
	return true
}
