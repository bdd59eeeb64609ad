// Package store is the persistence gateway: idempotent upserts keyed by each
// entity's composite conflict key, and paged reads that transparently walk
// offset pages past the store's single-query row cap.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/klaviyo-sync/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// pageLimit is the maximum rows one query may return; larger result sets
// are read in offset pages until a short page signals exhaustion.
const pageLimit = 1000

// Store provides access to the metrics database. Construct with New and
// pass explicitly; there is no package-level instance.
type Store struct {
	db    *sql.DB
	redis *redis.Client
}

// New creates a Store. redisClient may be nil; dashboard reads are then
// served uncached.
func New(db *sql.DB, redisClient *redis.Client) *Store {
	return &Store{db: db, redis: redisClient}
}

// DB exposes the underlying handle for advisory locks.
func (s *Store) DB() *sql.DB { return s.db }

// ActiveClients returns all clients eligible for syncing.
func (s *Store) ActiveClients(ctx context.Context) ([]Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agency_id, name, encrypted_api_key, is_active, created_at
		FROM clients
		WHERE is_active = TRUE
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list active clients: %w", err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.AgencyID, &c.Name, &c.EncryptedAPIKey, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetClient returns one client by id, or nil when no such client exists.
func (s *Store) GetClient(ctx context.Context, id string) (*Client, error) {
	c := &Client{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agency_id, name, encrypted_api_key, is_active, created_at
		FROM clients
		WHERE id = $1
	`, id).Scan(&c.ID, &c.AgencyID, &c.Name, &c.EncryptedAPIKey, &c.IsActive, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

// readPages runs fetch with increasing offsets until it returns fewer rows
// than pageLimit. fetch returns the number of rows it appended.
func readPages(fetch func(limit, offset int) (int, error)) error {
	offset := 0
	for {
		n, err := fetch(pageLimit, offset)
		if err != nil {
			return err
		}
		if n < pageLimit {
			return nil
		}
		offset += n
	}
}

// logDegraded logs a failed read and signals the caller to return an empty
// result. A single failed metric fetch must not abort a dashboard render.
func logDegraded(op string, err error) {
	logger.Error("store: read failed, returning empty result", "op", op, "error", err)
}

func daysAgo(days int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -days).Truncate(24 * time.Hour)
}
