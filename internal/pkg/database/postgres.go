// Package database is the optional audit store: every confirmed state
// that goes out on the bus is also recorded in Postgres, backing the
// ops history endpoint. The bridge runs fine without it.
package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store writes and reads audit rows. A pool rather than a single conn:
// the worker inserts while the cron cleanup deletes.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
