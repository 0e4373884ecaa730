// Package postgres implements the storage contracts on PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories bundles the per-concern stores over one shared pool.
type Repositories struct {
	Athletes   *AthleteRepo
	Activities *ActivityRepo
	Summaries  *SummaryRepo
	Goals      *GoalRepo
	Jobs       *JobRepo
}

// NewRepositories constructs every store on the given pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Athletes:   &AthleteRepo{pool: pool},
		Activities: &ActivityRepo{pool: pool},
		Summaries:  &SummaryRepo{pool: pool},
		Goals:      &GoalRepo{pool: pool},
		Jobs:       &JobRepo{pool: pool},
	}
}

// NewPool opens a connection pool and verifies it.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
