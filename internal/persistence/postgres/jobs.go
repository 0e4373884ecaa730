package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/trainload/internal/ingest"
)

// JobRepo is the ingestion ledger store.
type JobRepo struct {
	pool *pgxpool.Pool
}

// InsertPending records a new job.
func (r *JobRepo) InsertPending(ctx context.Context, job ingest.Job) error {
	const stmt = `INSERT INTO ingestion_jobs
        (id, athlete_external_id, activity_external_id, kind, event_time, status, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())`

	_, err := r.pool.Exec(ctx, stmt,
		job.ID,
		job.AthleteExternalID,
		job.ActivityExternalID,
		string(job.Kind),
		job.EventTime,
		string(ingest.StatusPending),
	)
	return err
}

// ClaimForDispatch selects and claims a batch of pending jobs inside one
// transaction. SKIP LOCKED keeps concurrent dispatchers from racing over
// the same rows.
func (r *JobRepo) ClaimForDispatch(ctx context.Context, limit int) ([]ingest.Job, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const query = `SELECT id, athlete_external_id, activity_external_id, kind, event_time, status, last_error, created_at, updated_at
        FROM ingestion_jobs
        WHERE status='pending' AND claimed_at IS NULL
        ORDER BY created_at
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]ingest.Job, 0)
	ids := make([]string, 0)
	for rows.Next() {
		var job ingest.Job
		var kind, status string
		if err = rows.Scan(&job.ID, &job.AthleteExternalID, &job.ActivityExternalID, &kind, &job.EventTime, &status, &job.LastError, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, err
		}
		job.Kind = ingest.JobKind(kind)
		job.Status = ingest.JobStatus(status)
		jobs = append(jobs, job)
		ids = append(ids, job.ID)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		tx.Rollback(ctx)
		return nil, nil
	}

	if _, err = tx.Exec(ctx, `UPDATE ingestion_jobs SET claimed_at=NOW(), updated_at=NOW() WHERE id = ANY($1)`, ids); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return jobs, nil
}

// MarkDispatched transitions claimed jobs to dispatched.
func (r *JobRepo) MarkDispatched(ctx context.Context, jobIDs []string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE ingestion_jobs SET status='dispatched', dispatched_at=NOW(), updated_at=NOW() WHERE id = ANY($1)`,
		jobIDs)
	return err
}

// MarkCompleted records successful processing.
func (r *JobRepo) MarkCompleted(ctx context.Context, jobID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE ingestion_jobs SET status='completed', completed_at=NOW(), updated_at=NOW() WHERE id=$1`,
		jobID)
	return err
}

// MarkFailed parks a job with the terminal error.
func (r *JobRepo) MarkFailed(ctx context.Context, jobID, reason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE ingestion_jobs SET status='failed', last_error=$2, updated_at=NOW() WHERE id=$1`,
		jobID, reason)
	return err
}

// PruneCompleted deletes completed jobs past the cutoff, always keeping the
// most recent ones.
func (r *JobRepo) PruneCompleted(ctx context.Context, olderThan time.Time, keep int) (int64, error) {
	return r.prune(ctx, string(ingest.StatusCompleted), olderThan, keep)
}

// PruneFailed deletes parked jobs past the cutoff, always keeping the most
// recent ones.
func (r *JobRepo) PruneFailed(ctx context.Context, olderThan time.Time, keep int) (int64, error) {
	return r.prune(ctx, string(ingest.StatusFailed), olderThan, keep)
}

func (r *JobRepo) prune(ctx context.Context, status string, olderThan time.Time, keep int) (int64, error) {
	const stmt = `DELETE FROM ingestion_jobs
        WHERE status=$1 AND updated_at < $2
          AND id NOT IN (
              SELECT id FROM ingestion_jobs WHERE status=$1
              ORDER BY updated_at DESC LIMIT $3)`

	tag, err := r.pool.Exec(ctx, stmt, status, olderThan, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ReleaseStuck returns stale claims to the pending pool.
func (r *JobRepo) ReleaseStuck(ctx context.Context, claimedBefore time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE ingestion_jobs SET claimed_at=NULL, updated_at=NOW()
         WHERE status='pending' AND claimed_at IS NOT NULL AND claimed_at < $1`,
		claimedBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
