package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/trainload/internal/domain"
)

// GoalRepo persists weekly goals. A partial unique index keeps at most one
// active goal per athlete and week.
type GoalRepo struct {
	pool *pgxpool.Pool
}

const goalColumns = `id, athlete_external_id, type, target, unit, filter, week_start, progress, active, created_at, updated_at`

// FindActive returns the active goal for the given week.
func (r *GoalRepo) FindActive(ctx context.Context, athleteExternalID int64, weekStart time.Time) (*domain.Goal, error) {
	const query = `SELECT ` + goalColumns + ` FROM goals
        WHERE athlete_external_id=$1 AND week_start=$2 AND active`

	goal, err := scanGoal(r.pool.QueryRow(ctx, query, athleteExternalID, weekStart))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoGoal
		}
		return nil, err
	}
	return goal, nil
}

// Create inserts a goal.
func (r *GoalRepo) Create(ctx context.Context, goal domain.Goal) error {
	const stmt = `INSERT INTO goals (id, athlete_external_id, type, target, unit, filter, week_start, progress, active, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW())`

	_, err := r.pool.Exec(ctx, stmt,
		goal.ID,
		goal.AthleteExternalID,
		string(goal.Type),
		goal.Target,
		goal.Unit,
		string(goal.Filter),
		goal.WeekStart,
		goal.Progress,
		goal.Active,
	)
	return err
}

// DeactivateWeek retires every active goal for the week, keeping the rows
// for history.
func (r *GoalRepo) DeactivateWeek(ctx context.Context, athleteExternalID int64, weekStart time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE goals SET active=FALSE, updated_at=NOW()
         WHERE athlete_external_id=$1 AND week_start=$2 AND active`,
		athleteExternalID, weekStart)
	return err
}

// UpdateProgress stores recomputed progress.
func (r *GoalRepo) UpdateProgress(ctx context.Context, goalID string, progress float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE goals SET progress=$2, updated_at=NOW() WHERE id=$1`,
		goalID, progress)
	return err
}

// History returns the latest goals, newest week first. Replaced goals of the
// same week sort below the one that superseded them.
func (r *GoalRepo) History(ctx context.Context, athleteExternalID int64, limit int) ([]domain.Goal, error) {
	const query = `SELECT ` + goalColumns + ` FROM goals
        WHERE athlete_external_id=$1
        ORDER BY week_start DESC, active DESC, created_at DESC
        LIMIT $2`

	rows, err := r.pool.Query(ctx, query, athleteExternalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Goal
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *goal)
	}
	return out, rows.Err()
}

func scanGoal(row rowScanner) (*domain.Goal, error) {
	var g domain.Goal
	var goalType, filter string
	err := row.Scan(
		&g.ID, &g.AthleteExternalID, &goalType, &g.Target, &g.Unit,
		&filter, &g.WeekStart, &g.Progress, &g.Active, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.Type = domain.GoalType(goalType)
	g.Filter = domain.ActivityFilter(filter)
	return &g, nil
}
