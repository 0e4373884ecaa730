package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/trainload/internal/domain"
)

// AthleteRepo persists athlete profiles and credentials.
type AthleteRepo struct {
	pool *pgxpool.Pool
}

// FindByExternalID loads one athlete profile.
func (r *AthleteRepo) FindByExternalID(ctx context.Context, externalID int64) (*domain.AthleteProfile, error) {
	const query = `SELECT id, external_id, first_name, last_name, access_token, refresh_token, token_expiry, hr_zones, created_at, updated_at
        FROM athletes WHERE external_id=$1`

	var p domain.AthleteProfile
	var zones []byte
	err := r.pool.QueryRow(ctx, query, externalID).Scan(
		&p.ID, &p.ExternalID, &p.FirstName, &p.LastName,
		&p.AccessToken, &p.RefreshToken, &p.TokenExpiry,
		&zones, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAthleteNotFound
		}
		return nil, err
	}

	if len(zones) > 0 {
		if err := json.Unmarshal(zones, &p.HRZones); err != nil {
			return nil, fmt.Errorf("decoding hr_zones for athlete %d: %w", externalID, err)
		}
	}
	return &p, nil
}

// UpdateCredential stores a rotated OAuth token pair.
func (r *AthleteRepo) UpdateCredential(ctx context.Context, externalID int64, accessToken, refreshToken string, expiry time.Time) error {
	const stmt = `UPDATE athletes
        SET access_token=$2, refresh_token=$3, token_expiry=$4, updated_at=NOW()
        WHERE external_id=$1`

	tag, err := r.pool.Exec(ctx, stmt, externalID, accessToken, refreshToken, expiry)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAthleteNotFound
	}
	return nil
}
