package domain

import "time"

// HRZone is one configured heart-rate zone boundary pair.
type HRZone struct {
	Min int
	Max int
}

// AthleteProfile holds the athlete identity, upstream credential, and
// optional physiological configuration used by the stress calculator.
type AthleteProfile struct {
	ID           string
	ExternalID   int64
	FirstName    string
	LastName     string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	// HRZones carries the athlete's configured zones when present
	// (5 entries, zone 1 first). Empty means not configured.
	HRZones   []HRZone
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Zone4Min returns the lower bound of zone 4 when zones are configured,
// or 0 when unavailable.
func (p AthleteProfile) Zone4Min() int {
	if len(p.HRZones) < 4 {
		return 0
	}
	return p.HRZones[3].Min
}
