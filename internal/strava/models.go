package strava

import "time"

// Activity is the upstream activity record as returned by the provider API.
type Activity struct {
	ID                 int64    `json:"id"`
	Name               string   `json:"name"`
	Type               string   `json:"type"`
	SportType          string   `json:"sport_type"`
	Distance           float64  `json:"distance"`
	MovingTime         int      `json:"moving_time"`
	ElapsedTime        int      `json:"elapsed_time"`
	TotalElevationGain float64  `json:"total_elevation_gain"`
	SufferScore        *float64 `json:"suffer_score"`
	AverageHeartrate   *float64 `json:"average_heartrate"`
	MaxHeartrate       *float64 `json:"max_heartrate"`
	AverageSpeed       float64  `json:"average_speed"`
	MaxSpeed           float64  `json:"max_speed"`
	StartDate          string   `json:"start_date"`
	StartDateLocal     string   `json:"start_date_local"`
	Timezone           string   `json:"timezone"`
	HasHeartrate       bool     `json:"has_heartrate"`
	Athlete            struct {
		ID int64 `json:"id"`
	} `json:"athlete"`
}

// StartTime parses the UTC start timestamp.
func (a Activity) StartTime() time.Time {
	t, err := time.Parse(time.RFC3339, a.StartDate)
	if err != nil {
		return time.Time{}
	}
	return t
}

// LocalStartTime parses the provider's local start timestamp. The provider
// formats it with a Z suffix even though it is wall-clock local time.
func (a Activity) LocalStartTime() time.Time {
	t, err := time.Parse(time.RFC3339, a.StartDateLocal)
	if err != nil {
		return a.StartTime()
	}
	return t
}

// Zone is one zone-analysis block for an activity.
type Zone struct {
	Type                string       `json:"type"`
	SensorBased         bool         `json:"sensor_based"`
	CustomZones         bool         `json:"custom_zones"`
	DistributionBuckets []ZoneBucket `json:"distribution_buckets"`
}

// ZoneBucket is the time spent inside one zone band.
type ZoneBucket struct {
	Min  int `json:"min"`
	Max  int `json:"max"`
	Time int `json:"time"`
}
