package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityUpsertGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trainload",
		Subsystem: "sync",
		Name:      "last_activity_upserted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity written to Postgres.",
	})
	summaryRecalcGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trainload",
		Subsystem: "sync",
		Name:      "last_summary_recalculated_timestamp_seconds",
		Help:      "Unix timestamp of the most recent weekly summary recalculation.",
	})
)

func init() {
	prometheus.MustRegister(activityUpsertGauge, summaryRecalcGauge)
}

// RecordActivityUpserted updates the activity write watermark gauge.
func RecordActivityUpserted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityUpsertGauge.Set(float64(ts.Unix()))
}

// RecordSummariesRecalculated updates the summary recalculation watermark gauge.
func RecordSummariesRecalculated(ts time.Time) {
	if ts.IsZero() {
		return
	}
	summaryRecalcGauge.Set(float64(ts.Unix()))
}
