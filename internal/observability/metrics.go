// Package observability exposes persistence watermarks shared across stores.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityStartedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "club_rpg",
		Subsystem: "persistence",
		Name:      "last_activity_started_timestamp_seconds",
		Help:      "Unix timestamp of the most recent trip persisted to Postgres.",
	})
	activityCompletedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "club_rpg",
		Subsystem: "persistence",
		Name:      "last_activity_completed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent trip whose completion was claimed.",
	})
)

func init() {
	prometheus.MustRegister(activityStartedGauge, activityCompletedGauge)
}

// RecordActivityStarted updates the start watermark gauge.
func RecordActivityStarted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityStartedGauge.Set(float64(ts.Unix()))
}

// RecordActivityCompleted updates the completion watermark gauge.
func RecordActivityCompleted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityCompletedGauge.Set(float64(ts.Unix()))
}
