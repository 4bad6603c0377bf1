package scheduler

import "github.com/prometheus/client_golang/prometheus"

const (
	resultCompleted = "completed"
	resultSkipped   = "skipped"
	resultFailed    = "failed"
)

var (
	completedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "club_rpg",
		Subsystem: "scheduler",
		Name:      "due_activities_total",
		Help:      "Due trips handed to completion grouped by result.",
	}, []string{"result"})

	tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "club_rpg",
		Subsystem: "scheduler",
		Name:      "tick_duration_seconds",
		Help:      "Duration of scheduler ticks that found due trips.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(completedCounter, tickDuration)
}
