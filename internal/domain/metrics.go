package domain

import "github.com/prometheus/client_golang/prometheus"

const (
	startOutcomeStarted  = "started"
	startOutcomeConflict = "conflict"

	completionOutcomeCompleted        = "completed"
	completionOutcomeHandlerFailed    = "handler_failed"
	completionOutcomeAlreadyCompleted = "already_completed"
	completionOutcomeMissingTask      = "missing_task"
	completionOutcomeGuardHeld        = "guard_held"
)

var (
	startedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "club_rpg",
		Subsystem: "activity",
		Name:      "starts_total",
		Help:      "Number of trip start attempts grouped by outcome.",
	}, []string{"outcome"})

	completionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "club_rpg",
		Subsystem: "activity",
		Name:      "completions_total",
		Help:      "Number of trip completion attempts grouped by activity type and outcome.",
	}, []string{"type", "outcome"})

	cancelledCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "club_rpg",
		Subsystem: "activity",
		Name:      "cancellations_total",
		Help:      "Number of trips cancelled before completion.",
	})

	cacheEntriesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "club_rpg",
		Subsystem: "activity",
		Name:      "cache_participants",
		Help:      "Participants currently mapped to an active trip in memory.",
	})

	guardHeldGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "club_rpg",
		Subsystem: "activity",
		Name:      "guard_held",
		Help:      "Participants currently holding the completion guard.",
	})
)

func init() {
	prometheus.MustRegister(startedCounter, completionCounter, cancelledCounter, cacheEntriesGauge, guardHeldGauge)
}

func recordStart(outcome string) {
	startedCounter.WithLabelValues(outcome).Inc()
}

func recordCompletion(activityType, outcome string) {
	completionCounter.WithLabelValues(activityType, outcome).Inc()
}
