package deadletter

import "github.com/prometheus/client_golang/prometheus"

var (
	redeliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "club_rpg",
		Subsystem: "task_dlq",
		Name:      "redelivered_total",
		Help:      "Number of failed completions whose handler succeeded on redelivery.",
	}, []string{"type"})

	retryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "club_rpg",
		Subsystem: "task_dlq",
		Name:      "retry_scheduled_total",
		Help:      "Number of times a failed completion was scheduled for a future retry.",
	}, []string{"type"})

	quarantinedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "club_rpg",
		Subsystem: "task_dlq",
		Name:      "quarantined_total",
		Help:      "Number of failed completions handed over to operators.",
	}, []string{"type"})

	backlogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "club_rpg",
		Subsystem: "task_dlq",
		Name:      "queued_entries",
		Help:      "Current number of failed completions awaiting redelivery.",
	})
)

func init() {
	prometheus.MustRegister(redeliveredCounter, retryCounter, quarantinedCounter, backlogGauge)
}
