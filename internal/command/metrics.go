package command

import "github.com/prometheus/client_golang/prometheus"

var (
	dispatchCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "club_rpg",
		Subsystem: "command",
		Name:      "dispatches_total",
		Help:      "Number of command dispatches grouped by command and outcome.",
	}, []string{"command", "outcome"})

	dispatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "club_rpg",
		Subsystem: "command",
		Name:      "dispatch_duration_seconds",
		Help:      "Time spent in command bodies, inhibited dispatches included.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"command"})

	hookErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "club_rpg",
		Subsystem: "command",
		Name:      "post_hook_errors_total",
		Help:      "Number of post hook failures.",
	})
)

func init() {
	prometheus.MustRegister(dispatchCounter, dispatchDuration, hookErrorCounter)
}

func outcomeLabel(o Outcome) string {
	switch {
	case o.Inhibited:
		return "inhibited"
	case o.Err != nil:
		return "failed"
	case o.UserMessage != "":
		return "user_error"
	default:
		return "ok"
	}
}

func recordDispatch(o Outcome) {
	dispatchCounter.WithLabelValues(o.Command.Name, outcomeLabel(o)).Inc()
	dispatchDuration.WithLabelValues(o.Command.Name).Observe(o.Duration.Seconds())
}
