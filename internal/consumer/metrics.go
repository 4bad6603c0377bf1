package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "club_rpg",
		Subsystem: "consumer",
		Name:      "messages_processed_total",
		Help:      "Number of command invocations successfully handled.",
	}, []string{"topic"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "club_rpg",
		Subsystem: "consumer",
		Name:      "handler_errors_total",
		Help:      "Number of handler errors grouped by topic.",
	}, []string{"topic"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "club_rpg",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Number of decode failures per topic.",
	}, []string{"topic"})

	unknownCommandCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "club_rpg",
		Subsystem: "consumer",
		Name:      "unknown_commands_total",
		Help:      "Number of invocations naming no registered command.",
	}, []string{"topic"})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "club_rpg",
		Subsystem: "consumer",
		Name:      "last_message_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successfully processed message per topic.",
	}, []string{"topic"})

	repliesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "club_rpg",
		Subsystem: "consumer",
		Name:      "replies_published_total",
		Help:      "Number of command replies published.",
	})

	replyErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "club_rpg",
		Subsystem: "consumer",
		Name:      "reply_errors_total",
		Help:      "Number of command replies that could not be published.",
	})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, decodeErrorCounter, unknownCommandCounter,
		lastMessageGauge, repliesCounter, replyErrorCounter)
}

func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Topic).Inc()
	recordLag(msg.Topic, msg.Timestamp)
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.Topic).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}

func recordUnknownCommand(topic string) {
	unknownCommandCounter.WithLabelValues(topic).Inc()
}

func recordLag(topic string, ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastMessageGauge.WithLabelValues(topic).Set(float64(ts.Unix()))
}
