// Package events defines the payloads the bot publishes to Kafka.
package events

import "time"

// Event types written to the outbox.
const (
	TypeActivityStarted   = "activity.started"
	TypeActivityCompleted = "activity.completed"
	TypeActivityCancelled = "activity.cancelled"
)

// ActivityStarted is emitted when a minion leaves on a trip.
type ActivityStarted struct {
	ActivityID   string    `json:"activity_id"`
	UserID       string    `json:"user_id"`
	Participants []string  `json:"participants"`
	ActivityType string    `json:"activity_type"`
	ChannelID    string    `json:"channel_id"`
	StartedAt    time.Time `json:"started_at"`
	FinishAt     time.Time `json:"finish_at"`
	DurationSec  int64     `json:"duration_sec"`
}

// ActivityCompleted is emitted once per trip, when completion is claimed.
type ActivityCompleted struct {
	ActivityID   string    `json:"activity_id"`
	UserID       string    `json:"user_id"`
	Participants []string  `json:"participants"`
	ActivityType string    `json:"activity_type"`
	CompletedAt  time.Time `json:"completed_at"`
}

// ActivityCancelled is emitted when an incomplete trip is deleted.
type ActivityCancelled struct {
	ActivityID   string    `json:"activity_id"`
	UserID       string    `json:"user_id"`
	Participants []string  `json:"participants"`
	ActivityType string    `json:"activity_type"`
	CancelledAt  time.Time `json:"cancelled_at"`
}
