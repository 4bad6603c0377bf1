package domain

import (
	"encoding/json"
	"time"
)

// Activity is a minion trip persisted in the activity store.
type Activity struct {
	ID           string
	UserID       string
	Participants []string
	Type         string
	ChannelID    string
	StartedAt    time.Time
	Duration     time.Duration
	FinishAt     time.Time
	Completed    bool
	Data         json.RawMessage
}

// ParticipantIDs returns every user taking part in the activity, primary user first.
func (a Activity) ParticipantIDs() []string {
	if len(a.Participants) == 0 {
		return []string{a.UserID}
	}
	return a.Participants
}

// IsGroup reports whether more than one user shares the activity.
func (a Activity) IsGroup() bool {
	return len(a.ParticipantIDs()) > 1
}

// clone returns a copy that shares no slices with a.
func (a Activity) clone() Activity {
	out := a
	if a.Participants != nil {
		out.Participants = append([]string(nil), a.Participants...)
	}
	if a.Data != nil {
		out.Data = append(json.RawMessage(nil), a.Data...)
	}
	return out
}

// Cursor models the pagination token for activity history.
type Cursor struct {
	StartedAt time.Time
	ID        string
}
