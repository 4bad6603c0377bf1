package commands

import (
	"context"
	"strings"
	"time"

	"github.com/xmasacrex/club-rpg/internal/command"
	"github.com/xmasacrex/club-rpg/internal/domain"
)

// Minion reports on and cancels the caller's trip.
func Minion(trips Trips, now func() time.Time) *command.StructuredCommand {
	return &command.StructuredCommand{
		Meta: command.Meta{
			Name:           "minion",
			Description:    "Check on your minion or call it back from its trip.",
			Category:       "minion",
			Examples:       []string{"/minion status", "/minion cancel"},
			RequiresMinion: true,
		},
		Run: func(ctx context.Context, call command.StructuredCall) (command.Message, error) {
			if _, ok := call.Options.Sub("cancel"); ok {
				return cancelTrip(ctx, trips, call.UserID)
			}
			return status(trips, now, call.UserID), nil
		},
	}
}

func status(trips Trips, now func() time.Time, userID string) command.Message {
	activity, ok := trips.ActivityOf(userID)
	if !ok {
		return command.Text("Your minion is idle.")
	}
	var party string
	if others := otherParticipants(activity, userID); len(others) > 0 {
		party = " with " + strings.Join(others, ", ")
	}
	remaining := activity.FinishAt.Sub(now()).Round(time.Second)
	if remaining <= 0 {
		return command.Text("Your minion is returning from its %s trip%s.", activity.Type, party)
	}
	return command.Text("Your minion is on a %s trip%s, returning in %s.", activity.Type, party, remaining)
}

func cancelTrip(ctx context.Context, trips Trips, userID string) (command.Message, error) {
	activity, ok := trips.ActivityOf(userID)
	if !ok {
		stored, err := trips.FindActivity(ctx, userID)
		if err != nil {
			return command.Message{}, err
		}
		if stored == nil {
			return command.Message{}, command.UserErrorf("Your minion is not on a trip.")
		}
		activity = *stored
	}
	if activity.IsGroup() && activity.UserID != userID {
		return command.Message{}, command.UserErrorf("Only the party leader can cancel a group trip.")
	}
	cancelled, err := trips.CancelActivity(ctx, userID)
	if err != nil {
		return command.Message{}, err
	}
	if cancelled == nil {
		return command.Message{}, command.UserErrorf("Your minion is not on a trip.")
	}
	return command.Text("Your minion has abandoned its %s trip.", cancelled.Type), nil
}

func otherParticipants(activity domain.Activity, userID string) []string {
	out := make([]string, 0)
	for _, id := range activity.ParticipantIDs() {
		if id != userID {
			out = append(out, "<@"+id+">")
		}
	}
	return out
}
