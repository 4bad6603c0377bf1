package commands

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/xmasacrex/club-rpg/internal/command"
	"github.com/xmasacrex/club-rpg/internal/domain"
)

// Trip sends the caller's minion, and optionally party members, on a timed trip:
//
//	trip <type> <minutes> [@member ...]
func Trip(trips Trips, tripTypes []string, maxDuration time.Duration) *command.LegacyCommand {
	return &command.LegacyCommand{
		Meta: command.Meta{
			Name:           "trip",
			Description:    "Send your minion on a trip.",
			Category:       "minion",
			Examples:       []string{"+trip fishing 30", "+trip raid 60 @friend"},
			RequiresMinion: true,
			RequiresIdle:   true,
		},
		Enabled: true,
		Run: func(ctx context.Context, call command.LegacyCall) error {
			if len(call.Args) < 2 {
				return command.UserErrorf("Usage: trip <%s> <minutes> [@member ...]", strings.Join(tripTypes, "|"))
			}
			tripType := strings.ToLower(call.Args[0])
			if !slices.Contains(tripTypes, tripType) {
				return command.UserErrorf("%q is not a trip your minion knows.", call.Args[0])
			}
			minutes, err := strconv.Atoi(call.Args[1])
			if err != nil || minutes <= 0 {
				return command.UserErrorf("%q is not a number of minutes.", call.Args[1])
			}
			duration := time.Duration(minutes) * time.Minute
			if maxDuration > 0 && duration > maxDuration {
				return command.UserErrorf("Trips can last at most %s.", maxDuration)
			}

			activity, err := trips.StartActivity(ctx, domain.StartInput{
				UserID:       call.UserID,
				Participants: parseMentions(call.Args[2:]),
				Type:         tripType,
				ChannelID:    call.ChannelID,
				Duration:     duration,
			})
			switch {
			case errors.Is(err, domain.ErrConflict):
				return command.UserErrorf("Someone in your party is already busy.")
			case errors.Is(err, domain.ErrInvalidActivity):
				return command.UserErrorf("That trip can't be started.")
			case err != nil:
				return err
			}

			if activity.IsGroup() {
				call.Reply(ctx, "Your party is now %s for %d minutes.", tripType, minutes)
				return nil
			}
			call.Reply(ctx, "Your minion is now %s for %d minutes.", tripType, minutes)
			return nil
		},
	}
}

// parseMentions turns "<@123>", "<@!123>" or bare ids into user ids.
func parseMentions(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		id := strings.TrimSuffix(strings.TrimPrefix(arg, "<@"), ">")
		id = strings.TrimPrefix(id, "!")
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
