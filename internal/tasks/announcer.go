package tasks

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xmasacrex/club-rpg/internal/command"
	"github.com/xmasacrex/club-rpg/internal/domain"
)

// Announcer tells the participants of a finished trip that their minions are back.
type Announcer struct {
	channel command.Channel
	logger  *zap.Logger
}

// NewAnnouncer returns a handler posting to each activity's channel.
func NewAnnouncer(channel command.Channel, logger *zap.Logger) *Announcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Announcer{channel: channel, logger: logger}
}

// Run implements domain.TaskHandler. A failed send is returned so the
// completion is dead-lettered and announced again later.
func (a *Announcer) Run(ctx context.Context, activity domain.Activity) error {
	if activity.ChannelID == "" {
		a.logger.Debug("activity has no channel, nothing to announce", zap.String("activity_id", activity.ID))
		return nil
	}
	if err := a.channel.Send(ctx, activity.ChannelID, command.Message{Content: completionMessage(activity)}); err != nil {
		return fmt.Errorf("announce %s trip: %w", activity.Type, err)
	}
	return nil
}

func completionMessage(activity domain.Activity) string {
	ids := activity.ParticipantIDs()
	mentions := make([]string, len(ids))
	for i, id := range ids {
		mentions[i] = "<@" + id + ">"
	}
	if activity.IsGroup() {
		return fmt.Sprintf("%s, your party has returned from its %s trip.", strings.Join(mentions, ", "), activity.Type)
	}
	return fmt.Sprintf("%s, your minion has returned from its %s trip.", mentions[0], activity.Type)
}

// RegisterAnnouncers binds an Announcer to every type in activityTypes.
func RegisterAnnouncers(r *Registry, announcer *Announcer, activityTypes []string) error {
	for _, t := range activityTypes {
		if err := r.Register(t, announcer); err != nil {
			return err
		}
	}
	return nil
}
