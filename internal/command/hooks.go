package command

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Outcome describes a finished dispatch. It is handed to every post hook.
type Outcome struct {
	Command       AbstractCommand
	Invocation    Invocation
	Args          Args
	Err           error
	UserMessage   string
	Inhibited     bool
	InhibitReason string
	IsContinue    bool
	StartedAt     time.Time
	Duration      time.Duration
}

// Failed reports whether the body raised a non-user error.
func (o Outcome) Failed() bool { return o.Err != nil }

// PostHook runs after every dispatch, whatever happened.
type PostHook interface {
	AfterCommand(ctx context.Context, outcome Outcome) error
}

// PostHookFunc adapts a function to PostHook.
type PostHookFunc func(ctx context.Context, outcome Outcome) error

// AfterCommand calls f.
func (f PostHookFunc) AfterCommand(ctx context.Context, outcome Outcome) error {
	return f(ctx, outcome)
}

// LogHook writes one audit line per dispatch.
func LogHook(logger *zap.Logger) PostHook {
	return PostHookFunc(func(_ context.Context, o Outcome) error {
		fields := []zap.Field{
			zap.String("command", o.Command.Name),
			zap.String("kind", string(o.Command.Kind)),
			zap.String("user_id", o.Invocation.UserID),
			zap.String("channel_id", o.Invocation.ChannelID),
			zap.String("guild_id", o.Invocation.GuildID),
			zap.Bool("inhibited", o.Inhibited),
			zap.Bool("continue", o.IsContinue),
			zap.Duration("duration", o.Duration),
		}
		switch {
		case o.Err != nil:
			logger.Error("command failed", append(fields, zap.Error(o.Err))...)
		case o.Inhibited:
			logger.Info("command inhibited", append(fields, zap.String("reason", o.InhibitReason))...)
		default:
			logger.Info("command ran", fields...)
		}
		return nil
	})
}

// MetricsHook counts dispatches by outcome.
func MetricsHook() PostHook {
	return PostHookFunc(func(_ context.Context, o Outcome) error {
		recordDispatch(o)
		return nil
	})
}

// Usage is one persisted command_usage row.
type Usage struct {
	UserID     string
	GuildID    string
	ChannelID  string
	Command    string
	Args       json.RawMessage
	IsContinue bool
	Inhibited  bool
	Failed     bool
	At         time.Time
}

// UsageRecorder persists command usage statistics.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, usage Usage) error
}

// UsageHook stores a usage row for every dispatch.
func UsageHook(recorder UsageRecorder) PostHook {
	return PostHookFunc(func(ctx context.Context, o Outcome) error {
		args, err := json.Marshal(o.Args)
		if err != nil {
			return err
		}
		return recorder.RecordUsage(ctx, Usage{
			UserID:     o.Invocation.UserID,
			GuildID:    o.Invocation.GuildID,
			ChannelID:  o.Invocation.ChannelID,
			Command:    o.Command.Name,
			Args:       args,
			IsContinue: o.IsContinue,
			Inhibited:  o.Inhibited,
			Failed:     o.Failed(),
			At:         o.StartedAt,
		})
	})
}
