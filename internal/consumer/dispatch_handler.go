package consumer

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xmasacrex/club-rpg/internal/command"
)

// Dispatcher runs a single command request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req command.Request) (command.Outcome, error)
}

// DispatchHandler turns invocations into command requests.
type DispatchHandler struct {
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewDispatchHandler constructs a DispatchHandler.
func NewDispatchHandler(dispatcher Dispatcher, logger *zap.Logger) *DispatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DispatchHandler{dispatcher: dispatcher, logger: logger}
}

// Handle implements Handler. Unknown commands are dropped; command failures
// have already been reported by the dispatcher's hooks.
func (h *DispatchHandler) Handle(ctx context.Context, msg Message) error {
	_, err := h.dispatcher.Dispatch(ctx, RequestFromInvocation(msg))
	if errors.Is(err, command.ErrCommandNotFound) {
		recordUnknownCommand(msg.Topic)
		h.logger.Debug("unknown command", zap.String("command", msg.Invocation.Command))
		return nil
	}
	return err
}

// RequestFromInvocation maps a decoded invocation onto a dispatch request.
// Named options select the structured shape, otherwise arguments are positional.
func RequestFromInvocation(msg Message) command.Request {
	inv := msg.Invocation
	var args command.Args
	if inv.HasOptions() {
		args = command.Options(inv.Options)
	} else {
		args = command.Positional(inv.Args)
	}
	return command.Request{
		Name: inv.Command,
		Args: args,
		Invocation: command.Invocation{
			UserID:    inv.UserID,
			ChannelID: inv.ChannelID,
			GuildID:   inv.GuildID,
		},
		IsContinue: inv.IsContinue,
	}
}
