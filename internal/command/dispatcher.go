package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Request is a single command invocation.
type Request struct {
	Name       string
	Args       Args
	Invocation Invocation
	// IsContinue marks the follow-up step of a multi-step command.
	IsContinue bool
	// BypassInhibitors skips the pre-check stage. Used for continuations
	// that were already checked when the first step ran.
	BypassInhibitors bool
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithInhibitors appends pre-checks, evaluated in order.
func WithInhibitors(inhibitors ...Inhibitor) DispatcherOption {
	return func(d *Dispatcher) {
		d.inhibitors = append(d.inhibitors, inhibitors...)
	}
}

// WithPostHooks appends hooks, run in order after every dispatch.
func WithPostHooks(hooks ...PostHook) DispatcherOption {
	return func(d *Dispatcher) {
		d.hooks = append(d.hooks, hooks...)
	}
}

// WithLogger overrides the dispatcher logger.
func WithLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Dispatcher runs commands through pre-check, execute and post hook stages.
type Dispatcher struct {
	registry   *Registry
	channel    Channel
	inhibitors []Inhibitor
	hooks      []PostHook
	logger     *zap.Logger
}

// NewDispatcher builds a dispatcher over registry that replies through channel.
func NewDispatcher(registry *Registry, channel Channel, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		channel:  channel,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one command. The only error returned is ErrCommandNotFound;
// every other failure is captured in the Outcome and handed to the post hooks,
// which run on every path once the command has been resolved.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (outcome Outcome, err error) {
	e, ok := d.registry.lookup(req.Name)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrCommandNotFound, req.Name)
	}

	outcome = Outcome{
		Command:    e.abstract,
		Invocation: req.Invocation,
		Args:       req.Args,
		IsContinue: req.IsContinue,
		StartedAt:  time.Now(),
	}
	defer func() {
		outcome.Duration = time.Since(outcome.StartedAt)
		d.runHooks(context.WithoutCancel(ctx), outcome)
	}()

	if !req.BypassInhibitors {
		if verdict := d.preCheck(ctx, e.abstract, req.Invocation); verdict.Blocked() {
			outcome.Inhibited = true
			outcome.InhibitReason = verdict.Reason
			if verdict.Kind == BlockWithReason && verdict.Reason != "" {
				d.send(ctx, req.Invocation.ChannelID, Message{Content: verdict.Reason})
			}
			return outcome, nil
		}
	}

	runErr := d.execute(ctx, e, req)
	var userErr *UserError
	switch {
	case runErr == nil:
	case errors.As(runErr, &userErr):
		outcome.UserMessage = userErr.Message
		d.send(ctx, req.Invocation.ChannelID, Message{Content: userErr.Message})
	default:
		outcome.Err = runErr
	}
	return outcome, nil
}

func (d *Dispatcher) preCheck(ctx context.Context, cmd AbstractCommand, inv Invocation) Verdict {
	for i, inhibitor := range d.inhibitors {
		if verdict := d.inhibit(ctx, i, inhibitor, cmd, inv); verdict.Blocked() {
			return verdict
		}
	}
	return Allow()
}

func (d *Dispatcher) inhibit(ctx context.Context, idx int, inhibitor Inhibitor, cmd AbstractCommand, inv Invocation) (verdict Verdict) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("inhibitor panicked",
				zap.Int("inhibitor", idx),
				zap.String("command", cmd.Name),
				zap.Any("panic", r),
			)
			verdict = Silent()
		}
	}()
	return inhibitor.Inhibit(ctx, cmd, inv)
}

func (d *Dispatcher) execute(ctx context.Context, e *entry, req Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command %s panicked: %v", e.abstract.Name, r)
		}
	}()

	switch e.abstract.Kind {
	case KindStructured:
		opts, err := structuredArgs(e.abstract.Name, req.Args)
		if err != nil {
			return err
		}
		msg, err := e.structured.Run(ctx, StructuredCall{Invocation: req.Invocation, Options: opts})
		if err != nil {
			return err
		}
		if !msg.IsEmpty() {
			d.send(ctx, req.Invocation.ChannelID, msg)
		}
		return nil
	case KindLegacy:
		if !e.legacy.Enabled {
			return fmt.Errorf("%w: %s", ErrCommandDisabled, e.abstract.Name)
		}
		args, err := legacyArgs(e.abstract.Name, req.Args)
		if err != nil {
			return err
		}
		channelID := req.Invocation.ChannelID
		return e.legacy.Run(ctx, LegacyCall{
			Invocation: req.Invocation,
			Args:       args,
			reply: func(ctx context.Context, msg Message) {
				d.send(ctx, channelID, msg)
			},
		})
	default:
		return fmt.Errorf("command %s has unknown kind %q", e.abstract.Name, e.abstract.Kind)
	}
}

func structuredArgs(name string, args Args) (Options, error) {
	switch a := args.(type) {
	case nil:
		return Options{}, nil
	case Options:
		if a == nil {
			return Options{}, nil
		}
		return a, nil
	default:
		return nil, fmt.Errorf("%w: %s expects named options, got %T", ErrArgumentShape, name, args)
	}
}

func legacyArgs(name string, args Args) ([]string, error) {
	switch a := args.(type) {
	case nil:
		return []string{}, nil
	case Positional:
		return []string(a), nil
	default:
		return nil, fmt.Errorf("%w: %s expects positional arguments, got %T", ErrArgumentShape, name, args)
	}
}

func (d *Dispatcher) send(ctx context.Context, channelID string, msg Message) {
	if d.channel == nil {
		return
	}
	if err := d.channel.Send(ctx, channelID, msg); err != nil {
		d.logger.Warn("deliver reply", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func (d *Dispatcher) runHooks(ctx context.Context, outcome Outcome) {
	for i, hook := range d.hooks {
		d.runHook(ctx, i, hook, outcome)
	}
}

func (d *Dispatcher) runHook(ctx context.Context, idx int, hook PostHook, outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			hookErrorCounter.Inc()
			d.logger.Error("post hook panicked",
				zap.Int("hook", idx),
				zap.String("command", outcome.Command.Name),
				zap.Any("panic", r),
			)
		}
	}()
	if err := hook.AfterCommand(ctx, outcome); err != nil {
		hookErrorCounter.Inc()
		d.logger.Error("post hook failed",
			zap.Int("hook", idx),
			zap.String("command", outcome.Command.Name),
			zap.Error(err),
		)
	}
}
