package command

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type sentMessage struct {
	channelID string
	msg       Message
}

type recordingChannel struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (c *recordingChannel) Send(_ context.Context, channelID string, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{channelID: channelID, msg: msg})
	return c.err
}

func (c *recordingChannel) contents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, s := range c.sent {
		out = append(out, s.msg.Content)
	}
	return out
}

type outcomeSink struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (s *outcomeSink) AfterCommand(_ context.Context, o Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
	return nil
}

func (s *outcomeSink) only(t *testing.T) Outcome {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.outcomes, 1)
	return s.outcomes[0]
}

var testInvocation = Invocation{UserID: "u1", ChannelID: "c1", GuildID: "g1"}

func newTestDispatcher(t *testing.T, defs []Definition, opts ...DispatcherOption) (*Dispatcher, *recordingChannel, *outcomeSink) {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register(defs...))
	channel := &recordingChannel{}
	sink := &outcomeSink{}
	opts = append(opts, WithPostHooks(sink))
	return NewDispatcher(reg, channel, opts...), channel, sink
}

func TestDispatchStructuredSendsReply(t *testing.T) {
	var got StructuredCall
	cmd := &StructuredCommand{
		Meta: Meta{Name: "minion"},
		Run: func(_ context.Context, call StructuredCall) (Message, error) {
			got = call
			return Text("hello %s", call.UserID), nil
		},
	}
	d, channel, sink := newTestDispatcher(t, []Definition{cmd})

	outcome, err := d.Dispatch(context.Background(), Request{
		Name:       "minion",
		Args:       Options{"status": Options{}},
		Invocation: testInvocation,
	})
	require.NoError(t, err)
	require.False(t, outcome.Inhibited)
	require.NoError(t, outcome.Err)

	_, ok := got.Options.Sub("status")
	require.True(t, ok)
	require.Equal(t, []string{"hello u1"}, channel.contents())
	require.Equal(t, "minion", sink.only(t).Command.Name)
}

func TestDispatchLegacyWritesOwnOutput(t *testing.T) {
	cmd := &LegacyCommand{
		Meta:    Meta{Name: "trip"},
		Enabled: true,
		Run: func(ctx context.Context, call LegacyCall) error {
			call.Reply(ctx, "going %s for %s", call.Args[0], call.Args[1])
			return nil
		},
	}
	d, channel, _ := newTestDispatcher(t, []Definition{cmd})

	_, err := d.Dispatch(context.Background(), Request{
		Name:       "trip",
		Args:       Positional{"fishing", "30"},
		Invocation: testInvocation,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"going fishing for 30"}, channel.contents())
}

func TestDispatchUserErrorIsReplied(t *testing.T) {
	cmd := &StructuredCommand{
		Meta: Meta{Name: "minion"},
		Run: func(context.Context, StructuredCall) (Message, error) {
			return Message{}, UserErrorf("You don't have a minion yet.")
		},
	}
	d, channel, sink := newTestDispatcher(t, []Definition{cmd})

	_, err := d.Dispatch(context.Background(), Request{Name: "minion", Invocation: testInvocation})
	require.NoError(t, err)
	require.Equal(t, []string{"You don't have a minion yet."}, channel.contents())

	outcome := sink.only(t)
	require.NoError(t, outcome.Err)
	require.Equal(t, "You don't have a minion yet.", outcome.UserMessage)
}

func TestDispatchHardErrorReachesHooksWithoutReply(t *testing.T) {
	boom := errors.New("database unavailable")
	cmd := &StructuredCommand{
		Meta: Meta{Name: "minion"},
		Run: func(context.Context, StructuredCall) (Message, error) {
			return Message{}, boom
		},
	}
	core, logs := observer.New(zapcore.InfoLevel)
	reg := NewRegistry()
	require.NoError(t, reg.Register(cmd))
	channel := &recordingChannel{}
	sink := &outcomeSink{}
	d := NewDispatcher(reg, channel, WithPostHooks(LogHook(zap.New(core)), sink))

	outcome, err := d.Dispatch(context.Background(), Request{Name: "minion", Invocation: testInvocation})
	require.NoError(t, err)
	require.ErrorIs(t, outcome.Err, boom)
	require.Empty(t, channel.contents())
	require.ErrorIs(t, sink.only(t).Err, boom)

	entries := logs.FilterMessage("command failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, "minion", entries[0].ContextMap()["command"])
}

func TestDispatchPanicBecomesFailure(t *testing.T) {
	cmd := &LegacyCommand{
		Meta:    Meta{Name: "trip"},
		Enabled: true,
		Run: func(context.Context, LegacyCall) error {
			panic("nil minion")
		},
	}
	d, channel, sink := newTestDispatcher(t, []Definition{cmd})

	_, err := d.Dispatch(context.Background(), Request{Name: "trip", Invocation: testInvocation})
	require.NoError(t, err)
	require.ErrorContains(t, sink.only(t).Err, "nil minion")
	require.Empty(t, channel.contents())
}

func TestDispatchRejectsWrongArgumentShape(t *testing.T) {
	ran := false
	structured := &StructuredCommand{
		Meta: Meta{Name: "minion"},
		Run: func(context.Context, StructuredCall) (Message, error) {
			ran = true
			return Message{}, nil
		},
	}
	legacy := &LegacyCommand{
		Meta:    Meta{Name: "trip"},
		Enabled: true,
		Run: func(context.Context, LegacyCall) error {
			ran = true
			return nil
		},
	}
	d, _, sink := newTestDispatcher(t, []Definition{structured, legacy})

	outcome, err := d.Dispatch(context.Background(), Request{Name: "minion", Args: Positional{"status"}, Invocation: testInvocation})
	require.NoError(t, err)
	require.ErrorIs(t, outcome.Err, ErrArgumentShape)

	outcome, err = d.Dispatch(context.Background(), Request{Name: "trip", Args: Options{"type": "fishing"}, Invocation: testInvocation})
	require.NoError(t, err)
	require.ErrorIs(t, outcome.Err, ErrArgumentShape)

	require.False(t, ran)
	require.Len(t, sink.outcomes, 2)
}

func TestDispatchDisabledLegacyCommand(t *testing.T) {
	cmd := &LegacyCommand{Meta: Meta{Name: "trip"}, Run: noopLegacy}
	d, _, sink := newTestDispatcher(t, []Definition{cmd})

	_, err := d.Dispatch(context.Background(), Request{Name: "trip", Invocation: testInvocation})
	require.NoError(t, err)
	require.ErrorIs(t, sink.only(t).Err, ErrCommandDisabled)
}

func TestDispatchUnknownCommand(t *testing.T) {
	d, channel, sink := newTestDispatcher(t, nil)

	_, err := d.Dispatch(context.Background(), Request{Name: "bank", Invocation: testInvocation})
	require.ErrorIs(t, err, ErrCommandNotFound)
	require.Empty(t, channel.contents())
	require.Empty(t, sink.outcomes)
}

func TestDispatchFirstBlockingInhibitorWins(t *testing.T) {
	ran := false
	cmd := &StructuredCommand{
		Meta: Meta{Name: "minion"},
		Run: func(context.Context, StructuredCall) (Message, error) {
			ran = true
			return Message{}, nil
		},
	}
	secondCalled := false
	first := InhibitorFunc(func(context.Context, AbstractCommand, Invocation) Verdict {
		return Block("Your minion is busy.")
	})
	second := InhibitorFunc(func(context.Context, AbstractCommand, Invocation) Verdict {
		secondCalled = true
		return Silent()
	})
	d, channel, sink := newTestDispatcher(t, []Definition{cmd}, WithInhibitors(first, second))

	_, err := d.Dispatch(context.Background(), Request{Name: "minion", Invocation: testInvocation})
	require.NoError(t, err)
	require.False(t, ran)
	require.False(t, secondCalled)
	require.Equal(t, []string{"Your minion is busy."}, channel.contents())

	outcome := sink.only(t)
	require.True(t, outcome.Inhibited)
	require.Equal(t, "Your minion is busy.", outcome.InhibitReason)
}

func TestDispatchSilentInhibitorSendsNothing(t *testing.T) {
	cmd := &StructuredCommand{Meta: Meta{Name: "minion"}, Run: noopStructured}
	d, channel, sink := newTestDispatcher(t, []Definition{cmd},
		WithInhibitors(BlacklistInhibitor(NewStaticBlacklist([]string{"u1"}))))

	_, err := d.Dispatch(context.Background(), Request{Name: "minion", Invocation: testInvocation})
	require.NoError(t, err)
	require.Empty(t, channel.contents())
	require.True(t, sink.only(t).Inhibited)
}

func TestDispatchBypassInhibitorsForContinuation(t *testing.T) {
	ran := false
	cmd := &StructuredCommand{
		Meta: Meta{Name: "minion"},
		Run: func(context.Context, StructuredCall) (Message, error) {
			ran = true
			return Message{}, nil
		},
	}
	d, _, sink := newTestDispatcher(t, []Definition{cmd},
		WithInhibitors(InhibitorFunc(func(context.Context, AbstractCommand, Invocation) Verdict {
			return Silent()
		})))

	_, err := d.Dispatch(context.Background(), Request{
		Name:             "minion",
		Invocation:       testInvocation,
		IsContinue:       true,
		BypassInhibitors: true,
	})
	require.NoError(t, err)
	require.True(t, ran)
	require.True(t, sink.only(t).IsContinue)
}

func TestDispatchInhibitorPanicFailsClosed(t *testing.T) {
	ran := false
	cmd := &StructuredCommand{
		Meta: Meta{Name: "minion"},
		Run: func(context.Context, StructuredCall) (Message, error) {
			ran = true
			return Message{}, nil
		},
	}
	d, _, sink := newTestDispatcher(t, []Definition{cmd},
		WithInhibitors(InhibitorFunc(func(context.Context, AbstractCommand, Invocation) Verdict {
			panic("lookup failed")
		})))

	_, err := d.Dispatch(context.Background(), Request{Name: "minion", Invocation: testInvocation})
	require.NoError(t, err)
	require.False(t, ran)
	require.True(t, sink.only(t).Inhibited)
}

func TestPostHookFailuresAreIsolated(t *testing.T) {
	boom := errors.New("command failed")
	cmd := &StructuredCommand{
		Meta: Meta{Name: "minion"},
		Run: func(context.Context, StructuredCall) (Message, error) {
			return Message{}, boom
		},
	}
	panicking := PostHookFunc(func(context.Context, Outcome) error { panic("hook exploded") })
	failing := PostHookFunc(func(context.Context, Outcome) error { return errors.New("usage insert failed") })

	core, logs := observer.New(zapcore.ErrorLevel)
	reg := NewRegistry()
	require.NoError(t, reg.Register(cmd))
	sink := &outcomeSink{}
	d := NewDispatcher(reg, &recordingChannel{},
		WithLogger(zap.New(core)),
		WithPostHooks(panicking, failing, sink),
	)

	outcome, err := d.Dispatch(context.Background(), Request{Name: "minion", Invocation: testInvocation})
	require.NoError(t, err)
	require.ErrorIs(t, outcome.Err, boom)
	require.ErrorIs(t, sink.only(t).Err, boom)
	require.Equal(t, 1, logs.FilterMessage("post hook panicked").Len())
	require.Equal(t, 1, logs.FilterMessage("post hook failed").Len())
}

func TestDispatchSurvivesChannelFailure(t *testing.T) {
	cmd := &StructuredCommand{
		Meta: Meta{Name: "minion"},
		Run: func(context.Context, StructuredCall) (Message, error) {
			return Text("hi"), nil
		},
	}
	reg := NewRegistry()
	require.NoError(t, reg.Register(cmd))
	channel := &recordingChannel{err: errors.New("gateway closed")}
	sink := &outcomeSink{}
	d := NewDispatcher(reg, channel, WithPostHooks(sink))

	outcome, err := d.Dispatch(context.Background(), Request{Name: "minion", Invocation: testInvocation})
	require.NoError(t, err)
	require.NoError(t, outcome.Err)
	require.Len(t, channel.contents(), 1)
	require.Len(t, sink.outcomes, 1)
}

type usageStub struct {
	rows []Usage
}

func (u *usageStub) RecordUsage(_ context.Context, usage Usage) error {
	u.rows = append(u.rows, usage)
	return nil
}

func TestUsageHookRecordsArgs(t *testing.T) {
	cmd := &LegacyCommand{Meta: Meta{Name: "trip"}, Enabled: true, Run: noopLegacy}
	usage := &usageStub{}
	d, _, _ := newTestDispatcher(t, []Definition{cmd}, WithPostHooks(UsageHook(usage)))

	_, err := d.Dispatch(context.Background(), Request{
		Name:       "trip",
		Args:       Positional{"fishing", "30"},
		Invocation: testInvocation,
		IsContinue: true,
	})
	require.NoError(t, err)
	require.Len(t, usage.rows, 1)
	row := usage.rows[0]
	require.Equal(t, "trip", row.Command)
	require.Equal(t, "u1", row.UserID)
	require.Equal(t, "g1", row.GuildID)
	require.True(t, row.IsContinue)
	require.False(t, row.Failed)
	require.JSONEq(t, `["fishing","30"]`, string(row.Args))
}
