package commands

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xmasacrex/club-rpg/internal/command"
	"github.com/xmasacrex/club-rpg/internal/domain"
	"github.com/xmasacrex/club-rpg/internal/persistence/memory"
	"github.com/xmasacrex/club-rpg/internal/tasks"
)

type chat struct {
	messages []string
}

func (c *chat) Send(_ context.Context, _ string, msg command.Message) error {
	c.messages = append(c.messages, msg.Content)
	return nil
}

func (c *chat) last() string {
	if len(c.messages) == 0 {
		return ""
	}
	return c.messages[len(c.messages)-1]
}

type harness struct {
	svc        *domain.Service
	store      *memory.Store
	dispatcher *command.Dispatcher
	chat       *chat
	now        time.Time
}

func newHarness(t *testing.T, inhibitors ...command.Inhibitor) *harness {
	t.Helper()
	h := &harness{chat: &chat{}, now: time.Date(2026, time.October, 15, 9, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return h.now }

	registry := tasks.NewRegistry()
	require.NoError(t, tasks.RegisterAnnouncers(registry, tasks.NewAnnouncer(h.chat, nil), []string{"fishing", "raid"}))
	h.store = memory.NewStore()
	h.svc = domain.NewService(h.store, registry,
		domain.WithClock(clock),
		domain.WithLogger(zaptest.NewLogger(t)),
	)

	commands := command.NewRegistry()
	require.NoError(t, Register(commands, Deps{
		Trips:       h.svc,
		TripTypes:   registry.Types(),
		MaxDuration: 3 * time.Hour,
		Now:         clock,
	}))
	if inhibitors == nil {
		inhibitors = []command.Inhibitor{command.GuardInhibitor(h.svc), command.TripInhibitor(h.svc)}
	}
	h.dispatcher = command.NewDispatcher(commands, h.chat, command.WithInhibitors(inhibitors...))
	return h
}

func (h *harness) trip(t *testing.T, user string, args ...string) command.Outcome {
	t.Helper()
	out, err := h.dispatcher.Dispatch(context.Background(), command.Request{
		Name:       "trip",
		Args:       command.Positional(args),
		Invocation: command.Invocation{UserID: user, ChannelID: "c1"},
	})
	require.NoError(t, err)
	return out
}

func (h *harness) minion(t *testing.T, user, sub string) command.Outcome {
	t.Helper()
	out, err := h.dispatcher.Dispatch(context.Background(), command.Request{
		Name:       "minion",
		Args:       command.Options{sub: map[string]any{}},
		Invocation: command.Invocation{UserID: user, ChannelID: "c1"},
	})
	require.NoError(t, err)
	return out
}

func TestTripStartsAndReportsStatus(t *testing.T) {
	h := newHarness(t)

	out := h.trip(t, "u1", "Fishing", "30")
	require.NoError(t, out.Err)
	require.Equal(t, "Your minion is now fishing for 30 minutes.", h.chat.last())

	h.minion(t, "u1", "status")
	require.Equal(t, "Your minion is on a fishing trip, returning in 30m0s.", h.chat.last())

	out = h.trip(t, "u1", "fishing", "10")
	require.True(t, out.Inhibited)
	require.Contains(t, h.chat.last(), "busy with a fishing trip")

	h.now = h.now.Add(time.Hour)
	h.minion(t, "u1", "status")
	require.Equal(t, "Your minion is returning from its fishing trip.", h.chat.last())

	due, err := h.svc.ListDue(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.NoError(t, h.svc.CompleteActivity(context.Background(), due[0]))
	require.Equal(t, "<@u1>, your minion has returned from its fishing trip.", h.chat.last())

	h.minion(t, "u1", "status")
	require.Equal(t, "Your minion is idle.", h.chat.last())
}

func TestTripRejectsBadArguments(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		args []string
		want string
	}{
		{args: []string{"fishing"}, want: "Usage: trip <fishing|raid> <minutes> [@member ...]"},
		{args: []string{"swimming", "10"}, want: `"swimming" is not a trip your minion knows.`},
		{args: []string{"fishing", "soon"}, want: `"soon" is not a number of minutes.`},
		{args: []string{"fishing", "-5"}, want: `"-5" is not a number of minutes.`},
		{args: []string{"fishing", "600"}, want: "Trips can last at most 3h0m0s."},
	}
	for _, tc := range cases {
		out := h.trip(t, "u1", tc.args...)
		require.NoError(t, out.Err)
		require.Equal(t, tc.want, out.UserMessage)
		require.Equal(t, tc.want, h.chat.last())
	}
	_, busy := h.svc.ActivityOf("u1")
	require.False(t, busy)
}

func TestGroupTripCancelledOnlyByLeader(t *testing.T) {
	h := newHarness(t)

	h.trip(t, "u1", "raid", "60", "<@u2>", "<@!u3>")
	require.Equal(t, "Your party is now raid for 60 minutes.", h.chat.last())

	h.minion(t, "u2", "status")
	require.Equal(t, "Your minion is on a raid trip with <@u1>, <@u3>, returning in 1h0m0s.", h.chat.last())

	out := h.minion(t, "u2", "cancel")
	require.Equal(t, "Only the party leader can cancel a group trip.", out.UserMessage)

	h.minion(t, "u1", "cancel")
	require.Equal(t, "Your minion has abandoned its raid trip.", h.chat.last())
	for _, id := range []string{"u1", "u2", "u3"} {
		_, busy := h.svc.ActivityOf(id)
		require.False(t, busy)
	}

	out = h.minion(t, "u1", "cancel")
	require.Equal(t, "Your minion is not on a trip.", out.UserMessage)
}

func TestCancelFallsBackToStoreWhenCacheMisses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Written behind the service's back, so only the store knows about it.
	require.NoError(t, h.store.Create(ctx, domain.Activity{
		ID:           "act-1",
		UserID:       "u1",
		Participants: []string{"u1", "u2"},
		Type:         "raid",
		StartedAt:    h.now,
		Duration:     time.Hour,
		FinishAt:     h.now.Add(time.Hour),
	}))

	out := h.minion(t, "u2", "cancel")
	require.Equal(t, "Only the party leader can cancel a group trip.", out.UserMessage)

	h.minion(t, "u1", "cancel")
	require.Equal(t, "Your minion has abandoned its raid trip.", h.chat.last())
	found, err := h.store.FindIncompleteByUser(ctx, "u2")
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestTripConflictWithBusyPartyMember(t *testing.T) {
	h := newHarness(t, command.InhibitorFunc(func(context.Context, command.AbstractCommand, command.Invocation) command.Verdict {
		return command.Allow()
	}))

	h.trip(t, "u1", "fishing", "30")
	out := h.trip(t, "u2", "raid", "30", "u1")
	require.NoError(t, out.Err)
	require.Equal(t, "Someone in your party is already busy.", out.UserMessage)

	_, busy := h.svc.ActivityOf("u2")
	require.False(t, busy)
}

func TestParseMentions(t *testing.T) {
	require.Equal(t, []string{"1", "2", "3"}, parseMentions([]string{"<@1>", "<@!2>", "3", "<@>"}))
}
