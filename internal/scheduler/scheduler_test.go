package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/xmasacrex/club-rpg/internal/domain"
	"github.com/xmasacrex/club-rpg/internal/persistence/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingTasks struct {
	runs atomic.Int32
}

func (c *countingTasks) Lookup(string) (domain.TaskHandler, bool) {
	return domain.TaskHandlerFunc(func(context.Context, domain.Activity) error {
		c.runs.Add(1)
		return nil
	}), true
}

func newService(t *testing.T) (*domain.Service, *countingTasks, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2026, time.October, 15, 9, 0, 0, 0, time.UTC)}
	tasks := &countingTasks{}
	svc := domain.NewService(memory.NewStore(), tasks,
		domain.WithClock(clk.Now),
		domain.WithLogger(zaptest.NewLogger(t)),
	)
	return svc, tasks, clk
}

func startTrip(t *testing.T, svc *domain.Service, user string, d time.Duration) *domain.Activity {
	t.Helper()
	a, err := svc.StartActivity(context.Background(), domain.StartInput{
		UserID:   user,
		Type:     "fishing",
		Duration: d,
	})
	require.NoError(t, err)
	return a
}

func TestRunOnceCompletesOnlyDueTrips(t *testing.T) {
	ctx := context.Background()
	svc, tasks, clk := newService(t)
	startTrip(t, svc, "u1", time.Minute)
	startTrip(t, svc, "u2", time.Hour)

	s := New(svc, time.Second, 10, WithLogger(zaptest.NewLogger(t)))

	n, err := s.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	clk.Advance(2 * time.Minute)
	before := testutil.ToFloat64(completedCounter.WithLabelValues(resultCompleted))
	n, err = s.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.EqualValues(t, 1, tasks.runs.Load())
	require.InDelta(t, before+1, testutil.ToFloat64(completedCounter.WithLabelValues(resultCompleted)), 0.0001)

	_, busy := svc.ActivityOf("u1")
	require.False(t, busy)
	_, busy = svc.ActivityOf("u2")
	require.True(t, busy)

	n, err = s.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestOverlappingTicksCompleteEachTripOnce(t *testing.T) {
	ctx := context.Background()
	svc, tasks, clk := newService(t)
	for _, user := range []string{"u1", "u2", "u3", "u4", "u5"} {
		startTrip(t, svc, user, time.Minute)
	}
	clk.Advance(time.Minute)

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		s := New(svc, time.Second, 10, WithConcurrency(3))
		g.Go(func() error {
			_, err := s.RunOnce(ctx)
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, 5, tasks.runs.Load())
}

type stubCompleter struct {
	due     []domain.Activity
	listErr error
	errs    map[string]error
	mu      sync.Mutex
	called  []string
}

func (s *stubCompleter) ListDue(context.Context, int) ([]domain.Activity, error) {
	return s.due, s.listErr
}

func (s *stubCompleter) CompleteActivity(_ context.Context, a domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.called = append(s.called, a.ID)
	return s.errs[a.ID]
}

func TestRunOnceClassifiesCompletionErrors(t *testing.T) {
	completer := &stubCompleter{
		due: []domain.Activity{{ID: "a1"}, {ID: "a2"}, {ID: "a3"}},
		errs: map[string]error{
			"a1": domain.ErrAlreadyCompleted,
			"a2": domain.ErrGuardHeld,
			"a3": domain.ErrMissingTask,
		},
	}
	skipped := testutil.ToFloat64(completedCounter.WithLabelValues(resultSkipped))
	failed := testutil.ToFloat64(completedCounter.WithLabelValues(resultFailed))

	n, err := New(completer, time.Second, 10).RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.ElementsMatch(t, []string{"a1", "a2", "a3"}, completer.called)
	require.InDelta(t, skipped+2, testutil.ToFloat64(completedCounter.WithLabelValues(resultSkipped)), 0.0001)
	require.InDelta(t, failed+1, testutil.ToFloat64(completedCounter.WithLabelValues(resultFailed)), 0.0001)
}

func TestRunOnceReturnsListErrors(t *testing.T) {
	boom := errors.New("store offline")
	_, err := New(&stubCompleter{listErr: boom}, time.Second, 10).RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestStartCompletesOverdueTripsImmediately(t *testing.T) {
	svc, tasks, clk := newService(t)
	startTrip(t, svc, "u1", time.Minute)
	clk.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	s := New(svc, time.Hour, 10)
	go s.Start(ctx)

	require.Eventually(t, func() bool { return tasks.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	s.Wait()
}

type fishingOnlyTasks struct {
	countingTasks
}

func (f *fishingOnlyTasks) Lookup(activityType string) (domain.TaskHandler, bool) {
	if activityType != "fishing" {
		return nil, false
	}
	return f.countingTasks.Lookup(activityType)
}

func TestTripWithoutHandlerDoesNotStarveLaterTrips(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2026, time.October, 15, 9, 0, 0, 0, time.UTC)}
	tasks := &fishingOnlyTasks{}
	svc := domain.NewService(memory.NewStore(), tasks,
		domain.WithClock(clk.Now),
		domain.WithLogger(zaptest.NewLogger(t)),
	)

	_, err := svc.StartActivity(ctx, domain.StartInput{UserID: "u1", Type: "raid", Duration: time.Minute})
	require.NoError(t, err)
	startTrip(t, svc, "u2", 2*time.Minute)
	clk.Advance(5 * time.Minute)

	s := New(svc, time.Second, 1, WithLogger(zaptest.NewLogger(t)))
	for i := 0; i < 3; i++ {
		_, err := s.RunOnce(ctx)
		require.NoError(t, err)
	}

	require.EqualValues(t, 1, tasks.runs.Load())
	_, busy := svc.ActivityOf("u2")
	require.False(t, busy)
	_, busy = svc.ActivityOf("u1")
	require.True(t, busy)
}
