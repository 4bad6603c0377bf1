// Package scheduler completes trips once their finish time has passed.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xmasacrex/club-rpg/internal/domain"
)

// Completer is the slice of domain.Service the scheduler drives.
type Completer interface {
	ListDue(ctx context.Context, limit int) ([]domain.Activity, error)
	CompleteActivity(ctx context.Context, activity domain.Activity) error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the scheduler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithConcurrency bounds how many completions of one batch run at once.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// Scheduler polls for due trips and completes them.
type Scheduler struct {
	completer        Completer
	pollInterval     time.Duration
	batchSize        int
	concurrency      int
	logger           *zap.Logger
	shutdownComplete chan struct{}
}

// New constructs a Scheduler.
func New(completer Completer, pollInterval time.Duration, batchSize int, opts ...Option) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	s := &Scheduler{
		completer:        completer,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		concurrency:      4,
		logger:           zap.NewNop(),
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the polling loop. It should be called in a goroutine. The
// first tick runs immediately so trips that came due while offline complete
// right after start.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer func() {
		ticker.Stop()
		close(s.shutdownComplete)
	}()

	for {
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("scheduler tick failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start returns.
func (s *Scheduler) Wait() {
	<-s.shutdownComplete
}

// RunOnce completes one batch of due trips and returns how many it attempted.
// Only listing errors are returned; completion errors are logged per trip.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	due, err := s.completer.ListDue(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}
	defer func() { tickDuration.Observe(time.Since(start).Seconds()) }()

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, activity := range due {
		g.Go(func() error {
			s.complete(ctx, activity)
			return nil
		})
	}
	_ = g.Wait()
	return len(due), nil
}

func (s *Scheduler) complete(ctx context.Context, activity domain.Activity) {
	err := s.completer.CompleteActivity(ctx, activity)
	switch {
	case err == nil:
		completedCounter.WithLabelValues(resultCompleted).Inc()
	case errors.Is(err, domain.ErrAlreadyCompleted), errors.Is(err, domain.ErrGuardHeld):
		completedCounter.WithLabelValues(resultSkipped).Inc()
		s.logger.Debug("due activity skipped",
			zap.String("activity_id", activity.ID),
			zap.Error(err))
	default:
		completedCounter.WithLabelValues(resultFailed).Inc()
		s.logger.Error("failed to complete due activity",
			zap.String("activity_id", activity.ID),
			zap.String("type", activity.Type),
			zap.Error(err))
	}
}
