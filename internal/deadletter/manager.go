package deadletter

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xmasacrex/club-rpg/internal/domain"
)

// Redeliverer re-runs the task handler of a completed activity.
type Redeliverer interface {
	RedeliverCompletion(ctx context.Context, activity domain.Activity) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger overrides the manager logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager redelivers failed completions and quarantines exhausted entries.
type Manager struct {
	queue            Queue
	redeliverer      Redeliverer
	maxRetries       int
	baseDelay        time.Duration
	logger           *zap.Logger
	now              func() time.Time
	shutdownComplete chan struct{}
}

// NewManager constructs a Manager with the provided retry configuration.
func NewManager(queue Queue, redeliverer Redeliverer, maxRetries int, baseDelay time.Duration, opts ...Option) *Manager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	m := &Manager{
		queue:            queue,
		redeliverer:      redeliverer,
		maxRetries:       maxRetries,
		baseDelay:        baseDelay,
		logger:           zap.NewNop(),
		now:              time.Now,
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start runs RunOnce every interval until ctx is cancelled. It should be
// called in a goroutine.
func (m *Manager) Start(ctx context.Context, interval time.Duration, batchSize int) {
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		close(m.shutdownComplete)
	}()

	for {
		if n, err := m.RunOnce(ctx, batchSize); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("task dead-letter run failed", zap.Error(err))
		} else if n > 0 {
			m.logger.Info("redelivered failed completions", zap.Int("count", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start returns.
func (m *Manager) Wait() {
	<-m.shutdownComplete
}

// RunOnce processes a batch of due entries and returns how many were redelivered.
func (m *Manager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	entries, err := m.queue.Due(ctx, m.now().UTC(), batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	var errs error
	for _, entry := range entries {
		if ctx.Err() != nil {
			errs = errors.Join(errs, ctx.Err())
			break
		}
		ok, handleErr := m.handleEntry(ctx, entry)
		if handleErr != nil {
			errs = errors.Join(errs, handleErr)
			continue
		}
		if ok {
			processed++
		}
	}

	if backlog, err := m.queue.Backlog(ctx); err == nil {
		backlogGauge.Set(float64(backlog))
	}
	return processed, errs
}

func (m *Manager) handleEntry(ctx context.Context, entry Entry) (bool, error) {
	activityType := entry.Activity.Type
	logger := m.logger.With(
		zap.Int64("dlq_id", entry.ID),
		zap.String("activity_id", entry.Activity.ID),
		zap.String("type", activityType),
		zap.Int("retry_count", entry.RetryCount))

	if entry.RetryCount >= m.maxRetries {
		quarantinedCounter.WithLabelValues(activityType).Inc()
		logger.Error("failed completion quarantined", zap.String("reason", entry.Reason))
		return false, m.queue.Quarantine(ctx, entry.ID, "retry limit reached: "+entry.Reason)
	}

	err := m.redeliverer.RedeliverCompletion(ctx, entry.Activity)
	switch {
	case err == nil:
		redeliveredCounter.WithLabelValues(activityType).Inc()
		return true, m.queue.Resolve(ctx, entry.ID)
	case errors.Is(err, domain.ErrMissingTask):
		quarantinedCounter.WithLabelValues(activityType).Inc()
		logger.Error("failed completion has no task handler")
		return false, m.queue.Quarantine(ctx, entry.ID, err.Error())
	default:
		delay := m.backoffDelay(entry.RetryCount + 1)
		retryCounter.WithLabelValues(activityType).Inc()
		logger.Warn("redelivery failed", zap.Error(err), zap.Duration("retry_in", delay))
		return false, m.queue.Reschedule(ctx, entry.ID, m.now().UTC().Add(delay), err.Error())
	}
}

// backoffDelay calculates exponential backoff capped at one hour.
func (m *Manager) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return time.Hour
	}
	delay := time.Duration(1<<uint(attempt-1)) * m.baseDelay
	if delay > time.Hour || delay <= 0 {
		delay = time.Hour
	}
	return delay
}
