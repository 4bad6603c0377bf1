// Package domain owns minion trips: who is away, and completing each trip once.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActivityStore captures persistence operations for activities.
type ActivityStore interface {
	// Create persists a new activity. It returns ErrConflict when any participant
	// already has an incomplete activity.
	Create(ctx context.Context, activity Activity) error
	Get(ctx context.Context, activityID string) (*Activity, error)
	FindIncompleteByUser(ctx context.Context, userID string) (*Activity, error)
	ListIncomplete(ctx context.Context) ([]Activity, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]Activity, error)
	// DeleteIncompleteByUser removes the incomplete activity userID takes part in
	// and returns it, or nil when there was none.
	DeleteIncompleteByUser(ctx context.Context, userID string) (*Activity, error)
	// MarkCompleted flips completed from false to true and reports whether this
	// call performed the transition.
	MarkCompleted(ctx context.Context, activityID string) (bool, error)
	ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for new activities.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithFailureRecorder routes failed task handlers to a dead-letter queue.
func WithFailureRecorder(recorder FailureRecorder) Option {
	return func(s *Service) {
		s.failures = recorder
	}
}

// Service orchestrates the trip lifecycle. It is the only writer of the
// activity cache and the completion guard.
type Service struct {
	store    ActivityStore
	tasks    TaskRegistry
	cache    *ActivityCache
	guard    *Guard
	failures FailureRecorder
	logger   *zap.Logger
	now      func() time.Time

	mirrorMu sync.Mutex

	// stalled holds due activities whose type has no task handler. The
	// registry is fixed for the life of the process, so they are left out of
	// ListDue until cancelled.
	stalledMu sync.Mutex
	stalled   map[string]struct{}
}

// NewService constructs a Service with an empty cache. Call SyncFromStore
// before accepting commands.
func NewService(store ActivityStore, tasks TaskRegistry, opts ...Option) *Service {
	s := &Service{
		store:   store,
		tasks:   tasks,
		cache:   NewActivityCache(),
		guard:   NewGuard(),
		logger:  zap.NewNop(),
		now:     time.Now,
		stalled: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartInput describes a trip requested by a command body.
type StartInput struct {
	UserID       string
	Participants []string
	Type         string
	ChannelID    string
	Duration     time.Duration
	Data         []byte
}

func (in StartInput) validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidActivity)
	}
	if strings.TrimSpace(in.Type) == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidActivity)
	}
	if in.Duration <= 0 {
		return fmt.Errorf("%w: duration must be > 0", ErrInvalidActivity)
	}
	return nil
}

// StartActivity persists a new trip and indexes it for every participant.
func (s *Service) StartActivity(ctx context.Context, in StartInput) (*Activity, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	participants := normalizeParticipants(in.UserID, in.Participants)
	for _, id := range participants {
		if _, busy := s.cache.Get(id); busy || s.guard.Held(id) {
			recordStart(startOutcomeConflict)
			return nil, fmt.Errorf("%w: %s", ErrConflict, id)
		}
	}

	now := s.now().UTC()
	activity := Activity{
		ID:           uuid.NewString(),
		UserID:       participants[0],
		Participants: participants,
		Type:         in.Type,
		ChannelID:    in.ChannelID,
		StartedAt:    now,
		Duration:     in.Duration,
		FinishAt:     now.Add(in.Duration),
		Data:         in.Data,
	}

	if err := s.createAndIndex(ctx, activity); err != nil {
		if errors.Is(err, ErrConflict) {
			recordStart(startOutcomeConflict)
		}
		return nil, err
	}
	recordStart(startOutcomeStarted)
	s.updateGauges()

	s.logger.Debug("activity started",
		zap.String("activity_id", activity.ID),
		zap.String("type", activity.Type),
		zap.Strings("participants", participants),
		zap.Time("finish_at", activity.FinishAt))
	return &activity, nil
}

// CancelActivity deletes the incomplete trip participantID takes part in. It is
// a no-op when there is none.
func (s *Service) CancelActivity(ctx context.Context, participantID string) (*Activity, error) {
	deleted, err := s.deleteAndEvict(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("cancel activity: %w", err)
	}
	if deleted == nil {
		return nil, nil
	}

	s.stalledMu.Lock()
	delete(s.stalled, deleted.ID)
	s.stalledMu.Unlock()
	cancelledCounter.Inc()
	s.updateGauges()
	s.logger.Info("activity cancelled",
		zap.String("activity_id", deleted.ID),
		zap.String("user_id", participantID))
	return deleted, nil
}

// CompleteActivity finalizes a due trip at most once.
//
// Missing handlers and already completed records are returned as errors.
// Handler failures are logged and dead-lettered, never returned: once the
// guard is taken the guard is released and the cache evicted on every path.
func (s *Service) CompleteActivity(ctx context.Context, activity Activity) error {
	logger := s.logger.With(
		zap.String("activity_id", activity.ID),
		zap.String("user_id", activity.UserID),
		zap.String("type", activity.Type))

	if activity.Completed {
		logger.Error("tried to complete an already completed activity")
		recordCompletion(activity.Type, completionOutcomeAlreadyCompleted)
		return ErrAlreadyCompleted
	}

	handler, ok := s.tasks.Lookup(activity.Type)
	if !ok || handler == nil {
		logger.Error("missing task handler")
		recordCompletion(activity.Type, completionOutcomeMissingTask)
		s.stalledMu.Lock()
		s.stalled[activity.ID] = struct{}{}
		s.stalledMu.Unlock()
		return fmt.Errorf("%w: %s", ErrMissingTask, activity.Type)
	}

	if !s.guard.TryAcquire(activity.UserID) {
		logger.Warn("completion already running for participant")
		recordCompletion(activity.Type, completionOutcomeGuardHeld)
		return ErrGuardHeld
	}
	defer func() {
		s.guard.Release(activity.UserID)
		s.cache.Evict(activity)
		s.updateGauges()
	}()
	s.updateGauges()

	claimed, err := s.markCompleted(ctx, activity.ID)
	if err != nil {
		return fmt.Errorf("mark activity completed: %w", err)
	}
	if !claimed {
		logger.Warn("activity was completed by another caller")
		recordCompletion(activity.Type, completionOutcomeAlreadyCompleted)
		return ErrAlreadyCompleted
	}
	activity.Completed = true

	logger.Debug("running task")
	if err := runHandler(ctx, handler, activity); err != nil {
		logger.Error("task handler failed", zap.Error(err))
		recordCompletion(activity.Type, completionOutcomeHandlerFailed)
		s.deadLetter(ctx, activity, err)
		return nil
	}
	recordCompletion(activity.Type, completionOutcomeCompleted)
	return nil
}

// RedeliverCompletion re-runs the handler of a completed activity whose first
// run failed. Handler errors are returned so the caller can schedule a retry.
func (s *Service) RedeliverCompletion(ctx context.Context, activity Activity) error {
	handler, ok := s.tasks.Lookup(activity.Type)
	if !ok || handler == nil {
		return fmt.Errorf("%w: %s", ErrMissingTask, activity.Type)
	}
	if !s.guard.TryAcquire(activity.UserID) {
		return ErrGuardHeld
	}
	defer s.guard.Release(activity.UserID)

	activity.Completed = true
	return runHandler(ctx, handler, activity)
}

// SyncFromStore rebuilds the cache from every incomplete activity. Handlers are
// not invoked; due trips are left to the scheduler.
func (s *Service) SyncFromStore(ctx context.Context) (int, error) {
	activities, err := s.rebuildCache(ctx)
	if err != nil {
		return 0, fmt.Errorf("list incomplete activities: %w", err)
	}
	s.updateGauges()
	s.logger.Info("activity cache synced", zap.Int("activities", len(activities)), zap.Int("participants", s.cache.Len()))
	return len(activities), nil
}

// ActivityOf returns the cached trip of participantID.
func (s *Service) ActivityOf(participantID string) (Activity, bool) {
	return s.cache.Get(participantID)
}

// FindActivity reads the incomplete trip of participantID from the store,
// bypassing the cache. It returns nil when there is none.
func (s *Service) FindActivity(ctx context.Context, participantID string) (*Activity, error) {
	a, err := s.store.FindIncompleteByUser(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("find activity: %w", err)
	}
	return a, nil
}

// IsCompleting reports whether participantID holds the completion guard.
func (s *Service) IsCompleting(participantID string) bool {
	return s.guard.Held(participantID)
}

// GetActivity fetches by ID.
func (s *Service) GetActivity(ctx context.Context, activityID string) (*Activity, error) {
	a, err := s.store.Get(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrActivityNotFound
	}
	return a, nil
}

// ListActivitiesByUser fetches trip history with cursor pagination.
func (s *Service) ListActivitiesByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	return s.store.ListByUser(ctx, userID, cursor, limit)
}

// ListDue returns incomplete activities whose finish time has passed, leaving
// out those stalled on a missing task handler.
func (s *Service) ListDue(ctx context.Context, limit int) ([]Activity, error) {
	s.stalledMu.Lock()
	skip := len(s.stalled)
	s.stalledMu.Unlock()

	fetch := limit
	if limit > 0 {
		fetch += skip
	}
	due, err := s.store.ListDue(ctx, s.now().UTC(), fetch)
	if err != nil || skip == 0 {
		return due, err
	}

	s.stalledMu.Lock()
	defer s.stalledMu.Unlock()
	out := due[:0]
	for _, a := range due {
		if _, stalled := s.stalled[a.ID]; stalled {
			continue
		}
		out = append(out, a)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// The helpers below hold mirrorMu so a rebuild never interleaves with a store
// write and the cache update that mirrors it.

func (s *Service) createAndIndex(ctx context.Context, activity Activity) error {
	s.mirrorMu.Lock()
	defer s.mirrorMu.Unlock()
	if err := s.store.Create(ctx, activity); err != nil {
		return err
	}
	s.cache.Put(activity)
	return nil
}

func (s *Service) deleteAndEvict(ctx context.Context, participantID string) (*Activity, error) {
	s.mirrorMu.Lock()
	defer s.mirrorMu.Unlock()
	deleted, err := s.store.DeleteIncompleteByUser(ctx, participantID)
	if err != nil || deleted == nil {
		return nil, err
	}
	s.cache.Evict(*deleted)
	return deleted, nil
}

// markCompleted leaves eviction to the caller. A rebuild that snapshots
// before this write still holds the trip until the caller evicts it.
func (s *Service) markCompleted(ctx context.Context, activityID string) (bool, error) {
	s.mirrorMu.Lock()
	defer s.mirrorMu.Unlock()
	return s.store.MarkCompleted(ctx, activityID)
}

func (s *Service) rebuildCache(ctx context.Context) ([]Activity, error) {
	s.mirrorMu.Lock()
	defer s.mirrorMu.Unlock()
	activities, err := s.store.ListIncomplete(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Replace(activities)
	return activities, nil
}

func (s *Service) deadLetter(ctx context.Context, activity Activity, cause error) {
	if s.failures == nil {
		return
	}
	if err := s.failures.Record(ctx, activity, cause.Error()); err != nil {
		s.logger.Error("failed to dead-letter activity",
			zap.String("activity_id", activity.ID),
			zap.Error(err))
	}
}

func (s *Service) updateGauges() {
	cacheEntriesGauge.Set(float64(s.cache.Len()))
	guardHeldGauge.Set(float64(s.guard.Len()))
}

func runHandler(ctx context.Context, handler TaskHandler, activity Activity) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panic: %v", r)
		}
	}()
	return handler.Run(ctx, activity)
}

func normalizeParticipants(primary string, others []string) []string {
	primary = strings.TrimSpace(primary)
	out := []string{primary}
	seen := map[string]struct{}{primary: {}}
	for _, id := range others {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
