// Package memory provides an in-process activity store for local development and tests.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/xmasacrex/club-rpg/internal/domain"
)

// Store keeps activities in memory. A single mutex gives it the same
// one-incomplete-activity-per-participant guarantee the Postgres index does.
type Store struct {
	mu         sync.Mutex
	activities map[string]domain.Activity
	active     map[string]string
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		activities: make(map[string]domain.Activity),
		active:     make(map[string]string),
	}
}

// Create implements domain.ActivityStore.
func (s *Store) Create(_ context.Context, activity domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	participants := activity.ParticipantIDs()
	for _, id := range participants {
		if _, busy := s.active[id]; busy {
			return domain.ErrConflict
		}
	}
	s.activities[activity.ID] = copyActivity(activity)
	if !activity.Completed {
		for _, id := range participants {
			s.active[id] = activity.ID
		}
	}
	return nil
}

// Get implements domain.ActivityStore.
func (s *Store) Get(_ context.Context, activityID string) (*domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[activityID]
	if !ok {
		return nil, nil
	}
	out := copyActivity(a)
	return &out, nil
}

// FindIncompleteByUser implements domain.ActivityStore.
func (s *Store) FindIncompleteByUser(_ context.Context, userID string) (*domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.active[userID]
	if !ok {
		return nil, nil
	}
	out := copyActivity(s.activities[id])
	return &out, nil
}

// ListIncomplete implements domain.ActivityStore.
func (s *Store) ListIncomplete(_ context.Context) ([]domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incompleteLocked(func(domain.Activity) bool { return true }, 0), nil
}

// ListDue implements domain.ActivityStore.
func (s *Store) ListDue(_ context.Context, now time.Time, limit int) ([]domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incompleteLocked(func(a domain.Activity) bool { return !a.FinishAt.After(now) }, limit), nil
}

func (s *Store) incompleteLocked(keep func(domain.Activity) bool, limit int) []domain.Activity {
	out := make([]domain.Activity, 0)
	for _, a := range s.activities {
		if a.Completed || !keep(a) {
			continue
		}
		out = append(out, copyActivity(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FinishAt.Equal(out[j].FinishAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].FinishAt.Before(out[j].FinishAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// DeleteIncompleteByUser implements domain.ActivityStore.
func (s *Store) DeleteIncompleteByUser(_ context.Context, userID string) (*domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.active[userID]
	if !ok {
		return nil, nil
	}
	a := s.activities[id]
	s.releaseLocked(a)
	delete(s.activities, id)
	return &a, nil
}

// MarkCompleted implements domain.ActivityStore. Missing activities (for
// example cancelled in the meantime) report false, like an already completed one.
func (s *Store) MarkCompleted(_ context.Context, activityID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[activityID]
	if !ok || a.Completed {
		return false, nil
	}
	a.Completed = true
	s.activities[activityID] = a
	s.releaseLocked(a)
	return true, nil
}

// ListByUser implements domain.ActivityStore, newest first.
func (s *Store) ListByUser(_ context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.Activity, 0)
	for _, a := range s.activities {
		if !hasParticipant(a, userID) {
			continue
		}
		if cursor != nil && !before(a, *cursor) {
			continue
		}
		items = append(items, copyActivity(a))
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].StartedAt.Equal(items[j].StartedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].StartedAt.After(items[j].StartedAt)
	})
	if limit <= 0 || len(items) < limit {
		return items, nil, nil
	}
	items = items[:limit]
	last := items[len(items)-1]
	return items, &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}, nil
}

func (s *Store) releaseLocked(a domain.Activity) {
	for _, id := range a.ParticipantIDs() {
		if s.active[id] == a.ID {
			delete(s.active, id)
		}
	}
}

func before(a domain.Activity, c domain.Cursor) bool {
	if a.StartedAt.Equal(c.StartedAt) {
		return a.ID < c.ID
	}
	return a.StartedAt.Before(c.StartedAt)
}

func hasParticipant(a domain.Activity, userID string) bool {
	for _, id := range a.ParticipantIDs() {
		if id == userID {
			return true
		}
	}
	return false
}

func copyActivity(a domain.Activity) domain.Activity {
	out := a
	if a.Participants != nil {
		out.Participants = append([]string(nil), a.Participants...)
	}
	if a.Data != nil {
		out.Data = append(json.RawMessage(nil), a.Data...)
	}
	return out
}
