package deadletter

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/xmasacrex/club-rpg/internal/domain"
)

// MemoryQueue is an in-process Queue for the memory store driver and tests.
type MemoryQueue struct {
	mu         sync.Mutex
	now        func() time.Time
	nextID     int64
	entries    map[int64]*Entry
	byActivity map[string]int64
}

// NewMemoryQueue builds an empty queue. A nil clock uses time.Now.
func NewMemoryQueue(now func() time.Time) *MemoryQueue {
	if now == nil {
		now = time.Now
	}
	return &MemoryQueue{
		now:        now,
		entries:    make(map[int64]*Entry),
		byActivity: make(map[string]int64),
	}
}

// Record implements Queue. Recording the same activity twice keeps one entry.
func (q *MemoryQueue) Record(_ context.Context, activity domain.Activity, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	if id, ok := q.byActivity[activity.ID]; ok {
		q.entries[id].Reason = reason
		return nil
	}
	q.nextID++
	q.entries[q.nextID] = &Entry{
		ID:          q.nextID,
		Activity:    snapshot(activity),
		Reason:      reason,
		NextRetryAt: now,
		CreatedAt:   now,
	}
	q.byActivity[activity.ID] = q.nextID
	return nil
}

// Due implements Queue, oldest entries first.
func (q *MemoryQueue) Due(_ context.Context, now time.Time, limit int) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Entry, 0)
	for _, e := range q.entries {
		if e.QuarantinedAt != nil || e.NextRetryAt.After(now) {
			continue
		}
		cp := *e
		cp.Activity = snapshot(e.Activity)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Reschedule implements Queue.
func (q *MemoryQueue) Reschedule(_ context.Context, id int64, next time.Time, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	now := q.now().UTC()
	e.RetryCount++
	e.LastAttemptAt = &now
	e.NextRetryAt = next
	e.Reason = reason
	return nil
}

// Quarantine implements Queue.
func (q *MemoryQueue) Quarantine(_ context.Context, id int64, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	now := q.now().UTC()
	e.QuarantinedAt = &now
	e.Reason = reason
	return nil
}

// Resolve implements Queue.
func (q *MemoryQueue) Resolve(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	delete(q.byActivity, e.Activity.ID)
	delete(q.entries, id)
	return nil
}

// Backlog implements Queue.
func (q *MemoryQueue) Backlog(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.entries {
		if e.QuarantinedAt == nil {
			n++
		}
	}
	return n, nil
}

// Entries returns every entry, quarantined ones included.
func (q *MemoryQueue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func snapshot(a domain.Activity) domain.Activity {
	out := a
	out.Participants = append([]string(nil), a.Participants...)
	if a.Data != nil {
		out.Data = append(json.RawMessage(nil), a.Data...)
	}
	return out
}
