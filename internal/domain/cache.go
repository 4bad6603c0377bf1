package domain

import "sync"

// ActivityCache indexes the active trip of every participant in memory.
//
// The store stays authoritative. An empty or stale cache only costs a store
// round-trip on start, and SyncFromStore repairs it.
type ActivityCache struct {
	mu      sync.RWMutex
	entries map[string]Activity
}

// NewActivityCache returns an empty cache.
func NewActivityCache() *ActivityCache {
	return &ActivityCache{entries: make(map[string]Activity)}
}

// Get returns the active trip for participantID.
func (c *ActivityCache) Get(participantID string) (Activity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.entries[participantID]
	if !ok {
		return Activity{}, false
	}
	return a.clone(), true
}

// Put maps every participant of the activity to it.
func (c *ActivityCache) Put(a Activity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(a)
}

func (c *ActivityCache) putLocked(a Activity) {
	flat := a.clone()
	for _, id := range flat.ParticipantIDs() {
		c.entries[id] = flat
	}
}

// Remove evicts the activity held by participantID for all of its participants.
func (c *ActivityCache) Remove(participantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[participantID]
	if !ok {
		return
	}
	c.evictLocked(entry)
}

// Evict removes every participant key that still points at a.
// Keys already mapped to a newer activity are left alone.
func (c *ActivityCache) Evict(a Activity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked(a)
}

func (c *ActivityCache) evictLocked(a Activity) {
	for _, id := range a.ParticipantIDs() {
		if cur, ok := c.entries[id]; ok && cur.ID == a.ID {
			delete(c.entries, id)
		}
	}
}

// Replace clears the cache and indexes activities.
func (c *ActivityCache) Replace(activities []Activity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Activity, len(activities))
	for _, a := range activities {
		if a.Completed {
			continue
		}
		c.putLocked(a)
	}
}

// Len returns the number of participant keys.
func (c *ActivityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
