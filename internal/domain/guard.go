package domain

import "sync"

// Guard is the process-wide set of participants whose trip is being completed.
type Guard struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

// NewGuard returns an empty guard.
func NewGuard() *Guard {
	return &Guard{busy: make(map[string]struct{})}
}

// TryAcquire marks id busy and reports false if it already was.
func (g *Guard) TryAcquire(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.busy[id]; held {
		return false
	}
	g.busy[id] = struct{}{}
	return true
}

// Release clears the busy mark for id.
func (g *Guard) Release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.busy, id)
}

// Held reports whether id is mid-completion.
func (g *Guard) Held(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, held := g.busy[id]
	return held
}

// Len returns the number of busy participants.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.busy)
}
