// Package tasks holds the handlers that finish trips once they are due.
package tasks

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xmasacrex/club-rpg/internal/domain"
)

// ErrDuplicateTask indicates a second handler for the same activity type.
var ErrDuplicateTask = errors.New("task handler already registered")

// Registry maps activity types to handlers. It implements domain.TaskRegistry.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]domain.TaskHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]domain.TaskHandler)}
}

// Register binds handler to activityType.
func (r *Registry) Register(activityType string, handler domain.TaskHandler) error {
	key := strings.ToLower(strings.TrimSpace(activityType))
	if key == "" {
		return errors.New("activity type is required")
	}
	if handler == nil {
		return fmt.Errorf("task handler for %s is nil", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, key)
	}
	r.handlers[key] = handler
	return nil
}

// Lookup implements domain.TaskRegistry.
func (r *Registry) Lookup(activityType string) (domain.TaskHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[strings.ToLower(activityType)]
	return h, ok
}

// Types lists registered activity types in alphabetical order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
