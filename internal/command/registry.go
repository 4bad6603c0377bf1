package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type entry struct {
	abstract   AbstractCommand
	structured *StructuredCommand
	legacy     *LegacyCommand
}

// Registry maps command names to exactly one representation. The
// representation is resolved when a command is registered, not per dispatch.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds command definitions.
func (r *Registry) Register(defs ...Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, def := range defs {
		e, err := resolve(def)
		if err != nil {
			return err
		}
		key := normalizeName(e.abstract.Name)
		if _, exists := r.entries[key]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateCommand, key)
		}
		r.entries[key] = e
	}
	return nil
}

func resolve(def Definition) (*entry, error) {
	if def == nil {
		return nil, errors.New("command definition is required")
	}
	e := &entry{}
	switch d := def.(type) {
	case *StructuredCommand:
		if d.Run == nil {
			return nil, fmt.Errorf("command %s has no run function", d.Name)
		}
		e.structured = d
		e.abstract = AbstractCommand{Meta: d.Meta, Kind: KindStructured}
	case *LegacyCommand:
		if d.Run == nil {
			return nil, fmt.Errorf("command %s has no run function", d.Name)
		}
		e.legacy = d
		e.abstract = AbstractCommand{Meta: d.Meta, Kind: KindLegacy}
	default:
		return nil, fmt.Errorf("unsupported command definition %T", def)
	}
	e.abstract.Name = normalizeName(e.abstract.Name)
	if e.abstract.Name == "" {
		return nil, errors.New("command name is required")
	}
	return e, nil
}

func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[normalizeName(name)]
	return e, ok
}

// Lookup returns the abstract command registered under name.
func (r *Registry) Lookup(name string) (AbstractCommand, bool) {
	e, ok := r.lookup(name)
	if !ok {
		return AbstractCommand{}, false
	}
	return e.abstract, true
}

// Commands lists registered commands sorted by name.
func (r *Registry) Commands() []AbstractCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AbstractCommand, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.abstract)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
