package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/fsmlink/internal/compiler"
	"github.com/aretw0/fsmlink/pkg/domain"
)

// Loader keeps machine definitions in memory. It is safe for concurrent use.
type Loader struct {
	mu   sync.RWMutex
	defs map[string][]byte
}

// NewLoader creates a loader seeded with defs.
func NewLoader(defs map[string][]byte) *Loader {
	l := &Loader{defs: make(map[string][]byte, len(defs))}
	for name, data := range defs {
		l.defs[name] = append([]byte(nil), data...)
	}
	return l
}

// NewFromMachines serializes defs into a loader, keyed by machine name.
func NewFromMachines(defs ...*domain.MachineDef) (*Loader, error) {
	l := NewLoader(nil)
	for _, def := range defs {
		if def == nil || def.Name == "" {
			return nil, fmt.Errorf("machine missing name")
		}
		data, err := compiler.NewParser().Marshal(def)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal machine %s: %w", def.Name, err)
		}
		l.defs[def.Name] = data
	}
	return l, nil
}

// Load returns a copy of the definition stored under name.
func (l *Loader) Load(_ context.Context, name string) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	data, ok := l.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrDefinitionNotFound, name)
	}
	return append([]byte(nil), data...), nil
}

// List returns the stored names in lexical order.
func (l *Loader) List(_ context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.defs))
	for name := range l.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Save stores a copy of data under name.
func (l *Loader) Save(_ context.Context, name string, data []byte) error {
	if name == "" {
		return fmt.Errorf("definition name cannot be empty")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.defs[name] = append([]byte(nil), data...)
	return nil
}
