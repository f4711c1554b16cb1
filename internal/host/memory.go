package host

import (
	"fmt"
	"maps"
	"sync"
)

// MemoryEntity is an Entity backed by a map. It remembers whether any
// attribute was written.
type MemoryEntity struct {
	name string

	mu       sync.RWMutex
	attrs    map[string]Value
	modified bool
}

// NewMemoryEntity creates an entity holding a copy of attrs.
func NewMemoryEntity(name string, attrs map[string]Value) *MemoryEntity {
	copied := make(map[string]Value, len(attrs))
	maps.Copy(copied, attrs)
	return &MemoryEntity{name: name, attrs: copied}
}

func (e *MemoryEntity) Name() string { return e.name }

func (e *MemoryEntity) GetAttribute(name string) (Value, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	value, ok := e.attrs[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNoAttribute)
	}
	return value, nil
}

func (e *MemoryEntity) SetAttribute(name string, value Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, isString := value.(string); isString {
		if current, ok := e.attrs[name]; ok && current == Value(s) {
			return nil
		}
	}
	e.attrs[name] = value
	e.modified = true
	return nil
}

// Attributes returns a copy of every attribute.
func (e *MemoryEntity) Attributes() map[string]Value {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.attrs)
}

// Modified reports whether SetAttribute changed anything.
func (e *MemoryEntity) Modified() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.modified
}
