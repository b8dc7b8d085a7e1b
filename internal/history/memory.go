package history

import (
	"context"
	"sync"
)

// Compile-time checks for the in-memory implementations.
var (
	_ Engine  = (*MemoryEngine)(nil)
	_ Pointer = (*MemoryPointer)(nil)
)

// MemoryEngine is an in-memory implementation of Engine.
// It uses a map with RWMutex for thread-safe access.
// Suitable for development and testing; records are lost on restart.
type MemoryEngine struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryEngine creates a new in-memory engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		records: make(map[string]Record),
	}
}

// Put stores a clone of the record to avoid external mutations.
func (e *MemoryEngine) Put(_ context.Context, rec Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.records[rec.ID]; ok {
		return ErrDuplicateID
	}
	e.records[rec.ID] = rec.Clone()
	return nil
}

// Get retrieves a record by its ID.
// Returns a clone to prevent external mutations.
func (e *MemoryEngine) Get(_ context.Context, id string) (Record, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

// List returns clones of all records.
func (e *MemoryEngine) List(_ context.Context) ([]Record, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	result := make([]Record, 0, len(e.records))
	for _, rec := range e.records {
		result = append(result, rec.Clone())
	}
	return result, nil
}

// Len returns the number of stored records.
func (e *MemoryEngine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.records)
}

// MemoryPointer is an in-memory implementation of Pointer.
type MemoryPointer struct {
	mu sync.Mutex
	id string
}

// NewMemoryPointer creates an empty pointer.
func NewMemoryPointer() *MemoryPointer {
	return &MemoryPointer{}
}

// Get returns the stored ID or ErrNoPointer.
func (p *MemoryPointer) Get(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.id == "" {
		return "", ErrNoPointer
	}
	return p.id, nil
}

// Set replaces the stored ID.
func (p *MemoryPointer) Set(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = id
	return nil
}

// Clear removes the stored ID.
func (p *MemoryPointer) Clear(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = ""
	return nil
}
