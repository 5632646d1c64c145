package store

import (
	"context"
	"fmt"
	"sync"
)

// Memory is the in-process image store. It only grows for the life of the
// process; acceptable because the host is a short-lived interactive session.
type Memory struct {
	mu     sync.RWMutex
	images map[string][]byte
	next   int64
}

// NewMemory creates an empty in-memory image store
func NewMemory() *Memory {
	return &Memory{
		images: make(map[string][]byte),
	}
}

// Put stores the bytes under the next sequential name.
// Allocation and insert happen under one lock so concurrent callers
// cannot race on the sequence.
func (m *Memory) Put(_ context.Context, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := imageName(m.next)
	m.next++

	stored := make([]byte, len(data))
	copy(stored, data)
	m.images[name] = stored

	return name, nil
}

// Get retrieves previously stored bytes
func (m *Memory) Get(_ context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.images[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return data, nil
}

// Len returns the number of stored images
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.images)
}

// Close is a no-op for the memory backend
func (m *Memory) Close() error {
	return nil
}
