package kv

import (
	"context"
	"sync"
)

// Memory is an in-process Backend. It is the default fake in tests and the
// backing for --backend=memory.
type Memory struct {
	mu     sync.Mutex
	data   map[string]string
	closed bool

	// Failure injection for tests
	GetErr error
	SetErr error

	// Sets counts successful Set calls per key.
	Sets map[string]int
}

func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]string),
		Sets: make(map[string]int),
	}
}

func (m *Memory) Init(ctx context.Context) error {
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", ErrClosed
	}
	if m.GetErr != nil {
		return "", m.GetErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.SetErr != nil {
		return m.SetErr
	}
	m.data[key] = value
	m.Sets[key]++
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	delete(m.data, key)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) Location() string {
	return "memory"
}

// SetCount returns how many times key was written.
func (m *Memory) SetCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Sets[key]
}

// SetFailure changes the error returned by subsequent Set calls.
func (m *Memory) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetErr = err
}
