package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-process cache. Expired entries are swept periodically.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	now   func() time.Time

	stop chan struct{}
	once sync.Once
}

func NewMemory(cleanupEvery time.Duration) *Memory {
	m := &Memory{
		items: make(map[string]memoryEntry),
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if cleanupEvery > 0 {
		go m.cleanup(cleanupEvery)
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.items[key]
	if !ok || m.now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.data, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memoryEntry{data: value, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *Memory) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}

func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for key, e := range m.items {
		if now.After(e.expiresAt) {
			delete(m.items, key)
		}
	}
}

func (m *Memory) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}
