package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryEntry struct {
	raw       []byte
	version   int64
	expiresAt time.Time
}

// MemoryBackend keeps encoded states in process. It is used by the terminal
// chat and by tests.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry)}
}

func (b *MemoryBackend) Get(_ context.Context, id string, now time.Time) (*SessionState, error) {
	b.mu.Lock()
	e, ok := b.entries[id]
	b.mu.Unlock()
	if !ok || !e.expiresAt.After(now) {
		return nil, ErrNotFound
	}
	var st SessionState
	if err := json.Unmarshal(e.raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (b *MemoryBackend) CompareAndSwap(_ context.Context, next *SessionState, expected int64, expiresAt time.Time) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var stored int64
	if e, ok := b.entries[next.ID]; ok && e.expiresAt.After(next.UpdatedAt) {
		stored = e.version
	}
	if stored != expected {
		return ErrConcurrentModification
	}
	b.entries[next.ID] = memoryEntry{raw: raw, version: next.Version, expiresAt: expiresAt}
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	delete(b.entries, id)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for id, e := range b.entries {
		if !e.expiresAt.After(now) {
			delete(b.entries, id)
			n++
		}
	}
	return n, nil
}
