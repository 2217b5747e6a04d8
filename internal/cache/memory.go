package cache

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryStore keeps entries for the lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Key]Entry
	logger  *slog.Logger
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{entries: make(map[Key]Entry), logger: logger}
}

func (s *MemoryStore) Get(_ context.Context, key Key) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, key Key, payload []byte) error {
	b, err := compact(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[key]; ok {
		if !bytes.Equal(existing.Payload, b) {
			warnConflict(s.logger, key, existing.Payload, b)
		}
		return nil
	}
	s.entries[key] = Entry{Key: key, Payload: b, CreatedAt: time.Now().UTC()}
	return nil
}

// Len is the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error { return nil }
