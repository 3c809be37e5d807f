// Package kv is the persistent key/value contract used by the history
// store and the prompt library. Values are opaque blobs; each Save replaces
// the whole value for its key.
package kv

import (
	"context"
	"errors"
	"sync"
)

// Sentinel errors for store operations.
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrLoadFailed  = errors.New("load failed")
	ErrSaveFailed  = errors.New("save failed")
)

// Store persists whole blobs under string keys.
// Implementations must make Save atomic: a reader sees either the old
// value or the new one, never a partial write.
type Store interface {
	// Load returns the value for key, or ErrKeyNotFound.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save creates or overwrites the value for key.
	Save(ctx context.Context, key string, value []byte) error
}

// MemoryStore keeps values in process memory. Used in tests and when no
// durable backend is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	s.data[key] = v
	return nil
}
