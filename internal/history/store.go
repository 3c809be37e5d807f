package history

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/hpungsan/screenflow/internal/kv"
)

// Capacity is the maximum number of retained submissions.
const Capacity = 50

// Key is the storage key of the serialized history.
const Key = "history"

const envelopeVersion = 1

type envelope struct {
	Version     int          `json:"version"`
	Submissions []Submission `json:"submissions"`
}

// Store is the bounded, newest-first submission archive. Every mutation
// rewrites the whole envelope to the backing kv.Store.
type Store struct {
	mu       sync.RWMutex
	backend  kv.Store
	log      *slog.Logger
	subs     []Submission
	degraded bool
}

// New loads the archive from backend. Absent or unreadable data loads as an
// empty history.
func New(ctx context.Context, backend kv.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{backend: backend, log: logger}

	data, err := backend.Load(ctx, Key)
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			s.log.Warn("history read failed; starting empty", "error", err)
		}
		return s
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.log.Warn("discarding unreadable history", "error", err)
		return s
	}
	if env.Version != envelopeVersion {
		s.log.Warn("discarding history with unknown version", "version", env.Version)
		return s
	}

	s.subs = env.Submissions
	if evicted := s.evictLocked(); len(evicted) > 0 {
		s.log.Warn("stored history over capacity; evicted oldest", "evicted", len(evicted))
	}
	return s
}

// InsertFront adds sub as the newest entry. When the archive is over
// capacity, the entry with the earliest timestamp is evicted and its id
// returned.
func (s *Store) InsertFront(ctx context.Context, sub Submission) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs = append([]Submission{sub.Clone()}, s.subs...)
	evicted := s.evictLocked()
	s.persistLocked(ctx)
	return evicted
}

// Merge adds subs and re-sorts the archive newest first by timestamp, then
// trims to capacity. Used by import.
func (s *Store) Merge(ctx context.Context, subs []Submission) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range subs {
		s.subs = append(s.subs, sub.Clone())
	}
	sort.SliceStable(s.subs, func(i, j int) bool {
		return s.subs[i].Timestamp.After(s.subs[j].Timestamp)
	})
	evicted := s.evictLocked()
	s.persistLocked(ctx)
	return evicted
}

// evictLocked drops earliest-timestamp entries until within capacity.
// Ties go to the entry nearest the back.
func (s *Store) evictLocked() []string {
	var evicted []string
	for len(s.subs) > Capacity {
		oldest := len(s.subs) - 1
		for i := len(s.subs) - 2; i >= 0; i-- {
			if s.subs[i].Timestamp.Before(s.subs[oldest].Timestamp) {
				oldest = i
			}
		}
		evicted = append(evicted, s.subs[oldest].ID)
		s.subs = append(s.subs[:oldest], s.subs[oldest+1:]...)
	}
	return evicted
}

// Get returns the submission at index (0 = newest).
func (s *Store) Get(index int) (Submission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.subs) {
		return Submission{}, false
	}
	return s.subs[index].Clone(), true
}

// Find returns the submission with id and its index.
func (s *Store) Find(id string) (Submission, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, sub := range s.subs {
		if sub.ID == id {
			return sub.Clone(), i, true
		}
	}
	return Submission{}, -1, false
}

// DeleteByID removes the submission with id. Returns false if absent.
func (s *Store) DeleteByID(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subs {
		if sub.ID == id {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			s.persistLocked(ctx)
			return true
		}
	}
	return false
}

// Clear removes every submission.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs = nil
	s.persistLocked(ctx)
}

// Size returns the number of retained submissions.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Snapshot returns deep copies of all submissions, newest first.
func (s *Store) Snapshot() []Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Submission, len(s.subs))
	for i, sub := range s.subs {
		out[i] = sub.Clone()
	}
	return out
}

// Degraded reports whether persistence has been abandoned after a failed write.
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// MarkDegraded records that the archive has no durable backend. Writes are
// skipped from then on.
func (s *Store) MarkDegraded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degraded = true
}

// persistLocked writes the whole archive. After the first failure the store
// stays in memory for the rest of the process.
func (s *Store) persistLocked(ctx context.Context) {
	if s.degraded {
		return
	}
	subs := s.subs
	if subs == nil {
		subs = []Submission{}
	}
	data, err := json.Marshal(envelope{Version: envelopeVersion, Submissions: subs})
	if err == nil {
		err = s.backend.Save(ctx, Key, data)
	}
	if err != nil {
		s.degraded = true
		s.log.Error("history write failed; continuing in memory", "error", err)
	}
}
