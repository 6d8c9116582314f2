package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/catbracket/internal/domain/model"
	"github.com/okian/catbracket/pkg/metrics"
)

const driverMemory = "memory"

// MemoryStore keeps ratings in a map. It is safe for concurrent use and
// loses everything on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]model.RatingEntry
	closed  bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]model.RatingEntry)}
}

// Get returns the stored entry or the default one.
func (s *MemoryStore) Get(ctx context.Context, imageID string) (model.RatingEntry, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(driverMemory, msSince(start)) }()

	if err := ctx.Err(); err != nil {
		return model.RatingEntry{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.RatingEntry{}, ErrClosed
	}
	if e, ok := s.entries[imageID]; ok {
		return e, nil
	}
	return model.NewRatingEntry(imageID), nil
}

// Set stores entry.
func (s *MemoryStore) Set(ctx context.Context, entry model.RatingEntry) error {
	start := time.Now()
	defer func() { metrics.RecordRepositoryUpdateLatency(driverMemory, msSince(start)) }()

	if err := validate(entry); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.entries[entry.ImageID] = entry
	metrics.UpdateRepositoryRecordsTotal(len(s.entries))
	return nil
}

// All returns a copy of every entry.
func (s *MemoryStore) All(ctx context.Context) ([]model.RatingEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]model.RatingEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out, nil
}

// BulkSet stores all entries or none of them.
func (s *MemoryStore) BulkSet(ctx context.Context, entries []model.RatingEntry) error {
	for _, e := range entries {
		if err := validate(e); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, e := range entries {
		s.entries[e.ImageID] = e
	}
	metrics.UpdateRepositoryRecordsTotal(len(s.entries))
	return nil
}

// Clear removes every entry.
func (s *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.entries = make(map[string]model.RatingEntry)
	metrics.UpdateRepositoryRecordsTotal(0)
	return nil
}

// Transact runs fn holding the write lock; its writes land only if fn succeeds.
func (s *MemoryStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	tx := &memoryTx{base: s.entries, staged: make(map[string]model.RatingEntry, 2)}
	if err := fn(tx); err != nil {
		return err
	}
	for id, e := range tx.staged {
		s.entries[id] = e
	}
	metrics.UpdateRepositoryRecordsTotal(len(s.entries))
	return nil
}

// Close marks the store unusable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memoryTx struct {
	base   map[string]model.RatingEntry
	staged map[string]model.RatingEntry
}

func (t *memoryTx) Get(ctx context.Context, imageID string) (model.RatingEntry, error) {
	if err := ctx.Err(); err != nil {
		return model.RatingEntry{}, err
	}
	if e, ok := t.staged[imageID]; ok {
		return e, nil
	}
	if e, ok := t.base[imageID]; ok {
		return e, nil
	}
	return model.NewRatingEntry(imageID), nil
}

func (t *memoryTx) Set(ctx context.Context, entry model.RatingEntry) error {
	if err := validate(entry); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.staged[entry.ImageID] = entry
	return nil
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
