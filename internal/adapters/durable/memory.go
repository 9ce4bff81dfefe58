package durable

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/pulse/internal/domain/category"
)

// InMemoryStore implements Store with plain maps. Used when no postgres
// DSN is configured and throughout the test suite.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]TrendRecord
	tags    map[tagKey]string
	closed  bool
}

type recordKey struct {
	itemID   string
	category category.Category
	userID   string
}

type tagKey struct {
	itemID   string
	category category.Category
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemory creates an empty in-memory durable store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[recordKey]TrendRecord),
		tags:    make(map[tagKey]string),
	}
}

func (s *InMemoryStore) UpsertRecord(_ context.Context, rec TrendRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.records[recordKey{rec.ItemID, rec.Category, rec.UserID}] = rec
	return nil
}

func (s *InMemoryStore) TopRecent(_ context.Context, cat category.Category, limit int, within time.Duration) ([]TrendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	cutoff := time.Now().Add(-within)
	var out []TrendRecord
	for key, rec := range s.records {
		if key.category == cat && key.userID == "" && rec.CalculatedAt.After(cutoff) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].CalculatedAt.After(out[j].CalculatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) TagFor(_ context.Context, itemID string, cat category.Category) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrClosed
	}
	tag, ok := s.tags[tagKey{itemID, cat}]
	if !ok {
		return "", ErrTagNotFound
	}
	return tag, nil
}

func (s *InMemoryStore) UpsertTag(_ context.Context, itemID string, cat category.Category, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.tags[tagKey{itemID, cat}] = tag
	return nil
}

func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
