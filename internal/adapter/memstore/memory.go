// Package memstore is a process-local vector index with nothing on disk.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"pdfrag/internal/domain"
)

type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	metric    domain.Metric
	entries   []domain.IndexEntry
	byID      map[string]int
}

func NewMemoryStore(dimension int, metric domain.Metric) *MemoryStore {
	if metric == "" {
		metric = domain.MetricCosine
	}
	return &MemoryStore{
		dimension: dimension,
		metric:    metric,
		byID:      make(map[string]int),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, entries []domain.IndexEntry) ([]string, error) {
	for i, e := range entries {
		if err := domain.ValidateVector(e.Vector, s.dimension); err != nil {
			return nil, domain.E(domain.KindValidation, fmt.Sprintf("upsert entry %d", i), err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e = e.Clone()
		if pos, ok := s.byID[e.ID]; ok {
			s.entries[pos] = e
		} else {
			s.byID[e.ID] = len(s.entries)
			s.entries = append(s.entries, e)
		}
		ids[i] = e.ID
	}
	return ids, nil
}

func (s *MemoryStore) Query(ctx context.Context, vector []float32, k int) ([]domain.ScoredEntry, error) {
	if k <= 0 {
		return nil, domain.Errorf(domain.KindValidation, "k must be positive, got %d", k)
	}
	if err := domain.ValidateVector(vector, s.dimension); err != nil {
		return nil, domain.E(domain.KindValidation, "query", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]domain.ScoredEntry, len(s.entries))
	for i, e := range s.entries {
		results[i] = domain.ScoredEntry{Entry: e, Score: domain.Similarity(s.metric, vector, e.Vector)}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k > len(results) {
		k = len(results)
	}
	results = results[:k:k]
	for i := range results {
		results[i].Entry = results[i].Entry.Clone()
	}
	return results, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Entries returns a snapshot of stored entries in insertion order.
func (s *MemoryStore) Entries() []domain.IndexEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.IndexEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.byID = make(map[string]int)
	return nil
}

func (s *MemoryStore) Dimension() int {
	return s.dimension
}

func (s *MemoryStore) Metric() domain.Metric {
	return s.metric
}

func (s *MemoryStore) Close() error {
	return nil
}
