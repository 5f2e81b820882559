package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"pdfrag/internal/domain"
)

// BoltVectorStore implements port.VectorIndex on a bbolt collection.
// Every entry is held in memory in insertion order; writes go through to
// disk before the in-memory view changes.
type BoltVectorStore struct {
	db         *bbolt.DB
	path       string
	collection []byte
	dimension  int
	metric     domain.Metric

	mu      sync.RWMutex
	entries []memEntry
	byID    map[string]int // id -> position in entries
	nextSeq uint64
}

type memEntry struct {
	seq   uint64
	entry domain.IndexEntry
}

type storedEntry struct {
	ID       string            `json:"id"`
	Vector   []float32         `json:"v"`
	Text     string            `json:"t"`
	Metadata map[string]string `json:"m,omitempty"`
}

func (s *BoltVectorStore) loadEntries() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		info, err := readSchemaInfo(s.bucket(tx, bucketMeta))
		if err != nil {
			return err
		}
		s.nextSeq = info.NextSeq

		return s.bucket(tx, bucketEntries).ForEach(func(k, v []byte) error {
			seq, err := decodeSeq(k)
			if err != nil {
				return err
			}
			var stored storedEntry
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("corrupt entry %d: %w", seq, err)
			}
			if err := domain.ValidateVector(stored.Vector, s.dimension); err != nil {
				return fmt.Errorf("corrupt entry %d: %w", seq, err)
			}
			if seq >= s.nextSeq {
				s.nextSeq = seq + 1
			}
			s.byID[stored.ID] = len(s.entries)
			s.entries = append(s.entries, memEntry{
				seq: seq,
				entry: domain.IndexEntry{
					ID:       stored.ID,
					Vector:   stored.Vector,
					Text:     stored.Text,
					Metadata: stored.Metadata,
				},
			})
			return nil
		})
	})
}

// Upsert writes entries in one transaction. Entries without an ID get a
// random UUID; an entry whose ID is already stored replaces it and keeps
// its original insertion position.
func (s *BoltVectorStore) Upsert(ctx context.Context, entries []domain.IndexEntry) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	prepared := make([]domain.IndexEntry, len(entries))
	for i, e := range entries {
		if err := domain.ValidateVector(e.Vector, s.dimension); err != nil {
			return nil, domain.E(domain.KindValidation, fmt.Sprintf("upsert entry %d", i), err)
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		prepared[i] = e.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seqs := make([]uint64, len(prepared))
	nextSeq := s.nextSeq
	err := s.db.Update(func(tx *bbolt.Tx) error {
		entriesBucket := s.bucket(tx, bucketEntries)
		ids := s.bucket(tx, bucketIDs)

		for i, e := range prepared {
			var seq uint64
			if existing := ids.Get([]byte(e.ID)); existing != nil {
				var err error
				if seq, err = decodeSeq(existing); err != nil {
					return err
				}
			} else {
				seq = nextSeq
				nextSeq++
				if err := ids.Put([]byte(e.ID), seqKey(seq)); err != nil {
					return err
				}
			}

			data, err := json.Marshal(storedEntry{
				ID:       e.ID,
				Vector:   e.Vector,
				Text:     e.Text,
				Metadata: e.Metadata,
			})
			if err != nil {
				return err
			}
			if err := entriesBucket.Put(seqKey(seq), data); err != nil {
				return err
			}
			seqs[i] = seq
		}

		return s.bucket(tx, bucketMeta).Put(keyNextSeq, seqKey(nextSeq))
	})
	if err != nil {
		return nil, domain.E(domain.KindStorage, "upsert", err)
	}

	ids := make([]string, len(prepared))
	for i, e := range prepared {
		if pos, ok := s.byID[e.ID]; ok {
			s.entries[pos].entry = e
		} else {
			s.byID[e.ID] = len(s.entries)
			s.entries = append(s.entries, memEntry{seq: seqs[i], entry: e})
		}
		ids[i] = e.ID
	}
	s.nextSeq = nextSeq
	return ids, nil
}

// Query scores every entry against vector and returns the k best, nearest
// first. Equal scores keep insertion order.
func (s *BoltVectorStore) Query(ctx context.Context, vector []float32, k int) ([]domain.ScoredEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, domain.Errorf(domain.KindValidation, "k must be positive, got %d", k)
	}
	if err := domain.ValidateVector(vector, s.dimension); err != nil {
		return nil, domain.E(domain.KindValidation, "query", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return []domain.ScoredEntry{}, nil
	}

	scores := make([]domain.ScoredEntry, len(s.entries))
	for i, m := range s.entries {
		scores[i] = domain.ScoredEntry{
			Entry: m.entry,
			Score: domain.Similarity(s.metric, vector, m.entry.Vector),
		}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})

	if k > len(scores) {
		k = len(scores)
	}
	results := scores[:k:k]
	for i := range results {
		results[i].Entry = results[i].Entry.Clone()
	}
	return results, nil
}

// Count returns the number of stored entries.
func (s *BoltVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *BoltVectorStore) Dimension() int {
	return s.dimension
}

func (s *BoltVectorStore) Metric() domain.Metric {
	return s.metric
}
