package port

import (
	"context"

	"pdfrag/internal/domain"
)

// VectorIndex stores embedded chunks and answers nearest-neighbour queries.
// Implementations are opened with their own load-or-create constructor.
type VectorIndex interface {
	// Upsert persists entries and returns their ids in input order.
	// Entries without an ID get one assigned by the index.
	Upsert(ctx context.Context, entries []domain.IndexEntry) ([]string, error)

	// Query returns up to k entries nearest to vector, nearest first.
	// An empty index yields an empty result and no error.
	Query(ctx context.Context, vector []float32, k int) ([]domain.ScoredEntry, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	Dimension() int
	Metric() domain.Metric

	Close() error
}
