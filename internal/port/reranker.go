package port

import "pdfrag/internal/domain"

// DiversityReranker selects up to k results from a nearest-first candidate
// list, trading relevance for novelty.
type DiversityReranker interface {
	Rerank(results []domain.ScoredEntry, k int) []domain.ScoredEntry
}
