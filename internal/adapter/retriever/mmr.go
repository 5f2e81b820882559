// Package retriever post-processes nearest-neighbour results.
package retriever

import (
	"pdfrag/internal/domain"
)

// MMRReranker implements Maximal Marginal Relevance for result
// diversification over entry vectors.
type MMRReranker struct {
	lambda float64
	dedup  float64
	metric domain.Metric
}

// NewMMRReranker creates a new MMR reranker. lambda weighs relevance
// against novelty; candidates more similar than dedup to an already
// selected entry are dropped (dedup >= 1 disables dropping).
func NewMMRReranker(lambda, dedup float64, metric domain.Metric) *MMRReranker {
	return &MMRReranker{
		lambda: lambda,
		dedup:  dedup,
		metric: metric,
	}
}

// Rerank applies MMR to diversify the results.
// MMR(c) = λ * relevance(c) - (1-λ) * max_similarity(c, selected)
func (r *MMRReranker) Rerank(candidates []domain.ScoredEntry, k int) []domain.ScoredEntry {
	if len(candidates) == 0 || k <= 0 {
		return []domain.ScoredEntry{}
	}

	if k > len(candidates) {
		k = len(candidates)
	}

	// Normalize scores to [0, 1] for fair comparison
	maxScore := candidates[0].Score
	for _, c := range candidates {
		if c.Score > maxScore {
			maxScore = c.Score
		}
	}
	if maxScore <= 0 {
		maxScore = 1
	}

	selected := make([]domain.ScoredEntry, 0, k)
	remaining := make([]domain.ScoredEntry, len(candidates))
	copy(remaining, candidates)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestMMR := -1e9

		for i, candidate := range remaining {
			relevance := candidate.Score / maxScore

			maxSim := 0.0
			for _, sel := range selected {
				sim := r.similarity(candidate.Entry, sel.Entry)
				if sim > maxSim {
					maxSim = sim
				}
			}

			if r.dedup < 1 && maxSim > r.dedup {
				continue
			}

			mmr := r.lambda*relevance - (1-r.lambda)*maxSim
			if mmr > bestMMR {
				bestMMR = mmr
				bestIdx = i
			}
		}

		if bestIdx == -1 {
			// Everything left duplicates a selected entry.
			break
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}

func (r *MMRReranker) similarity(a, b domain.IndexEntry) float64 {
	if len(a.Vector) == 0 || len(a.Vector) != len(b.Vector) {
		if a.Text == b.Text {
			return 1
		}
		return 0
	}
	return domain.Similarity(r.metric, a.Vector, b.Vector)
}
