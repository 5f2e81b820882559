package domain

import (
	"maps"
	"time"
)

// Document is the raw text of one loadable unit (a PDF page or an ad-hoc
// text blob) plus its source metadata.
type Document struct {
	Text       string
	Metadata   map[string]any
	IngestedAt time.Time
}

// Chunk is a contiguous substring of a Document's text.
type Chunk struct {
	Text     string
	Index    int // position within the source document
	Start    int // rune offset within the source document
	Metadata map[string]any
}

// IndexEntry is what the vector index persists.
type IndexEntry struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]string
}

// Clone returns a copy of e that shares no memory with it.
func (e IndexEntry) Clone() IndexEntry {
	e.Vector = append([]float32(nil), e.Vector...)
	e.Metadata = maps.Clone(e.Metadata)
	return e
}

// ScoredEntry is one element of a retrieval result.
// Score is higher for nearer entries regardless of the index metric.
type ScoredEntry struct {
	Entry IndexEntry
	Score float64
}

// Answer is the outcome of one question.
type Answer struct {
	Question string        `json:"question"`
	Text     string        `json:"answer"`
	Context  string        `json:"-"`
	Sources  []ScoredEntry `json:"-"`
}

// Metric names the similarity function of a vector index.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
)

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	return m == MetricCosine || m == MetricL2
}
