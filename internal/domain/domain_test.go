package domain

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("ingest: %w", E(KindStorage, "upsert", errors.New("disk full")))

	if !errors.Is(err, ErrStorage) {
		t.Errorf("expected errors.Is(err, ErrStorage)")
	}
	if errors.Is(err, ErrEmbedding) {
		t.Errorf("storage error must not match ErrEmbedding")
	}
	if KindOf(err) != KindStorage {
		t.Errorf("expected kind %s, got %s", KindStorage, KindOf(err))
	}
}

func TestIsUnavailable(t *testing.T) {
	inner := Unavailable(KindEmbedding, "embed", errors.New("connection refused"))
	outer := E(KindEmbedding, "embed query", inner)

	if !IsUnavailable(outer) {
		t.Errorf("expected nested unavailable error to be detected")
	}
	if IsUnavailable(E(KindGeneration, "generate", errors.New("bad json"))) {
		t.Errorf("plain error reported as unavailable")
	}
	if IsUnavailable(errors.New("untagged")) {
		t.Errorf("untagged error reported as unavailable")
	}
}

func TestValidateVector(t *testing.T) {
	if err := ValidateVector([]float32{0.1, 0.2}, 2); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateVector([]float32{0.1}, 2); err == nil {
		t.Errorf("expected dimension error")
	}
	if err := ValidateVector([]float32{float32(math.NaN()), 1}, 2); err == nil {
		t.Errorf("expected NaN rejection")
	}
	if err := ValidateVector([]float32{float32(math.Inf(1)), 1}, 0); err == nil {
		t.Errorf("expected Inf rejection")
	}
	if err := ValidateVector(nil, 0); err == nil {
		t.Errorf("expected empty vector rejection")
	}
}

func TestSanitizeMetadata(t *testing.T) {
	in := map[string]any{
		"source":      "/pdfs/a.pdf",
		"page":        2,
		"total_pages": int64(3),
		"timestamp":   1.5,
		"chunk":       math.NaN(),
		"pdf":         map[string]any{"info": "x"},
		"loc":         []int{1, 2},
	}
	out := SanitizeMetadata(in)

	want := map[string]string{
		"source":      "/pdfs/a.pdf",
		"page":        "2",
		"total_pages": "3",
		"timestamp":   "1.5",
	}
	if len(out) != len(want) {
		t.Fatalf("expected %d fields, got %d: %v", len(want), len(out), out)
	}
	for k, v := range want {
		if out[k] != v {
			t.Errorf("expected %s=%q, got %q", k, v, out[k])
		}
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name   string
		metric Metric
		a, b   []float32
		want   float64
	}{
		{"cosine identical", MetricCosine, []float32{1, 2}, []float32{2, 4}, 1},
		{"cosine orthogonal", MetricCosine, []float32{1, 0}, []float32{0, 1}, 0},
		{"cosine zero vector", MetricCosine, []float32{0, 0}, []float32{1, 0}, 0},
		{"l2 identical", MetricL2, []float32{1, 2}, []float32{1, 2}, 1},
		{"l2 distance 1", MetricL2, []float32{0, 0}, []float32{1, 0}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.metric, tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestIndexEntryClone(t *testing.T) {
	e := IndexEntry{ID: "a", Vector: []float32{1, 2}, Text: "t", Metadata: map[string]string{"page": "1"}}
	c := e.Clone()
	c.Vector[0] = 9
	c.Metadata["page"] = "2"

	if e.Vector[0] != 1 || e.Metadata["page"] != "1" {
		t.Errorf("clone shares memory with original: %+v", e)
	}
	if c.ID != "a" || c.Text != "t" {
		t.Errorf("clone lost fields: %+v", c)
	}
	if (IndexEntry{}).Clone().Metadata != nil {
		t.Error("expected nil metadata to stay nil")
	}
}
