package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ValidateVector checks length and finiteness of an embedding.
// A dim of 0 skips the length check.
func ValidateVector(v []float32, dim int) error {
	if len(v) == 0 {
		return fmt.Errorf("empty vector")
	}
	if dim > 0 && len(v) != dim {
		return fmt.Errorf("vector dimension mismatch: expected %d, got %d", dim, len(v))
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("non-finite value %v at position %d", x, i)
		}
	}
	return nil
}

// SafeMetadataKeys is the allow-list of metadata fields that survive into
// the index.
var SafeMetadataKeys = map[string]bool{
	"source":       true,
	"page":         true,
	"total_pages":  true,
	"chunk":        true,
	"timestamp":    true,
	"content_hash": true,
}

// SanitizeMetadata keeps allow-listed scalar fields and renders them as
// strings. Anything else, including non-finite floats, is dropped.
func SanitizeMetadata(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !SafeMetadataKeys[k] {
			continue
		}
		if s, ok := scalarString(in[k]); ok {
			out[k] = s
		}
	}
	return out
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.FormatInt(int64(x), 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float32:
		return floatString(float64(x))
	case float64:
		return floatString(x)
	}
	return "", false
}

func floatString(f float64) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

// Similarity scores b against a under metric; higher is nearer.
// Cosine similarity of a zero vector is 0. L2 maps distance d to 1/(1+d).
func Similarity(metric Metric, a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	if metric == MetricL2 {
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return 1 / (1 + math.Sqrt(sum))
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
