// Package qdrant is the networked vector index: a minimal REST client for
// one Qdrant collection.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pdfrag/internal/adapter/backend"
	"pdfrag/internal/domain"
)

// Storage implements port.VectorIndex on a Qdrant collection.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	metric     domain.Metric
	client     *http.Client

	mu      sync.Mutex
	lastSeq int64
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Metric     domain.Metric
	Timeout    time.Duration
	HTTPClient *http.Client
}

// pointNamespace derives point UUIDs for entry ids that are not UUIDs.
var pointNamespace = uuid.MustParse("6f0b8a54-4c1e-4f55-9a53-3e1c1ab1a7f2")

// Open connects to the collection, creating it when missing. An existing
// collection must have the requested vector size and distance.
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.URL == "" {
		return nil, domain.Errorf(domain.KindConfig, "qdrant url is required")
	}
	if cfg.Collection == "" {
		return nil, domain.Errorf(domain.KindConfig, "collection name is required")
	}
	if cfg.Dimension <= 0 {
		return nil, domain.Errorf(domain.KindConfig, "dimension must be positive, got %d", cfg.Dimension)
	}
	metric := cfg.Metric
	if metric == "" {
		metric = domain.MetricCosine
	}
	if !metric.Valid() {
		return nil, domain.Errorf(domain.KindConfig, "unknown metric %q", metric)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	s := &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		metric:     metric,
		client:     client,
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func distanceName(m domain.Metric) string {
	if m == domain.MetricL2 {
		return "Euclid"
	}
	return "Cosine"
}

func (s *Storage) collectionURL(suffix string) string {
	return s.url + "/collections/" + url.PathEscape(s.collection) + suffix
}

func (s *Storage) ensureCollection(ctx context.Context) error {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}

	err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &resp)
	if err == nil {
		vectors := resp.Result.Config.Params.Vectors
		if vectors.Size != s.dimension {
			return domain.Errorf(domain.KindStorage, "collection %s has vector size %d, requested %d", s.collection, vectors.Size, s.dimension)
		}
		if vectors.Distance != distanceName(s.metric) {
			return domain.Errorf(domain.KindStorage, "collection %s uses distance %s, requested %s", s.collection, vectors.Distance, distanceName(s.metric))
		}
		return nil
	}
	if !isNotFound(err) {
		return backend.Wrap(domain.KindStorage, "get collection "+s.collection, err)
	}

	return s.create(ctx)
}

func (s *Storage) create(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimension,
			"distance": distanceName(s.metric),
		},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
		return backend.Wrap(domain.KindStorage, "create collection "+s.collection, err)
	}
	return nil
}

type point struct {
	ID      string       `json:"id"`
	Vector  []float32    `json:"vector"`
	Payload pointPayload `json:"payload"`
}

type pointPayload struct {
	EntryID  string            `json:"entry_id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Seq      int64             `json:"seq"`
}

func pointID(entryID string) string {
	if id, err := uuid.Parse(entryID); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(pointNamespace, []byte(entryID)).String()
}

// nextSeqs reserves n increasing insertion ordinals. They derive from the
// wall clock so ordinals stay increasing across processes and restarts.
func (s *Storage) nextSeqs(n int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now().UnixNano()
	if start <= s.lastSeq {
		start = s.lastSeq + 1
	}
	s.lastSeq = start + int64(n) - 1
	return start
}

// Upsert writes all entries in one request and waits for Qdrant to apply
// them. An entry whose ID already exists replaces the stored point.
func (s *Storage) Upsert(ctx context.Context, entries []domain.IndexEntry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	ids := make([]string, len(entries))
	points := make([]point, len(entries))
	seq := s.nextSeqs(len(entries))
	for i, e := range entries {
		if err := domain.ValidateVector(e.Vector, s.dimension); err != nil {
			return nil, domain.E(domain.KindValidation, fmt.Sprintf("upsert entry %d", i), err)
		}
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		ids[i] = id
		points[i] = point{
			ID:     pointID(id),
			Vector: e.Vector,
			Payload: pointPayload{
				EntryID:  id,
				Text:     e.Text,
				Metadata: e.Metadata,
				Seq:      seq + int64(i),
			},
		}
	}

	body := map[string]any{"points": points}
	if err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body, nil); err != nil {
		return nil, backend.Wrap(domain.KindStorage, "upsert points", err)
	}
	return ids, nil
}

// Query searches the collection. Results with equal scores are ordered by
// insertion ordinal.
func (s *Storage) Query(ctx context.Context, vector []float32, k int) ([]domain.ScoredEntry, error) {
	if k <= 0 {
		return nil, domain.Errorf(domain.KindValidation, "k must be positive, got %d", k)
	}
	if err := domain.ValidateVector(vector, s.dimension); err != nil {
		return nil, domain.E(domain.KindValidation, "query", err)
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
		"with_vector":  true,
	}
	var resp struct {
		Result []struct {
			Score   float64      `json:"score"`
			Payload pointPayload `json:"payload"`
			Vector  []float32    `json:"vector"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, backend.Wrap(domain.KindStorage, "search points", err)
	}

	type ranked struct {
		domain.ScoredEntry
		seq int64
	}
	hits := make([]ranked, 0, len(resp.Result))
	for _, r := range resp.Result {
		score := r.Score
		if s.metric == domain.MetricL2 {
			score = 1 / (1 + r.Score)
		}
		hits = append(hits, ranked{
			ScoredEntry: domain.ScoredEntry{
				Entry: domain.IndexEntry{
					ID:       r.Payload.EntryID,
					Vector:   r.Vector,
					Text:     r.Payload.Text,
					Metadata: r.Payload.Metadata,
				},
				Score: score,
			},
			seq: r.Payload.Seq,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].seq < hits[j].seq
	})

	results := make([]domain.ScoredEntry, len(hits))
	for i, h := range hits {
		results[i] = h.ScoredEntry
	}
	return results, nil
}

// Count returns the exact number of points in the collection.
func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp); err != nil {
		return 0, backend.Wrap(domain.KindStorage, "count points", err)
	}
	return resp.Result.Count, nil
}

// Clear drops and recreates the collection.
func (s *Storage) Clear(ctx context.Context) error {
	if err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil); err != nil && !isNotFound(err) {
		return backend.Wrap(domain.KindStorage, "delete collection "+s.collection, err)
	}
	return s.create(ctx)
}

func (s *Storage) Dimension() int {
	return s.dimension
}

func (s *Storage) Metric() domain.Metric {
	return s.metric
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func isNotFound(err error) bool {
	statusErr, ok := err.(*backend.StatusError)
	return ok && statusErr.Code == http.StatusNotFound
}

func (s *Storage) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &backend.StatusError{Method: method, URL: endpoint, Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, endpoint, err)
		}
	}
	return nil
}
