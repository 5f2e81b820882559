package usecase

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"pdfrag/internal/adapter/chunker"
	"pdfrag/internal/adapter/embedding"
	"pdfrag/internal/adapter/memstore"
	"pdfrag/internal/domain"
	"pdfrag/internal/port"
)

const testDim = 64

// fakeLoader serves documents by path.
type fakeLoader struct {
	docs map[string][]domain.Document
	errs map[string]error
}

func (l *fakeLoader) Load(ctx context.Context, path string) ([]domain.Document, error) {
	if err := l.errs[filepath.Base(path)]; err != nil {
		return nil, err
	}
	return l.docs[filepath.Base(path)], nil
}

func page(source string, n int, text string) domain.Document {
	return domain.Document{Text: text, Metadata: map[string]any{"source": source, "page": n, "total_pages": 1}}
}

// pdfDir creates empty files with the given names so directory listing
// finds them; their content comes from a fakeLoader.
func pdfDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}
	return dir
}

// spyEmbedder counts calls and can be told to fail or return bad vectors.
type spyEmbedder struct {
	port.Embedder
	mu      sync.Mutex
	calls   int
	err     error
	corrupt bool
}

func newSpyEmbedder() *spyEmbedder {
	return &spyEmbedder{Embedder: embedding.NewHashEmbedder(testDim)}
}

func (e *spyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	vectors, err := e.Embedder.Embed(ctx, texts)
	if err == nil && e.corrupt && len(vectors) > 0 {
		vectors[len(vectors)-1][0] = float32(math.NaN())
	}
	return vectors, err
}

func (e *spyEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return e.Embedder.EmbedQuery(ctx, text)
}

// spyIndex records calls on top of an in-memory index.
type spyIndex struct {
	*memstore.MemoryStore
	upserts int
	queries int
	err     error
}

func newSpyIndex() *spyIndex {
	return &spyIndex{MemoryStore: memstore.NewMemoryStore(testDim, domain.MetricCosine)}
}

func (s *spyIndex) Upsert(ctx context.Context, entries []domain.IndexEntry) ([]string, error) {
	s.upserts++
	if s.err != nil {
		return nil, s.err
	}
	return s.MemoryStore.Upsert(ctx, entries)
}

func (s *spyIndex) Query(ctx context.Context, vector []float32, k int) ([]domain.ScoredEntry, error) {
	s.queries++
	if s.err != nil {
		return nil, s.err
	}
	return s.MemoryStore.Query(ctx, vector, k)
}

// fakeLLM records prompts and replies with a fixed answer.
type fakeLLM struct {
	prompts []string
	reply   string
	err     error
}

func (l *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	l.prompts = append(l.prompts, prompt)
	if l.err != nil {
		return "", l.err
	}
	return l.reply, nil
}

func (l *fakeLLM) ModelName() string { return "fake" }

type pipeline struct {
	loader   *fakeLoader
	embedder *spyEmbedder
	index    *spyIndex
	llm      *fakeLLM
	ingestor *Ingestor
	answerer *Answerer
	chat     *Chat
}

func newPipeline(t *testing.T, opts IngestOptions) *pipeline {
	t.Helper()
	c, err := chunker.NewRecursiveChunker(1000, 200)
	require.NoError(t, err)

	p := &pipeline{
		loader:   &fakeLoader{docs: map[string][]domain.Document{}, errs: map[string]error{}},
		embedder: newSpyEmbedder(),
		index:    newSpyIndex(),
		llm:      &fakeLLM{reply: "  Blue.  "},
	}
	p.ingestor = NewIngestor(p.loader, c, p.embedder, p.index, opts)
	p.answerer = NewAnswerer(p.embedder, p.index, p.llm, AnswerOptions{TopK: 5})
	p.chat = NewChat(p.ingestor, p.answerer)
	return p
}
