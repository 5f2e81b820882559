// Package app assembles the ingestion and answering pipelines from
// configuration.
package app

import (
	"context"
	"fmt"
	"os"

	"pdfrag/config"
	"pdfrag/internal/adapter/cache"
	"pdfrag/internal/adapter/chunker"
	"pdfrag/internal/adapter/embedding"
	"pdfrag/internal/adapter/llm"
	"pdfrag/internal/adapter/loader"
	"pdfrag/internal/adapter/memstore"
	"pdfrag/internal/adapter/qdrant"
	"pdfrag/internal/adapter/retriever"
	"pdfrag/internal/adapter/store"
	"pdfrag/internal/domain"
	"pdfrag/internal/port"
	"pdfrag/internal/usecase"
)

// App holds the components shared by every entry point. The index is
// opened once per process.
type App struct {
	Config   *config.Config
	Dir      string
	Embedder port.Embedder
	Index    port.VectorIndex
	LLM      port.LLM
	Ingestor *usecase.Ingestor
	Answerer *usecase.Answerer
	Chat     *usecase.Chat
}

// New builds an App for the project directory dir.
func New(ctx context.Context, cfg *config.Config, dir string) (*App, error) {
	embedder, err := NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	index, err := OpenIndex(ctx, cfg, dir, embedder.Dimension())
	if err != nil {
		return nil, err
	}

	model, err := NewLLM(cfg)
	if err != nil {
		index.Close()
		return nil, err
	}

	chk, err := chunker.NewRecursiveChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		index.Close()
		return nil, err
	}

	ingestor := usecase.NewIngestor(loader.NewPDFLoader(), chk, embedder, index, usecase.IngestOptions{
		Dedup:          cfg.Ingest.Dedup,
		SkipUnreadable: cfg.Ingest.SkipUnreadable,
		Workers:        cfg.Ingest.Workers,
	})
	opts := usecase.AnswerOptions{
		TopK:     cfg.Retrieve.TopK,
		MinScore: cfg.Retrieve.MinScore,
		FetchK:   cfg.Retrieve.FetchK,
	}
	if cfg.Retrieve.MMRLambda > 0 {
		opts.Reranker = retriever.NewMMRReranker(cfg.Retrieve.MMRLambda, cfg.Retrieve.DedupSim, index.Metric())
	}
	answerer := usecase.NewAnswerer(embedder, index, model, opts)

	return &App{
		Config:   cfg,
		Dir:      dir,
		Embedder: embedder,
		Index:    index,
		LLM:      model,
		Ingestor: ingestor,
		Answerer: answerer,
		Chat:     usecase.NewChat(ingestor, answerer),
	}, nil
}

func (a *App) Close() error {
	return a.Index.Close()
}

// PDFDir is the configured PDF source directory.
func (a *App) PDFDir() string {
	return config.PDFDir(a.Dir, a.Config)
}

// Describe names the index location for humans.
func (a *App) Describe() string {
	cfg := a.Config
	switch cfg.Index.Backend {
	case "bolt":
		return fmt.Sprintf("bolt %s (collection %s)", config.IndexDBPath(a.Dir, cfg), cfg.Index.Collection)
	case "qdrant":
		return fmt.Sprintf("qdrant %s (collection %s)", cfg.Index.QdrantURL, cfg.Index.Collection)
	}
	return cfg.Index.Backend
}

// Clearer is implemented by indexes that can drop all entries.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Clear empties the index if its backend supports it.
func (a *App) Clear(ctx context.Context) error {
	c, ok := a.Index.(Clearer)
	if !ok {
		return domain.Errorf(domain.KindConfig, "backend %s cannot be cleared", a.Config.Index.Backend)
	}
	return c.Clear(ctx)
}

// NewEmbedder builds the configured embedder, wrapped in a query cache
// when retrieve.cache_size is positive.
func NewEmbedder(cfg *config.Config) (port.Embedder, error) {
	var embedder port.Embedder
	switch cfg.Embedding.Provider {
	case "openai", "ollama":
		e, err := embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			BaseURL:     cfg.Embedding.BaseURL,
			APIKey:      os.Getenv(cfg.Embedding.APIKeyEnv),
			Model:       cfg.Embedding.Model,
			Dimension:   cfg.Embedding.Dimension,
			BatchSize:   cfg.Embedding.BatchSize,
			QueryPrefix: cfg.Embedding.QueryPrefix,
			Timeout:     config.Timeout(cfg.Embedding.TimeoutSec),
		})
		if err != nil {
			return nil, err
		}
		embedder = e
	case "hash":
		embedder = embedding.NewHashEmbedder(cfg.Embedding.Dimension)
	default:
		return nil, domain.Errorf(domain.KindConfig, "unknown embedding provider %q", cfg.Embedding.Provider)
	}

	if cfg.Retrieve.CacheSize > 0 {
		qc := cache.NewQueryCache(cfg.Retrieve.CacheSize, config.Timeout(cfg.Retrieve.CacheTTLSec))
		embedder = cache.NewCachedEmbedder(embedder, qc)
	}
	return embedder, nil
}

// OpenIndex loads or creates the configured vector index.
func OpenIndex(ctx context.Context, cfg *config.Config, dir string, dimension int) (port.VectorIndex, error) {
	metric := domain.Metric(cfg.Index.Metric)
	switch cfg.Index.Backend {
	case "bolt":
		return store.Open(config.IndexDBPath(dir, cfg), cfg.Index.Collection, dimension, metric)
	case "qdrant":
		return qdrant.Open(ctx, qdrant.Config{
			URL:        cfg.Index.QdrantURL,
			APIKey:     cfg.Index.QdrantKey,
			Collection: cfg.Index.Collection,
			Dimension:  dimension,
			Metric:     metric,
			Timeout:    config.Timeout(cfg.Index.TimeoutSec),
		})
	case "memory":
		return memstore.NewMemoryStore(dimension, metric), nil
	}
	return nil, domain.Errorf(domain.KindConfig, "unknown index backend %q", cfg.Index.Backend)
}

func NewLLM(cfg *config.Config) (port.LLM, error) {
	return llm.NewOpenAILLM(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      os.Getenv(cfg.LLM.APIKeyEnv),
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     config.Timeout(cfg.LLM.TimeoutSec),
	})
}
