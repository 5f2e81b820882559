package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"pdfrag/internal/domain"
)

// Config holds all configuration for the RAG tool.
type Config struct {
	Ingest    IngestConfig    `yaml:"ingest"`
	Index     IndexConfig     `yaml:"index"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// IngestConfig holds ingestion configuration.
type IngestConfig struct {
	PDFDir         string `yaml:"pdf_dir"`
	ChunkSize      int    `yaml:"chunk_size"`
	ChunkOverlap   int    `yaml:"chunk_overlap"`
	Dedup          bool   `yaml:"dedup"`           // deterministic ids per chunk content
	SkipUnreadable bool   `yaml:"skip_unreadable"` // skip PDFs that fail to load instead of aborting
	Workers        int    `yaml:"workers"`         // parallel PDF loaders
}

// IndexConfig holds vector index configuration.
type IndexConfig struct {
	Backend    string `yaml:"backend"` // "bolt", "qdrant" or "memory"
	Path       string `yaml:"path"`    // bolt file
	Collection string `yaml:"collection"`
	Metric     string `yaml:"metric"` // "cosine" or "l2"
	QdrantURL  string `yaml:"qdrant_url"`
	QdrantKey  string `yaml:"qdrant_api_key"`
	TimeoutSec int    `yaml:"timeout_secs"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK        int     `yaml:"top_k"`
	MinScore    float64 `yaml:"min_score"`  // Filter results below this score (0 = disabled)
	CacheSize   int     `yaml:"cache_size"` // query embedding cache entries (0 = disabled)
	CacheTTLSec int     `yaml:"cache_ttl_secs"`
	MMRLambda   float64 `yaml:"mmr_lambda"`      // relevance vs. diversity in (0, 1]; 0 = no reranking
	DedupSim    float64 `yaml:"dedup_threshold"` // drop candidates this similar to a kept one
	FetchK      int     `yaml:"fetch_k"`         // candidates fetched for reranking (default 2*top_k)
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"` // "openai" (any OpenAI-compatible endpoint, e.g. Ollama) or "hash"
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	APIKeyEnv   string `yaml:"api_key_env"` // Environment variable for API key
	Dimension   int    `yaml:"dimension"`   // 0 infers it from the model
	BatchSize   int    `yaml:"batch_size"`
	QueryPrefix string `yaml:"query_prefix"`
	TimeoutSec  int    `yaml:"timeout_secs"`
}

// LLMConfig holds language model configuration.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Temperature float32 `yaml:"temperature"`
	TimeoutSec  int     `yaml:"timeout_secs"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

const defaultOllamaURL = "http://127.0.0.1:11434"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Ingest: IngestConfig{
			PDFDir:       "pdfs",
			ChunkSize:    1000,
			ChunkOverlap: 200,
			Workers:      4,
		},
		Index: IndexConfig{
			Backend:    "bolt",
			Path:       filepath.Join("vectorstore", "index.db"),
			Collection: "pdf-docs",
			Metric:     string(domain.MetricCosine),
			QdrantURL:  "http://localhost:6333",
			TimeoutSec: 15,
		},
		Retrieve: RetrieveConfig{
			TopK:        5,
			CacheSize:   256,
			CacheTTLSec: 300,
			DedupSim:    0.98,
		},
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			BaseURL:    ollamaV1(defaultOllamaURL),
			Model:      "nomic-embed-text",
			APIKeyEnv:  "OPENAI_API_KEY",
			BatchSize:  64,
			TimeoutSec: 120,
		},
		LLM: LLMConfig{
			BaseURL:     ollamaV1(defaultOllamaURL),
			Model:       "mistral",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.1,
			TimeoutSec:  300,
		},
		Server: ServerConfig{
			Addr:        ":3000",
			MaxUploadMB: 64,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, then applies environment
// overrides. A .env file next to the config file is loaded into the
// environment first; variables already set win. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for rag.yaml).
// A .env file in the directory is loaded into the environment first;
// variables already set win.
func LoadFromDir(dir string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	path := filepath.Join(dir, "rag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".rag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	cfg := DefaultConfig()
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		c.Embedding.BaseURL = ollamaV1(v)
		c.LLM.BaseURL = ollamaV1(v)
	}
	if v := os.Getenv("EMBEDDING_URL"); v != "" {
		c.Embedding.BaseURL = ollamaV1(v)
	}
	c.Embedding.Model = getEnv("EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.Provider = getEnv("EMBEDDING_PROVIDER", c.Embedding.Provider)
	c.Embedding.Dimension = getEnvInt("EMBEDDING_DIMENSION", c.Embedding.Dimension)
	if v := os.Getenv("LLM_URL"); v != "" {
		c.LLM.BaseURL = ollamaV1(v)
	}
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)

	c.Index.Backend = getEnv("VECTOR_BACKEND", c.Index.Backend)
	c.Index.QdrantURL = getEnv("QDRANT_URL", c.Index.QdrantURL)
	c.Index.QdrantKey = getEnv("QDRANT_API_KEY", c.Index.QdrantKey)
	c.Index.Collection = getEnv("VECTOR_COLLECTION", c.Index.Collection)
	c.Index.Path = getEnv("VECTORSTORE_PATH", c.Index.Path)

	c.Ingest.PDFDir = getEnv("PDFS_DIR", c.Ingest.PDFDir)
	c.Ingest.Dedup = getEnvBool("INGEST_DEDUP", c.Ingest.Dedup)

	c.Server.Addr = getEnv("RAG_ADDR", c.Server.Addr)
	c.Logging.Level = getEnv("RAG_LOG_LEVEL", c.Logging.Level)
}

// Validate checks parameters that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Ingest.ChunkSize <= 0 {
		return domain.Errorf(domain.KindConfig, "chunk_size must be positive, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return domain.Errorf(domain.KindConfig, "chunk_overlap must be in [0, %d), got %d", c.Ingest.ChunkSize, c.Ingest.ChunkOverlap)
	}
	if c.Retrieve.TopK <= 0 {
		return domain.Errorf(domain.KindConfig, "top_k must be positive, got %d", c.Retrieve.TopK)
	}
	if c.Retrieve.MMRLambda < 0 || c.Retrieve.MMRLambda > 1 {
		return domain.Errorf(domain.KindConfig, "mmr_lambda must be in [0, 1], got %g", c.Retrieve.MMRLambda)
	}
	if c.Embedding.Dimension < 0 {
		return domain.Errorf(domain.KindConfig, "embedding dimension must not be negative, got %d", c.Embedding.Dimension)
	}
	if !domain.Metric(c.Index.Metric).Valid() {
		return domain.Errorf(domain.KindConfig, "unknown index metric %q", c.Index.Metric)
	}
	switch c.Index.Backend {
	case "bolt", "qdrant", "memory":
	default:
		return domain.Errorf(domain.KindConfig, "unknown index backend %q", c.Index.Backend)
	}
	if strings.TrimSpace(c.Index.Collection) == "" {
		return domain.Errorf(domain.KindConfig, "collection name is required")
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Timeout converts a seconds setting to a duration.
func Timeout(secs int) time.Duration {
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// IndexDBPath resolves the bolt index file against the project directory.
func IndexDBPath(dir string, cfg *Config) string {
	if filepath.IsAbs(cfg.Index.Path) {
		return cfg.Index.Path
	}
	return filepath.Join(dir, cfg.Index.Path)
}

// PDFDir resolves the PDF source directory against the project directory.
func PDFDir(dir string, cfg *Config) string {
	if filepath.IsAbs(cfg.Ingest.PDFDir) {
		return cfg.Ingest.PDFDir
	}
	return filepath.Join(dir, cfg.Ingest.PDFDir)
}

// ollamaV1 turns an Ollama base URL into its OpenAI-compatible endpoint.
func ollamaV1(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
