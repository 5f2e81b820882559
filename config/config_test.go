package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pdfrag/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Ingest.ChunkSize != 1000 {
		t.Errorf("expected ChunkSize=1000, got %d", cfg.Ingest.ChunkSize)
	}
	if cfg.Ingest.ChunkOverlap != 200 {
		t.Errorf("expected ChunkOverlap=200, got %d", cfg.Ingest.ChunkOverlap)
	}
	if cfg.Retrieve.TopK != 5 {
		t.Errorf("expected TopK=5, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Index.Collection != "pdf-docs" {
		t.Errorf("expected collection pdf-docs, got %s", cfg.Index.Collection)
	}
	if cfg.Embedding.BaseURL != "http://127.0.0.1:11434/v1" {
		t.Errorf("unexpected embedding base url %s", cfg.Embedding.BaseURL)
	}
	if cfg.Ingest.Dedup {
		t.Error("expected append-only ingestion by default")
	}
	if cfg.Embedding.Dimension != 0 {
		t.Errorf("expected dimension inferred from the model by default, got %d", cfg.Embedding.Dimension)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "rag.yaml")

	content := `
ingest:
  chunk_size: 500
  chunk_overlap: 50
retrieve:
  top_k: 3
index:
  backend: qdrant
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Ingest.ChunkSize != 500 {
		t.Errorf("expected ChunkSize=500, got %d", cfg.Ingest.ChunkSize)
	}
	if cfg.Ingest.ChunkOverlap != 50 {
		t.Errorf("expected ChunkOverlap=50, got %d", cfg.Ingest.ChunkOverlap)
	}
	if cfg.Retrieve.TopK != 3 {
		t.Errorf("expected TopK=3, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Index.Backend != "qdrant" {
		t.Errorf("expected backend qdrant, got %s", cfg.Index.Backend)
	}
	// untouched sections keep defaults
	if cfg.LLM.Model != "mistral" {
		t.Errorf("expected default llm model, got %s", cfg.LLM.Model)
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "rag.yaml")

	content := `
server:
  addr: ":8080"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected Addr=:8080, got %s", cfg.Server.Addr)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OLLAMA_URL", "http://ollama:11434/")
	t.Setenv("VECTOR_COLLECTION", "manuals")
	t.Setenv("PDFS_DIR", "/data/pdfs")
	t.Setenv("INGEST_DEDUP", "true")
	t.Setenv("LLM_URL", "http://llm:8000/v1")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Embedding.BaseURL != "http://ollama:11434/v1" {
		t.Errorf("expected embedding url from OLLAMA_URL, got %s", cfg.Embedding.BaseURL)
	}
	if cfg.LLM.BaseURL != "http://llm:8000/v1" {
		t.Errorf("expected LLM_URL to win over OLLAMA_URL, got %s", cfg.LLM.BaseURL)
	}
	if cfg.Index.Collection != "manuals" {
		t.Errorf("expected collection manuals, got %s", cfg.Index.Collection)
	}
	if cfg.Ingest.PDFDir != "/data/pdfs" {
		t.Errorf("expected pdf dir override, got %s", cfg.Ingest.PDFDir)
	}
	if !cfg.Ingest.Dedup {
		t.Error("expected dedup enabled from env")
	}
}

func TestEnvURLsGetV1Suffix(t *testing.T) {
	t.Setenv("EMBEDDING_URL", "http://embed:11434")
	t.Setenv("LLM_URL", "http://llm:11434/")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Embedding.BaseURL != "http://embed:11434/v1" {
		t.Errorf("expected EMBEDDING_URL normalized, got %s", cfg.Embedding.BaseURL)
	}
	if cfg.LLM.BaseURL != "http://llm:11434/v1" {
		t.Errorf("expected LLM_URL normalized, got %s", cfg.LLM.BaseURL)
	}
}

func TestLoadReadsDotEnvNextToConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "custom.yaml")
	if err := os.WriteFile(configPath, []byte("retrieve:\n  top_k: 4\n"), 0644); err != nil {
		t.Fatal(err)
	}
	env := "LLM_MODEL=llama3\nVECTOR_COLLECTION=from-dotenv\n"
	if err := os.WriteFile(filepath.Join(tmpDir, ".env"), []byte(env), 0644); err != nil {
		t.Fatal(err)
	}
	// godotenv never overrides variables that are already set
	t.Setenv("VECTOR_COLLECTION", "from-env")
	// restored after the test, including the value .env sets
	t.Setenv("LLM_MODEL", "")
	os.Unsetenv("LLM_MODEL")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LLM.Model != "llama3" {
		t.Errorf("expected LLM model from .env, got %s", cfg.LLM.Model)
	}
	if cfg.Index.Collection != "from-env" {
		t.Errorf("expected process env to win over .env, got %s", cfg.Index.Collection)
	}
	if cfg.Retrieve.TopK != 4 {
		t.Errorf("expected TopK=4 from yaml, got %d", cfg.Retrieve.TopK)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap equals size", func(c *Config) { c.Ingest.ChunkOverlap = c.Ingest.ChunkSize }},
		{"negative overlap", func(c *Config) { c.Ingest.ChunkOverlap = -1 }},
		{"zero top k", func(c *Config) { c.Retrieve.TopK = 0 }},
		{"unknown metric", func(c *Config) { c.Index.Metric = "dot" }},
		{"unknown backend", func(c *Config) { c.Index.Backend = "chroma" }},
		{"empty collection", func(c *Config) { c.Index.Collection = " " }},
		{"mmr lambda above one", func(c *Config) { c.Retrieve.MMRLambda = 1.5 }},
		{"negative dimension", func(c *Config) { c.Embedding.Dimension = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, domain.ErrConfig) {
				t.Errorf("expected ConfigError, got %v", err)
			}
		})
	}
}

func TestIndexDBPath(t *testing.T) {
	cfg := DefaultConfig()
	path := IndexDBPath("/home/user/project", cfg)
	expected := filepath.Join("/home/user/project", "vectorstore", "index.db")
	if path != expected {
		t.Errorf("expected %s, got %s", expected, path)
	}

	cfg.Index.Path = "/var/lib/rag/index.db"
	if got := IndexDBPath("/home/user/project", cfg); got != cfg.Index.Path {
		t.Errorf("expected absolute path kept, got %s", got)
	}
}
