package usecase

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pdfrag/internal/adapter/fs"
	"pdfrag/internal/domain"
	"pdfrag/internal/port"
)

// Progress stages reported to a ProgressFunc.
const (
	StageLoad  = "load"
	StageEmbed = "embed"
	StageStore = "store"
)

// ProgressFunc receives (stage, done, total) updates during ingestion.
type ProgressFunc func(stage string, done, total int)

// ChatSource labels text stored through the chat entry point.
const ChatSource = "chat"

// entryNamespace scopes deterministic entry ids.
var entryNamespace = uuid.MustParse("a3c6e1f2-5b7d-4e8a-9c0f-1d2e3f4a5b6c")

type IngestOptions struct {
	// Dedup gives every entry an id derived from its content so that
	// re-ingesting the same chunk replaces it instead of appending.
	Dedup bool
	// SkipUnreadable records unreadable PDFs in the result instead of
	// failing the run.
	SkipUnreadable bool
	// Workers bounds concurrent PDF loading.
	Workers int
}

// Ingestor turns PDFs and ad-hoc text into index entries.
type Ingestor struct {
	loader   port.Loader
	chunker  port.Chunker
	embedder port.Embedder
	index    port.VectorIndex
	opts     IngestOptions
	progress ProgressFunc
	now      func() time.Time
}

func NewIngestor(loader port.Loader, chunker port.Chunker, embedder port.Embedder, index port.VectorIndex, opts IngestOptions) *Ingestor {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Ingestor{
		loader:   loader,
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		opts:     opts,
		now:      time.Now,
	}
}

// OnProgress registers fn for progress updates. Updates from the load
// stage may arrive from several goroutines.
func (u *Ingestor) OnProgress(fn ProgressFunc) {
	u.progress = fn
}

func (u *Ingestor) report(stage string, done, total int) {
	if u.progress != nil {
		u.progress(stage, done, total)
	}
}

// SkippedFile is a PDF that could not be read.
type SkippedFile struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// IngestResult contains the results of an ingestion run.
type IngestResult struct {
	Files       int           `json:"files"`
	Documents   int           `json:"documents"`
	Chunks      int           `json:"chunks"`
	IDs         []string      `json:"-"`
	Skipped     []SkippedFile `json:"skipped,omitempty"`
	NoDocuments bool          `json:"no_documents"`
}

// IngestDirectory loads every PDF directly inside dir and stores its chunks
// in one upsert. An empty directory leaves the index untouched.
func (u *Ingestor) IngestDirectory(ctx context.Context, dir string) (*IngestResult, error) {
	files, err := fs.ListPDFs(dir)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{Files: len(files)}
	if len(files) == 0 {
		slog.Info("no PDF files found", "dir", dir)
		result.NoDocuments = true
		return result, nil
	}
	slog.Info("loading PDFs", "dir", dir, "files", len(files))

	perFile := make([][]domain.Document, len(files))
	loadErrs := make([]error, len(files))
	var loaded atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.opts.Workers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			docs, err := u.loader.Load(gctx, f.Path)
			if err != nil {
				if u.opts.SkipUnreadable && errors.Is(err, domain.ErrLoad) {
					loadErrs[i] = err
				} else {
					return err
				}
			}
			perFile[i] = docs
			u.report(StageLoad, int(loaded.Add(1)), len(files))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var docs []domain.Document
	for i, f := range files {
		if loadErrs[i] != nil {
			slog.Warn("skipping unreadable PDF", "path", f.Path, "error", loadErrs[i])
			result.Skipped = append(result.Skipped, SkippedFile{Path: f.Path, Error: loadErrs[i].Error()})
			continue
		}
		docs = append(docs, perFile[i]...)
	}

	result.Documents = len(docs)
	if len(docs) == 0 {
		slog.Info("no text extracted", "dir", dir, "skipped", len(result.Skipped))
		result.NoDocuments = true
		return result, nil
	}

	if err := u.ingestDocuments(ctx, docs, result); err != nil {
		return nil, err
	}
	slog.Info("ingestion complete", "files", result.Files, "pages", result.Documents, "chunks", result.Chunks, "skipped", len(result.Skipped))
	return result, nil
}

// IngestText stores one ad-hoc text under the given source label.
func (u *Ingestor) IngestText(ctx context.Context, text, source string) (*IngestResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.Errorf(domain.KindValidation, "text to store is empty")
	}
	if source == "" {
		source = ChatSource
	}

	now := u.now()
	doc := domain.Document{
		Text: text,
		Metadata: map[string]any{
			"source":    source,
			"timestamp": now.UTC().Format(time.RFC3339),
		},
		IngestedAt: now,
	}

	result := &IngestResult{Documents: 1}
	if err := u.ingestDocuments(ctx, []domain.Document{doc}, result); err != nil {
		return nil, err
	}
	slog.Info("stored text", "source", source, "chunks", result.Chunks)
	return result, nil
}

func (u *Ingestor) ingestDocuments(ctx context.Context, docs []domain.Document, result *IngestResult) error {
	chunks, err := u.chunker.Split(docs)
	if err != nil {
		return err
	}
	result.Chunks = len(chunks)
	if len(chunks) == 0 {
		result.NoDocuments = true
		return nil
	}
	slog.Debug("split documents", "documents", len(docs), "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	u.report(StageEmbed, 0, len(texts))
	vectors, err := u.embedder.Embed(ctx, texts)
	if err != nil {
		return tag(domain.KindEmbedding, "embed chunks", err)
	}
	if len(vectors) != len(chunks) {
		return domain.Errorf(domain.KindEmbedding, "expected %d embeddings, got %d", len(chunks), len(vectors))
	}
	dim := u.index.Dimension()
	for i, v := range vectors {
		if err := domain.ValidateVector(v, dim); err != nil {
			return domain.E(domain.KindEmbedding, fmt.Sprintf("chunk %d", i), err)
		}
	}
	u.report(StageEmbed, len(texts), len(texts))

	entries := make([]domain.IndexEntry, len(chunks))
	for i, c := range chunks {
		metadata := domain.SanitizeMetadata(c.Metadata)
		entries[i] = domain.IndexEntry{
			Vector:   vectors[i],
			Text:     c.Text,
			Metadata: metadata,
		}
		if u.opts.Dedup {
			entries[i].ID = EntryID(c.Text, metadata["source"], metadata["page"])
		}
	}

	u.report(StageStore, 0, len(entries))
	ids, err := u.index.Upsert(ctx, entries)
	if err != nil {
		return tag(domain.KindStorage, "upsert entries", err)
	}
	u.report(StageStore, len(entries), len(entries))
	result.IDs = ids
	return nil
}

// EntryID derives the deterministic id used in dedup mode.
func EntryID(text, source, page string) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(page))
	return uuid.NewSHA1(entryNamespace, h.Sum(nil)).String()
}

// tag gives an untagged error the kind of the stage it came from.
func tag(kind domain.Kind, op string, err error) error {
	if domain.KindOf(err) != "" {
		return err
	}
	return domain.E(kind, op, err)
}
