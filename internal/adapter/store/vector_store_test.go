package store

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"pdfrag/internal/domain"
)

func openTemp(t *testing.T, dim int, metric domain.Metric) (*BoltVectorStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vectorstore", "index.db")
	s, err := Open(path, "pdf-docs", dim, metric)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s, path
}

func entry(text string, v ...float32) domain.IndexEntry {
	return domain.IndexEntry{Vector: v, Text: text, Metadata: map[string]string{"source": text + ".pdf"}}
}

func TestEmptyIndexQuery(t *testing.T) {
	s, _ := openTemp(t, 3, domain.MetricCosine)
	defer s.Close()

	results, err := s.Query(context.Background(), []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Query on empty index failed: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("expected empty non-nil result, got %v", results)
	}

	n, _ := s.Count(context.Background())
	if n != 0 {
		t.Errorf("expected 0 entries, got %d", n)
	}
}

func TestUpsertAndQuery(t *testing.T) {
	s, _ := openTemp(t, 3, domain.MetricCosine)
	defer s.Close()
	ctx := context.Background()

	ids, err := s.Upsert(ctx, []domain.IndexEntry{
		entry("x", 1, 0, 0),
		entry("y", 0, 1, 0),
		entry("xy", 1, 1, 0),
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(ids))
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("expected uuid id, got %q", id)
		}
	}

	results, err := s.Query(ctx, []float32{1, 0.1, 0}, 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Entry.Text != "x" || results[1].Entry.Text != "xy" {
		t.Errorf("expected [x xy], got [%s %s]", results[0].Entry.Text, results[1].Entry.Text)
	}
	if results[0].Entry.ID != ids[0] {
		t.Errorf("expected id %s, got %s", ids[0], results[0].Entry.ID)
	}
	if results[0].Score < results[1].Score {
		t.Errorf("results not sorted by score: %f < %f", results[0].Score, results[1].Score)
	}
	if results[0].Entry.Metadata["source"] != "x.pdf" {
		t.Errorf("expected metadata to round-trip, got %v", results[0].Entry.Metadata)
	}

	all, _ := s.Query(ctx, []float32{1, 0, 0}, 10)
	if len(all) != 3 {
		t.Errorf("expected k capped at 3, got %d", len(all))
	}
}

func TestQueryTiesKeepInsertionOrder(t *testing.T) {
	s, _ := openTemp(t, 2, domain.MetricCosine)
	defer s.Close()
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		if _, err := s.Upsert(ctx, []domain.IndexEntry{entry(name, 1, 1)}); err != nil {
			t.Fatal(err)
		}
	}

	results, _ := s.Query(ctx, []float32{2, 2}, 3)
	for i, want := range []string{"first", "second", "third"} {
		if results[i].Entry.Text != want {
			t.Errorf("position %d: expected %s, got %s", i, want, results[i].Entry.Text)
		}
	}
}

func TestQueryValidation(t *testing.T) {
	s, _ := openTemp(t, 2, domain.MetricCosine)
	defer s.Close()
	ctx := context.Background()

	if _, err := s.Query(ctx, []float32{1, 0}, 0); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ValidationError for k=0, got %v", err)
	}
	if _, err := s.Query(ctx, []float32{1, 0, 0}, 1); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ValidationError for wrong dimension, got %v", err)
	}
	if _, err := s.Upsert(ctx, []domain.IndexEntry{entry("nan", float32(math.NaN()), 0)}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ValidationError for NaN vector, got %v", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("rejected upsert must not store anything, got %d entries", n)
	}
}

func TestUpsertExistingIDReplaces(t *testing.T) {
	s, _ := openTemp(t, 2, domain.MetricCosine)
	defer s.Close()
	ctx := context.Background()

	a := entry("a", 1, 0)
	a.ID = "fixed-a"
	b := entry("b", 0, 1)
	if _, err := s.Upsert(ctx, []domain.IndexEntry{a, b}); err != nil {
		t.Fatal(err)
	}

	a.Text = "a2"
	ids, err := s.Upsert(ctx, []domain.IndexEntry{a})
	if err != nil {
		t.Fatal(err)
	}
	if ids[0] != "fixed-a" {
		t.Errorf("expected caller id to be kept, got %s", ids[0])
	}

	n, _ := s.Count(ctx)
	if n != 2 {
		t.Errorf("expected 2 entries after replace, got %d", n)
	}

	results, _ := s.Query(ctx, []float32{1, 1}, 2)
	if results[0].Entry.Text != "a2" {
		t.Errorf("replaced entry should keep its insertion position and new text, got %s", results[0].Entry.Text)
	}
}

func TestReopenPersists(t *testing.T) {
	s, path := openTemp(t, 2, domain.MetricCosine)
	ctx := context.Background()

	first, err := s.Upsert(ctx, []domain.IndexEntry{entry("a", 1, 0), entry("b", 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path, "pdf-docs", 2, domain.MetricCosine)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	if n, _ := s.Count(ctx); n != 2 {
		t.Fatalf("expected 2 entries after reopen, got %d", n)
	}
	if _, err := s.Upsert(ctx, []domain.IndexEntry{entry("c", 1, 1)}); err != nil {
		t.Fatal(err)
	}

	results, _ := s.Query(ctx, []float32{1, 0}, 1)
	if results[0].Entry.ID != first[0] {
		t.Errorf("expected %s after reopen, got %s", first[0], results[0].Entry.ID)
	}

	info, err := s.Info()
	if err != nil {
		t.Fatal(err)
	}
	if info.Version != CurrentSchemaVersion || info.Dimension != 2 || info.NextSeq != 3 {
		t.Errorf("unexpected schema info %+v", info)
	}
}

func TestCollectionsAreIsolated(t *testing.T) {
	s, path := openTemp(t, 2, domain.MetricCosine)
	s.Upsert(context.Background(), []domain.IndexEntry{entry("a", 1, 0)})
	s.Close()

	other, err := Open(path, "notes", 4, domain.MetricL2)
	if err != nil {
		t.Fatalf("opening a second collection failed: %v", err)
	}
	defer other.Close()
	if n, _ := other.Count(context.Background()); n != 0 {
		t.Errorf("expected empty collection, got %d", n)
	}
}

func TestOpenMismatch(t *testing.T) {
	s, path := openTemp(t, 2, domain.MetricCosine)
	s.Close()

	if _, err := Open(path, "pdf-docs", 3, domain.MetricCosine); !errors.Is(err, domain.ErrStorage) {
		t.Errorf("expected StorageError for dimension mismatch, got %v", err)
	}
	if _, err := Open(path, "pdf-docs", 2, domain.MetricL2); !errors.Is(err, domain.ErrStorage) {
		t.Errorf("expected StorageError for metric mismatch, got %v", err)
	}
}

func TestOpenCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	if err := os.WriteFile(path, []byte("this is not a bolt database"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path, "pdf-docs", 2, domain.MetricCosine); !errors.Is(err, domain.ErrStorage) {
		t.Errorf("expected StorageError, got %v", err)
	}
}

func TestOpenCorruptEntry(t *testing.T) {
	s, path := openTemp(t, 2, domain.MetricCosine)
	s.Close()

	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		t.Fatal(err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte("pdf-docs")).Bucket(bucketEntries).Put(seqKey(0), []byte("{broken"))
	})
	db.Close()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path, "pdf-docs", 2, domain.MetricCosine); !errors.Is(err, domain.ErrStorage) {
		t.Errorf("expected StorageError, got %v", err)
	}
}

func TestOpenLockedFile(t *testing.T) {
	old := LockTimeout
	LockTimeout = 100 * time.Millisecond
	defer func() { LockTimeout = old }()

	s, path := openTemp(t, 2, domain.MetricCosine)
	defer s.Close()

	if _, err := Open(path, "pdf-docs", 2, domain.MetricCosine); !errors.Is(err, domain.ErrStorage) {
		t.Errorf("expected StorageError while locked, got %v", err)
	}
}

func TestClear(t *testing.T) {
	s, _ := openTemp(t, 2, domain.MetricCosine)
	defer s.Close()
	ctx := context.Background()

	s.Upsert(ctx, []domain.IndexEntry{entry("a", 1, 0)})
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("expected 0 entries after clear, got %d", n)
	}
	if _, err := s.Upsert(ctx, []domain.IndexEntry{entry("b", 0, 1)}); err != nil {
		t.Errorf("upsert after clear failed: %v", err)
	}
}

func TestQueryResultsAreCopies(t *testing.T) {
	s, _ := openTemp(t, 2, domain.MetricCosine)
	defer s.Close()
	ctx := context.Background()

	input := entry("a", 1, 0)
	if _, err := s.Upsert(ctx, []domain.IndexEntry{input}); err != nil {
		t.Fatal(err)
	}
	input.Metadata["source"] = "changed-before-query.pdf"

	results, err := s.Query(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	results[0].Entry.Metadata["source"] = "mutated.pdf"
	results[0].Entry.Vector[0] = 42

	again, err := s.Query(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got := again[0].Entry.Metadata["source"]; got != "a.pdf" {
		t.Errorf("expected stored metadata untouched, got source=%q", got)
	}
	if got := again[0].Entry.Vector[0]; got != 1 {
		t.Errorf("expected stored vector untouched, got %v", got)
	}
}
