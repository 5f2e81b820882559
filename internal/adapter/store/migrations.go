package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"pdfrag/internal/domain"
)

// CurrentSchemaVersion is the collection layout version written by this
// build.
// Version history:
//   - v1: meta/entries/ids buckets, JSON entry records keyed by sequence
const CurrentSchemaVersion = 1

// SchemaInfo describes a collection as recorded in its meta bucket.
type SchemaInfo struct {
	Version   int
	Dimension int
	Metric    domain.Metric
	NextSeq   uint64
	CreatedAt time.Time
}

// checkSchema initializes the meta bucket of a fresh collection, upgrades an
// older one, and refuses one whose shape differs from the requested index.
func (s *BoltVectorStore) checkSchema(meta *bbolt.Bucket) error {
	info, err := readSchemaInfo(meta)
	if err != nil {
		return err
	}

	if info.Version == 0 {
		return writeSchemaInfo(meta, &SchemaInfo{
			Version:   CurrentSchemaVersion,
			Dimension: s.dimension,
			Metric:    s.metric,
			CreatedAt: time.Now().UTC(),
		})
	}

	if info.Version > CurrentSchemaVersion {
		return fmt.Errorf("collection created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
	}
	if info.Dimension != s.dimension {
		return fmt.Errorf("dimension mismatch: collection has %d, requested %d", info.Dimension, s.dimension)
	}
	if info.Metric != s.metric {
		return fmt.Errorf("metric mismatch: collection uses %s, requested %s", info.Metric, s.metric)
	}

	for v := info.Version; v < CurrentSchemaVersion; v++ {
		if err := runMigration(meta, v, v+1); err != nil {
			return fmt.Errorf("migration from v%d to v%d failed: %w", v, v+1, err)
		}
	}
	return meta.Put(keySchemaVersion, []byte(strconv.Itoa(CurrentSchemaVersion)))
}

func runMigration(meta *bbolt.Bucket, from, to int) error {
	// v1 is the first layout; later versions add their steps here.
	return nil
}

func readSchemaInfo(meta *bbolt.Bucket) (*SchemaInfo, error) {
	info := &SchemaInfo{}

	version := meta.Get(keySchemaVersion)
	if version == nil {
		return info, nil
	}

	var err error
	if info.Version, err = strconv.Atoi(string(version)); err != nil {
		return nil, fmt.Errorf("corrupt schema version: %w", err)
	}
	if info.Dimension, err = strconv.Atoi(string(meta.Get(keyDimension))); err != nil {
		return nil, fmt.Errorf("corrupt dimension: %w", err)
	}
	info.Metric = domain.Metric(meta.Get(keyMetric))
	if !info.Metric.Valid() {
		return nil, fmt.Errorf("corrupt metric %q", info.Metric)
	}
	if next := meta.Get(keyNextSeq); next != nil {
		if info.NextSeq, err = decodeSeq(next); err != nil {
			return nil, fmt.Errorf("corrupt sequence: %w", err)
		}
	}
	if created := meta.Get(keyCreatedAt); created != nil {
		info.CreatedAt, _ = time.Parse(time.RFC3339, string(created))
	}
	return info, nil
}

func writeSchemaInfo(meta *bbolt.Bucket, info *SchemaInfo) error {
	pairs := [][2][]byte{
		{keySchemaVersion, []byte(strconv.Itoa(info.Version))},
		{keyDimension, []byte(strconv.Itoa(info.Dimension))},
		{keyMetric, []byte(info.Metric)},
		{keyNextSeq, seqKey(info.NextSeq)},
		{keyCreatedAt, []byte(info.CreatedAt.Format(time.RFC3339))},
	}
	for _, kv := range pairs {
		if err := meta.Put(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

// Info returns the collection's recorded schema.
func (s *BoltVectorStore) Info() (*SchemaInfo, error) {
	var info *SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		meta := s.bucket(tx, bucketMeta)
		if meta == nil {
			return fmt.Errorf("collection %s not found", s.collection)
		}
		var err error
		info, err = readSchemaInfo(meta)
		return err
	})
	if err != nil {
		return nil, domain.E(domain.KindStorage, "read schema", err)
	}
	return info, nil
}

// Clear removes every entry of the collection, keeping its schema.
func (s *BoltVectorStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(s.collection)
		for _, name := range [][]byte{bucketEntries, bucketIDs} {
			if err := root.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := root.CreateBucket(name); err != nil {
				return err
			}
		}
		return root.Bucket(bucketMeta).Put(keyNextSeq, seqKey(0))
	})
	if err != nil {
		return domain.E(domain.KindStorage, "clear collection", err)
	}

	s.entries = nil
	s.byID = make(map[string]int)
	s.nextSeq = 0
	return nil
}
