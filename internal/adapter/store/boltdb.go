// Package store is the embedded vector index: a single bbolt file whose
// collection is loaded into memory and searched by brute force.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"pdfrag/internal/domain"
)

var (
	bucketMeta    = []byte("meta")
	bucketEntries = []byte("entries")
	bucketIDs     = []byte("ids")

	keySchemaVersion = []byte("schema_version")
	keyDimension     = []byte("dimension")
	keyMetric        = []byte("metric")
	keyNextSeq       = []byte("next_seq")
	keyCreatedAt     = []byte("created_at")
)

// LockTimeout bounds how long Open waits for another process holding the
// index file.
var LockTimeout = 2 * time.Second

// Open loads the collection stored at path, creating the file and the
// collection when absent. An existing collection must match dimension and
// metric.
func Open(path, collection string, dimension int, metric domain.Metric) (*BoltVectorStore, error) {
	if collection == "" {
		return nil, domain.Errorf(domain.KindConfig, "collection name is required")
	}
	if dimension <= 0 {
		return nil, domain.Errorf(domain.KindConfig, "dimension must be positive, got %d", dimension)
	}
	if !metric.Valid() {
		return nil, domain.Errorf(domain.KindConfig, "unknown metric %q", metric)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, domain.E(domain.KindStorage, "create index directory", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: LockTimeout})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			err = fmt.Errorf("%s is locked by another process: %w", path, err)
		}
		return nil, domain.E(domain.KindStorage, "open index", err)
	}

	s := &BoltVectorStore{
		db:         db,
		path:       path,
		collection: []byte(collection),
		dimension:  dimension,
		metric:     metric,
		byID:       make(map[string]int),
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(s.collection)
		if err != nil {
			return err
		}
		for _, name := range [][]byte{bucketMeta, bucketEntries, bucketIDs} {
			if _, err := root.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return s.checkSchema(root.Bucket(bucketMeta))
	})
	if err != nil {
		db.Close()
		return nil, domain.E(domain.KindStorage, "initialize collection "+collection, err)
	}

	if err := s.loadEntries(); err != nil {
		db.Close()
		return nil, domain.E(domain.KindStorage, "load collection "+collection, err)
	}

	return s, nil
}

// Close releases the index file.
func (s *BoltVectorStore) Close() error {
	if err := s.db.Close(); err != nil {
		return domain.E(domain.KindStorage, "close index", err)
	}
	return nil
}

// Path returns the index file location.
func (s *BoltVectorStore) Path() string {
	return s.path
}

func (s *BoltVectorStore) bucket(tx *bbolt.Tx, name []byte) *bbolt.Bucket {
	root := tx.Bucket(s.collection)
	if root == nil {
		return nil
	}
	return root.Bucket(name)
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func decodeSeq(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid sequence value of %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}
