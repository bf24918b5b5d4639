// Package storage persists hosts and container metadata in a bbolt file.
//
// Hosts live in the "hosts" bucket keyed by id. Container metadata lives in
// the "containers" bucket keyed by "<host_id>/<container_id>", so a host's
// records form one contiguous key range. Every write is a single bbolt
// read-write transaction, which serializes writers and makes each upsert
// atomic.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"evalgo.org/dockyard/internal/config"
)

var (
	// ErrNotFound is returned when a host or container record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write would break a uniqueness rule.
	ErrConflict = errors.New("conflict")
)

var (
	bucketHosts      = []byte("hosts")
	bucketContainers = []byte("containers")
)

// Storage is the bbolt-backed store. It is safe for concurrent use.
type Storage struct {
	db  *bolt.DB
	now func() time.Time
}

// New opens (creating if needed) the database at cfg.Path.
func New(cfg config.StorageConfig) (*Storage, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketHosts, bucketContainers} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Storage{db: db, now: time.Now}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

func put(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}
