package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// All story data lives in one bucket; the key namespace does the rest.
var storiesBucket = []byte("stories")

// BoltKV stores values in a single bucket of a bbolt database file. The
// handle stays open for the life of the session.
type BoltKV struct {
	db *bolt.DB
}

// OpenBolt opens the database at path, creating the file and its parent
// directory as needed.
func OpenBolt(path string) (*BoltKV, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(storiesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare store bucket: %w", err)
	}

	return &BoltKV{db: db}, nil
}

// Get returns the value stored under key.
func (b *BoltKV) Get(key string) ([]byte, bool, error) {
	var out []byte
	var found bool

	err := b.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(storiesBucket).Get([]byte(key))
		if value == nil {
			return nil
		}
		found = true
		// The slice is only valid inside the transaction.
		out = make([]byte, len(value))
		copy(out, value)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return out, found, nil
}

// Set stores value under key.
func (b *BoltKV) Set(key string, value []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(storiesBucket).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying database file.
func (b *BoltKV) Close() error {
	return b.db.Close()
}
