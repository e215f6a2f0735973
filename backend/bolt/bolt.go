package bolt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/adeilh/omnikv/backend"
)

const defaultBucket = "omnikv"

var ErrMissingPath = errors.New("bolt: path is required")

// Options configures the on-disk store.
type Options struct {
	// Bucket is the name of the Bolt bucket holding entries.
	Bucket string
	// Timeout bounds how long Open waits for the file lock.
	Timeout time.Duration
	// ReadOnly opens the file without taking a write lock.
	ReadOnly bool
}

func (o Options) withDefaults() Options {
	if o.Bucket == "" {
		o.Bucket = defaultBucket
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Second
	}
	return o
}

// Store persists entries in a single bbolt file.
type Store struct {
	db     *bolt.DB
	bucket []byte
}

var (
	_ backend.Backend = (*Store)(nil)
	_ backend.Swapper = (*Store)(nil)
)

// Open initializes or opens a Store at path.
func Open(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, ErrMissingPath
	}
	cfg := opts.withDefaults()

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: cfg.Timeout, ReadOnly: cfg.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}
	bucket := []byte(cfg.Bucket)
	if !cfg.ReadOnly {
		if err := db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucket)
			return err
		}); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bolt: create bucket: %w", err)
		}
	}
	return &Store{db: db, bucket: bucket}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := backend.CtxErr(ctx); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return backend.ErrNotFound
		}
		v := b.Get([]byte(key))
		if v == nil {
			return backend.ErrNotFound
		}
		// v is only valid inside the transaction.
		out = append([]byte{}, v...)
		return nil
	})
	return out, err
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := backend.CtxErr(ctx); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), append([]byte{}, value...))
	})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := backend.CtxErr(ctx); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}

func (s *Store) Contains(ctx context.Context, key string) (bool, error) {
	if err := backend.CtxErr(ctx); err != nil {
		return false, err
	}
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(s.bucket); b != nil {
			ok = b.Get([]byte(key)) != nil
		}
		return nil
	})
	return ok, err
}

// Keys collects the key set in one read transaction and invokes fn after it
// closes, so fn may write to the store.
func (s *Store) Keys(ctx context.Context, fn func(key string) error) error {
	if err := backend.CtxErr(ctx); err != nil {
		return err
	}
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := backend.CtxErr(ctx); err != nil {
			return err
		}
		if err := fn(k); err != nil {
			return backend.StopIteration(err)
		}
	}
	return nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	if err := backend.CtxErr(ctx); err != nil {
		return false, err
	}
	var swapped bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		cur := b.Get([]byte(key))
		if prev == nil {
			if cur != nil {
				return nil
			}
		} else if cur == nil || !bytes.Equal(cur, prev) {
			return nil
		}
		swapped = true
		if next == nil {
			return b.Delete([]byte(key))
		}
		return b.Put([]byte(key), append([]byte{}, next...))
	})
	if err != nil {
		return false, err
	}
	return swapped, nil
}
