package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/adeilh/omnikv/backend"
)

// Store is an in-process backend. It is safe for concurrent use and copies
// values on the way in and out, so callers can reuse their buffers.
type Store struct {
	mu    sync.RWMutex
	items map[string][]byte
}

var (
	_ backend.Backend = (*Store)(nil)
	_ backend.Swapper = (*Store)(nil)
)

func New() *Store {
	return &Store{items: make(map[string][]byte)}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := backend.CtxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	if !ok {
		return nil, backend.ErrNotFound
	}
	return append([]byte{}, v...), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := backend.CtxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.items[key] = append([]byte{}, value...)
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := backend.CtxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) Contains(ctx context.Context, key string) (bool, error) {
	if err := backend.CtxErr(ctx); err != nil {
		return false, err
	}
	s.mu.RLock()
	_, ok := s.items[key]
	s.mu.RUnlock()
	return ok, nil
}

// Keys iterates over a sorted snapshot, so fn may call back into the store.
func (s *Store) Keys(ctx context.Context, fn func(key string) error) error {
	s.mu.RLock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)

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
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.items[key]
	switch {
	case prev == nil && ok:
		return false, nil
	case prev != nil && (!ok || !bytes.Equal(cur, prev)):
		return false, nil
	}
	if next == nil {
		delete(s.items, key)
	} else {
		s.items[key] = append([]byte{}, next...)
	}
	return true, nil
}

// Len reports the number of stored entries, live or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
