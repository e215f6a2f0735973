// Package kv is a dictionary-like facade over any backend.Backend that adds
// sliding expiration and optional transparent encryption.
//
// Every operation round-trips to the backend; the store keeps no copy of
// entries. Within one process, operations on the same key are serialized.
// Across processes, backends implementing backend.Swapper make deadline
// refreshes, purges and IfAbsent writes conditional, so a refresh never
// resurrects a key another process deleted.
package kv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/adeilh/omnikv/backend"
	"github.com/adeilh/omnikv/expiry"
	"github.com/adeilh/omnikv/seal"
)

// Store is safe for concurrent use.
type Store struct {
	backend  backend.Backend
	swapper  backend.Swapper
	policy   *expiry.Policy
	codec    seal.Codec
	prefix   string
	fallback Default
	locks    *keyLocks
	group    singleflight.Group
	now      func() time.Time
	logger   *zap.Logger
	observer Observer
}

// New builds a store over b. Invalid options fail here with ErrConfig and
// never later.
func New(b backend.Backend, opts ...Option) (*Store, error) {
	cfg := config{
		logger:   zap.NewNop(),
		observer: nopObserver{},
		now:      time.Now,
		stripes:  defaultLockStripes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if b == nil {
		cfg.fail(errors.New("backend is nil"))
	}
	if cfg.codec != nil && cfg.passphrase != nil {
		cfg.fail(errors.New("passphrase and codec are mutually exclusive"))
	}
	if cfg.err != nil {
		clear(cfg.passphrase)
		return nil, configError(cfg.err)
	}

	codec := cfg.codec
	if cfg.passphrase != nil {
		aead, err := seal.New(cfg.passphrase, cfg.keyOpts...)
		clear(cfg.passphrase)
		if err != nil {
			return nil, configError(err)
		}
		codec = aead
	}
	if codec == nil {
		codec = seal.Identity()
	}

	s := &Store{
		backend:  b,
		policy:   cfg.policy,
		codec:    codec,
		prefix:   cfg.prefix,
		fallback: cfg.fallback,
		locks:    newKeyLocks(cfg.stripes),
		now:      cfg.now,
		logger:   cfg.logger,
		observer: cfg.observer,
	}
	if sw, ok := b.(backend.Swapper); ok {
		s.swapper = sw
	}
	return s, nil
}

// TTL returns the sliding expiry window, or 0 when keys never expire.
func (s *Store) TTL() time.Duration { return s.policy.TTL() }

// Encrypted reports whether values are encrypted at rest.
func (s *Store) Encrypted() bool { return s.codec.Encrypted() }

// Backend exposes the underlying backend.
func (s *Store) Backend() backend.Backend { return s.backend }

// Close closes the backend when it holds resources.
func (s *Store) Close() error {
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Get returns the value stored under key and slides its deadline. On a miss
// it resolves the per-call Fallback, then the store default, and otherwise
// fails with a KeyError wrapping ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string, opts ...GetOption) ([]byte, error) {
	g := getConfig{fallback: s.fallback}
	for _, opt := range opts {
		if opt != nil {
			opt(&g)
		}
	}
	v, ok, err := s.lookup(ctx, "get", key)
	if err != nil || ok {
		return v, err
	}
	return g.fallback.resolve(ctx, "get", key)
}

// Item is the strict read: any miss is a KeyError, whatever defaults are
// configured.
func (s *Store) Item(ctx context.Context, key string) ([]byte, error) {
	v, ok, err := s.lookup(ctx, "get", key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("get", key)
	}
	return v, nil
}

// Lookup is the comma-ok read. It refreshes the deadline like Get.
func (s *Store) Lookup(ctx context.Context, key string) ([]byte, bool, error) {
	return s.lookup(ctx, "lookup", key)
}

func (s *Store) lookup(ctx context.Context, op, key string) (value []byte, found bool, err error) {
	start := time.Now()
	defer func() {
		result := resultOf(err)
		if err == nil {
			result = ResultMiss
			if found {
				result = ResultHit
			}
		}
		s.observer.ObserveOperation(op, result, time.Since(start))
	}()

	full := s.fullKey(key)
	unlock := s.locks.lock(full)
	defer unlock()

	blob, err := s.backend.Get(ctx, full)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	env, err := expiry.Unmarshal(blob)
	if err != nil {
		return nil, false, decryptError(op, key, err)
	}

	next, live := s.policy.OnRead(env.Record, s.now())
	if !live {
		if err := s.purge(ctx, full, blob); err != nil {
			return nil, false, err
		}
		s.observer.ObserveExpired(1)
		return nil, false, nil
	}

	plain, err := s.open(env, full)
	if err != nil {
		return nil, false, decryptError(op, key, err)
	}

	if s.policy.Enabled() && env.Record.HasDeadline() {
		if err := s.refresh(ctx, full, blob, next); err != nil {
			return nil, false, err
		}
	}
	return plain, true, nil
}

// Set stores value under key with a fresh deadline. With IfAbsent it fails
// with ErrKeyExists when the key is live; expired entries count as absent.
func (s *Store) Set(ctx context.Context, key string, value []byte, opts ...SetOption) (err error) {
	start := time.Now()
	defer func() { s.observer.ObserveOperation("set", resultOf(err), time.Since(start)) }()

	c := setConfig{overwrite: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}

	full := s.fullKey(key)
	payload, err := s.codec.Encrypt(value, []byte(full))
	if err != nil {
		return fmt.Errorf("kv: set %q: %w", key, err)
	}
	blob := expiry.Marshal(expiry.Envelope{
		Record:    s.policy.OnWrite(s.now()),
		Encrypted: s.codec.Encrypted(),
		Payload:   payload,
	})

	unlock := s.locks.lock(full)
	defer unlock()

	if c.overwrite {
		return s.backend.Set(ctx, full, blob)
	}
	return s.setIfAbsent(ctx, key, full, blob)
}

// SetItem is Set with overwrite.
func (s *Store) SetItem(ctx context.Context, key string, value []byte) error {
	return s.Set(ctx, key, value)
}

const maxSwapAttempts = 3

func (s *Store) setIfAbsent(ctx context.Context, key, full string, blob []byte) error {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		cur, err := s.backend.Get(ctx, full)
		switch {
		case errors.Is(err, backend.ErrNotFound):
			cur = nil
		case err != nil:
			return err
		default:
			live, err := s.liveBlob(cur)
			if err != nil {
				return decryptError("set", key, err)
			}
			if live {
				return exists("set", key)
			}
		}

		if s.swapper == nil {
			return s.backend.Set(ctx, full, blob)
		}
		ok, err := s.swapper.CompareAndSwap(ctx, full, cur, blob)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		// Another process changed the entry between the read and the swap.
	}
	return exists("set", key)
}

// Delete removes key and its deadline in one backend call. Absent keys are
// ignored unless MustExist is given.
func (s *Store) Delete(ctx context.Context, key string, opts ...DeleteOption) (err error) {
	start := time.Now()
	defer func() { s.observer.ObserveOperation("delete", resultOf(err), time.Since(start)) }()

	c := deleteConfig{missingOK: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}

	full := s.fullKey(key)
	unlock := s.locks.lock(full)
	defer unlock()

	if c.missingOK {
		return s.backend.Delete(ctx, full)
	}

	blob, err := s.backend.Get(ctx, full)
	if errors.Is(err, backend.ErrNotFound) {
		return notFound("delete", key)
	}
	if err != nil {
		return err
	}
	live, err := s.liveBlob(blob)
	if err != nil {
		return decryptError("delete", key, err)
	}
	if !live {
		if err := s.purge(ctx, full, blob); err != nil {
			return err
		}
		s.observer.ObserveExpired(1)
		return notFound("delete", key)
	}
	return s.backend.Delete(ctx, full)
}

// DelItem is Delete with MustExist.
func (s *Store) DelItem(ctx context.Context, key string) error {
	return s.Delete(ctx, key, MustExist())
}

// Contains reports whether key is live. It neither refreshes the deadline
// nor purges expired entries.
func (s *Store) Contains(ctx context.Context, key string) (ok bool, err error) {
	start := time.Now()
	defer func() { s.observer.ObserveOperation("contains", resultOf(err), time.Since(start)) }()

	blob, err := s.backend.Get(ctx, s.fullKey(key))
	if errors.Is(err, backend.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	live, err := s.liveBlob(blob)
	if err != nil {
		return false, decryptError("contains", key, err)
	}
	return live, nil
}

// GetOrSet returns the live value under key or, on a miss, stores and
// returns the result of fn. Concurrent callers for the same key share one
// fn invocation.
func (s *Store) GetOrSet(ctx context.Context, key string, fn func(ctx context.Context, key string) ([]byte, error)) ([]byte, error) {
	v, ok, err := s.lookup(ctx, "get", key)
	if err != nil || ok {
		return v, err
	}
	res, err, _ := s.group.Do(s.fullKey(key), func() (any, error) {
		v, ok, err := s.lookup(ctx, "get", key)
		if err != nil || ok {
			return v, err
		}
		v, err = fn(ctx, key)
		if err != nil {
			return nil, err
		}
		if err := s.Set(ctx, key, v); err != nil {
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]byte{}, res.([]byte)...), nil
}

func (s *Store) fullKey(key string) string {
	return s.prefix + key
}

// liveBlob decodes the envelope and checks liveness without refreshing.
func (s *Store) liveBlob(blob []byte) (bool, error) {
	env, err := expiry.Unmarshal(blob)
	if err != nil {
		return false, err
	}
	return env.Record.Live(s.now()), nil
}

func (s *Store) open(env expiry.Envelope, full string) ([]byte, error) {
	if env.Encrypted != s.codec.Encrypted() {
		if env.Encrypted {
			return nil, fmt.Errorf("%w: entry is encrypted but the store has no passphrase", ErrDecrypt)
		}
		return nil, fmt.Errorf("%w: entry is not encrypted", ErrDecrypt)
	}
	return s.codec.Decrypt(env.Payload, []byte(full))
}

// refresh writes blob back with next as its deadline. With a Swapper the
// write only lands if the entry is unchanged, so a concurrent delete wins.
func (s *Store) refresh(ctx context.Context, full string, blob []byte, next expiry.Record) error {
	touched, err := expiry.Touch(blob, next)
	if err != nil {
		return err
	}
	if s.swapper == nil {
		return s.backend.Set(ctx, full, touched)
	}
	ok, err := s.swapper.CompareAndSwap(ctx, full, blob, touched)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Debug("deadline refresh skipped, entry changed concurrently", zap.String("key", full))
	}
	return nil
}

// purge removes an expired entry. With a Swapper, an entry rewritten since
// it was read is left alone.
func (s *Store) purge(ctx context.Context, full string, blob []byte) error {
	s.logger.Debug("purging expired entry", zap.String("key", full))
	if s.swapper == nil {
		return s.backend.Delete(ctx, full)
	}
	_, err := s.swapper.CompareAndSwap(ctx, full, blob, nil)
	return err
}
