package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"go.uber.org/zap"

	"github.com/adeilh/omnikv/backend"
	"github.com/adeilh/omnikv/expiry"
)

// Keys calls fn for every live key under the store prefix, with the prefix
// removed. Deadlines are not refreshed. Entries that were not written by a
// Store are skipped.
func (s *Store) Keys(ctx context.Context, fn func(key string) error) error {
	return s.backend.Keys(ctx, func(full string) error {
		key, ok := strings.CutPrefix(full, s.prefix)
		if !ok {
			return nil
		}
		env, live, err := s.peek(ctx, full)
		if err != nil {
			if errors.Is(err, expiry.ErrMalformed) {
				s.logger.Debug("skipping foreign entry", zap.String("key", full))
				return nil
			}
			return err
		}
		if env == nil || !live {
			return nil
		}
		return fn(key)
	})
}

// Match calls fn with the key and decrypted value of every live entry whose
// key matches a glob pattern ("*" any run of characters, "?" one character,
// "[...]" classes, "{a,b}" alternatives). Deadlines are not refreshed.
func (s *Store) Match(ctx context.Context, pattern string, fn func(key string, value []byte) error) error {
	g, err := glob.Compile(pattern)
	if err != nil {
		return fmt.Errorf("kv: invalid pattern %q: %w", pattern, err)
	}
	return s.Keys(ctx, func(key string) error {
		if !g.Match(key) {
			return nil
		}
		full := s.fullKey(key)
		env, live, err := s.peek(ctx, full)
		if err != nil {
			return err
		}
		// gone or expired since Keys saw it
		if env == nil || !live {
			return nil
		}
		plain, err := s.open(*env, full)
		if err != nil {
			return decryptError("match", key, err)
		}
		return fn(key, plain)
	})
}

// Sweep deletes every expired entry under the store prefix and reports how
// many were removed. Lazy expiry keeps expired keys invisible without it;
// Sweep only reclaims their storage early.
func (s *Store) Sweep(ctx context.Context) (n int, err error) {
	start := time.Now()
	defer func() {
		s.observer.ObserveOperation("sweep", resultOf(err), time.Since(start))
		if n > 0 {
			s.observer.ObserveExpired(n)
		}
	}()

	var keys []string
	err = s.backend.Keys(ctx, func(full string) error {
		if strings.HasPrefix(full, s.prefix) {
			keys = append(keys, full)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, full := range keys {
		purged, err := s.sweepOne(ctx, full)
		if err != nil {
			return n, err
		}
		if purged {
			n++
		}
	}
	return n, nil
}

func (s *Store) sweepOne(ctx context.Context, full string) (bool, error) {
	unlock := s.locks.lock(full)
	defer unlock()

	blob, err := s.backend.Get(ctx, full)
	if errors.Is(err, backend.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	env, err := expiry.Unmarshal(blob)
	if err != nil {
		s.logger.Warn("sweep skipped undecodable entry", zap.String("key", full), zap.Error(err))
		return false, nil
	}
	if env.Record.Live(s.now()) {
		return false, nil
	}
	if s.swapper == nil {
		return true, s.backend.Delete(ctx, full)
	}
	return s.swapper.CompareAndSwap(ctx, full, blob, nil)
}

// peek reads and decodes an entry without side effects. A nil envelope means
// the key is absent.
func (s *Store) peek(ctx context.Context, full string) (*expiry.Envelope, bool, error) {
	blob, err := s.backend.Get(ctx, full)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	env, err := expiry.Unmarshal(blob)
	if err != nil {
		return nil, false, err
	}
	return &env, env.Record.Live(s.now()), nil
}
