package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/adeilh/omnikv/backend"
)

// Store implements backend.Backend on a Redis server through go-redis.
// Entries are stored as plain string values without a Redis TTL; expiry is
// tracked inside the value by the caller.
type Store struct {
	client    goredis.UniversalClient
	scanCount int64
	owned     bool
}

var (
	_ backend.Backend = (*Store)(nil)
	_ backend.Swapper = (*Store)(nil)
)

// casScript performs a conditional write. ARGV[3] is "1" when the key must be
// absent and ARGV[4] is "1" when the swap deletes the key.
var casScript = goredis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if ARGV[3] == '1' then
  if cur then return 0 end
else
  if not cur or cur ~= ARGV[1] then return 0 end
end
if ARGV[4] == '1' then
  redis.call('DEL', KEYS[1])
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// NewStore builds a Redis-backed store with its own connection pool.
func NewStore(opts Options) *Store {
	cfg := opts.withDefaults()
	client := goredis.NewClient(cfg.client())
	return &Store{client: client, scanCount: cfg.ScanCount, owned: true}
}

// NewFromClient wraps an existing client. Close leaves the client open.
func NewFromClient(client goredis.UniversalClient) *Store {
	return &Store{client: client, scanCount: defaultOptions.ScanCount}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get: %w", err)
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis: set: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: del: %w", err)
	}
	return nil
}

func (s *Store) Contains(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis: exists: %w", err)
	}
	return n > 0, nil
}

// Keys walks the keyspace with SCAN. Keys written during the walk may or may
// not be reported.
func (s *Store) Keys(ctx context.Context, fn func(key string) error) error {
	iter := s.client.Scan(ctx, 0, "*", s.scanCount).Iterator()
	seen := make(map[string]struct{})
	for iter.Next(ctx) {
		k := iter.Val()
		// SCAN may return a key more than once.
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if err := fn(k); err != nil {
			return backend.StopIteration(err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis: scan: %w", err)
	}
	return nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	res, err := casScript.Run(ctx, s.client, []string{key},
		prev, next, flag(prev == nil), flag(next == nil)).Int()
	if err != nil {
		return false, fmt.Errorf("redis: compare-and-swap: %w", err)
	}
	return res == 1, nil
}

// Close releases the connection pool when the store created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
