package kv

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adeilh/omnikv/backend"
	"github.com/adeilh/omnikv/backend/memory"
)

func collectKeys(t *testing.T, s *Store) []string {
	t.Helper()
	var keys []string
	require.NoError(t, s.Keys(context.Background(), func(k string) error {
		keys = append(keys, k)
		return nil
	}))
	sort.Strings(keys)
	return keys
}

func TestKeysHonorsPrefixAndExpiry(t *testing.T) {
	clock := newClock()
	mem := memory.New()
	ctx := context.Background()
	s := newStore(t, mem, WithKeyPrefix("app:"), WithExpiry(10*time.Second), WithClock(clock.Now))
	other := newStore(t, mem, WithKeyPrefix("other:"))

	require.NoError(t, s.Set(ctx, "a", []byte("1")))
	require.NoError(t, s.Set(ctx, "b", []byte("2")))
	require.NoError(t, other.Set(ctx, "c", []byte("3")))
	require.NoError(t, mem.Set(ctx, "app:foreign", []byte("not an envelope")))

	raw, err := mem.Get(ctx, "app:a")
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	assert.Equal(t, []string{"a", "b"}, collectKeys(t, s))

	clock.Advance(5 * time.Second)
	_, err = s.Get(ctx, "a")
	require.NoError(t, err)
	clock.Advance(6 * time.Second)

	assert.Equal(t, []string{"a"}, collectKeys(t, s))
	assert.Equal(t, []string{"c"}, collectKeys(t, other))
}

func TestKeysStopsEarly(t *testing.T) {
	s := newStore(t, memory.New())
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Set(ctx, k, []byte(k)))
	}

	var seen int
	err := s.Keys(ctx, func(string) error {
		seen++
		return backend.ErrStop
	})
	require.NoError(t, backend.StopIteration(err))
	assert.Equal(t, 1, seen)

	boom := errors.New("callback failed")
	err = s.Keys(ctx, func(string) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestMatch(t *testing.T) {
	s := newStore(t, memory.New(), passphrase("secret"), WithKeyPrefix("p/"))
	ctx := context.Background()
	for k, v := range map[string]string{
		"user:1":    "ada",
		"user:2":    "grace",
		"session:1": "token",
	} {
		require.NoError(t, s.Set(ctx, k, []byte(v)))
	}

	got := map[string]string{}
	require.NoError(t, s.Match(ctx, "user:*", func(k string, v []byte) error {
		got[k] = string(v)
		return nil
	}))
	assert.Equal(t, map[string]string{"user:1": "ada", "user:2": "grace"}, got)

	got = map[string]string{}
	require.NoError(t, s.Match(ctx, "{session,user}:1", func(k string, v []byte) error {
		got[k] = string(v)
		return nil
	}))
	assert.Len(t, got, 2)

	err := s.Match(ctx, "[", func(string, []byte) error { return nil })
	assert.Error(t, err)
}

func TestSweep(t *testing.T) {
	backends(t, func(t *testing.T, mem *memory.Store, b backend.Backend) {
		clock := newClock()
		obs := &recordingObserver{}
		ctx := context.Background()
		short := newStore(t, b, WithExpiry(time.Second), WithClock(clock.Now), WithObserver(obs))
		forever := newStore(t, b, WithClock(clock.Now))

		require.NoError(t, short.Set(ctx, "a", []byte("1")))
		require.NoError(t, short.Set(ctx, "b", []byte("2")))
		require.NoError(t, forever.Set(ctx, "keep", []byte("3")))
		require.NoError(t, mem.Set(ctx, "junk", []byte("x")))

		n, err := short.Sweep(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		clock.Advance(2 * time.Second)
		n, err = short.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, 2, mem.Len(), "live and undecodable entries stay")
		assert.Equal(t, 2, obs.expired)

		ok, err := forever.Contains(ctx, "keep")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
