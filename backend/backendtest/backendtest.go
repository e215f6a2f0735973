// Package backendtest holds the behavioral contract every backend.Backend
// implementation is expected to satisfy.
package backendtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adeilh/omnikv/backend"
)

// Factory returns a backend for one subtest. Keys are namespaced by test
// name, so factories may hand out a shared server.
type Factory func(t *testing.T) backend.Backend

// Run executes the contract against backends produced by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Get(ctx(t), ns(t, "missing"))
		require.ErrorIs(t, err, backend.ErrNotFound)
	})

	t.Run("SetGetRoundTrip", func(t *testing.T) {
		b := newBackend(t)
		c := ctx(t)
		key := ns(t, "k")
		value := []byte{0x00, 0xff, 'a', '\n', 0x7f}

		require.NoError(t, b.Set(c, key, value))
		got, err := b.Get(c, key)
		require.NoError(t, err)
		assert.Equal(t, value, got)

		ok, err := b.Contains(c, key)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Overwrite", func(t *testing.T) {
		b := newBackend(t)
		c := ctx(t)
		key := ns(t, "k")

		require.NoError(t, b.Set(c, key, []byte("v1")))
		require.NoError(t, b.Set(c, key, []byte("v2")))
		got, err := b.Get(c, key)
		require.NoError(t, err)
		assert.Equal(t, "v2", string(got))
	})

	t.Run("ValueIsCopied", func(t *testing.T) {
		b := newBackend(t)
		c := ctx(t)
		key := ns(t, "k")
		value := []byte("abc")

		require.NoError(t, b.Set(c, key, value))
		value[0] = 'x'
		got, err := b.Get(c, key)
		require.NoError(t, err)
		assert.Equal(t, "abc", string(got))
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		b := newBackend(t)
		c := ctx(t)
		key := ns(t, "k")

		require.NoError(t, b.Set(c, key, []byte("v")))
		require.NoError(t, b.Delete(c, key))
		require.NoError(t, b.Delete(c, key))

		_, err := b.Get(c, key)
		require.ErrorIs(t, err, backend.ErrNotFound)
		ok, err := b.Contains(c, key)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Keys", func(t *testing.T) {
		b := newBackend(t)
		c := ctx(t)
		want := []string{ns(t, "a"), ns(t, "b"), ns(t, "c/with/slashes"), ns(t, "d with space")}
		for _, k := range want {
			require.NoError(t, b.Set(c, k, []byte(k)))
		}

		var got []string
		require.NoError(t, b.Keys(c, func(k string) error {
			if strings.HasPrefix(k, ns(t, "")) {
				got = append(got, k)
			}
			return nil
		}))
		sort.Strings(got)
		sort.Strings(want)
		assert.Equal(t, want, got)
	})

	t.Run("KeysStop", func(t *testing.T) {
		b := newBackend(t)
		c := ctx(t)
		for i := 0; i < 3; i++ {
			require.NoError(t, b.Set(c, ns(t, fmt.Sprint(i)), []byte("v")))
		}
		calls := 0
		err := b.Keys(c, func(string) error {
			calls++
			return backend.ErrStop
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("KeysCallbackError", func(t *testing.T) {
		b := newBackend(t)
		c := ctx(t)
		require.NoError(t, b.Set(c, ns(t, "k"), []byte("v")))
		boom := errors.New("boom")
		err := b.Keys(c, func(string) error { return boom })
		require.ErrorIs(t, err, boom)
	})

	t.Run("CompareAndSwap", func(t *testing.T) {
		b := newBackend(t)
		sw, ok := b.(backend.Swapper)
		if !ok {
			t.Skip("backend does not support compare-and-swap")
		}
		c := ctx(t)
		key := ns(t, "cas")

		swapped, err := sw.CompareAndSwap(c, key, nil, []byte("v1"))
		require.NoError(t, err)
		require.True(t, swapped, "insert into absent key")

		swapped, err = sw.CompareAndSwap(c, key, nil, []byte("other"))
		require.NoError(t, err)
		require.False(t, swapped, "insert over present key")

		swapped, err = sw.CompareAndSwap(c, key, []byte("stale"), []byte("v2"))
		require.NoError(t, err)
		require.False(t, swapped, "swap with stale prev")

		swapped, err = sw.CompareAndSwap(c, key, []byte("v1"), []byte("v2"))
		require.NoError(t, err)
		require.True(t, swapped)

		got, err := b.Get(c, key)
		require.NoError(t, err)
		assert.Equal(t, "v2", string(got))

		swapped, err = sw.CompareAndSwap(c, key, []byte("v2"), nil)
		require.NoError(t, err)
		require.True(t, swapped, "conditional delete")

		_, err = b.Get(c, key)
		require.ErrorIs(t, err, backend.ErrNotFound)

		swapped, err = sw.CompareAndSwap(c, key, []byte("v2"), []byte("v3"))
		require.NoError(t, err)
		assert.False(t, swapped, "swap must not resurrect a deleted key")
	})
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func ns(t *testing.T, key string) string {
	return "contract:" + t.Name() + ":" + key
}
