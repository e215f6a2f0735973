package memo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adeilh/omnikv/backend/memory"
	"github.com/adeilh/omnikv/kv"
)

func newStore(t *testing.T) *kv.Store {
	t.Helper()
	s, err := kv.New(memory.New(), kv.WithKeyPrefix("memo/"))
	require.NoError(t, err)
	return s
}

func TestKeyFromCall(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want string
	}{
		{"pkg.Fn", nil, "pkg.Fn:?:"},
		{"pkg.Fn", []any{1}, "pkg.Fn:?:1"},
		{"pkg.Fn", []any{"a", 2, true}, "pkg.Fn:?:a:::2:::true"},
		{"pkg.Fn", []any{"x:::y"}, "pkg.Fn:?:x%3A%3A%3Ay"},
		{"pkg.Fn", []any{"50%"}, "pkg.Fn:?:50%25"},
		{"pkg.Fn", []any{""}, "pkg.Fn:?:%"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KeyFromCall(tt.name, tt.args...))
	}
}

func TestKeyFromCallDistinguishesArgumentLists(t *testing.T) {
	calls := [][]any{
		{"x:::y"},
		{"x", "y"},
		{},
		{""},
		{"", ""},
		{"a:?:b"},
		{"%3A"},
		{":"},
	}
	seen := map[string]int{}
	for i, args := range calls {
		key := KeyFromCall("f", args...)
		if j, dup := seen[key]; dup {
			t.Fatalf("calls %d and %d share key %q", j, i, key)
		}
		seen[key] = i

		name, got, err := CallFromKey(key)
		require.NoError(t, err)
		assert.Equal(t, "f", name)
		want := make([]string, len(args))
		for k, a := range args {
			want[k] = fmt.Sprint(a)
		}
		if len(args) == 0 {
			want = nil
		}
		assert.Equal(t, want, got, "key %q", key)
	}
}

func TestCallFromKey(t *testing.T) {
	name, args, err := CallFromKey("pkg.Fn:?:a:::2:::true")
	require.NoError(t, err)
	assert.Equal(t, "pkg.Fn", name)
	assert.Equal(t, []string{"a", "2", "true"}, args)

	name, args, err = CallFromKey(KeyFromCall("pkg.Zero"))
	require.NoError(t, err)
	assert.Equal(t, "pkg.Zero", name)
	assert.Empty(t, args)

	for _, bad := range []string{"", "no-separator", ":?:a"} {
		_, _, err := CallFromKey(bad)
		assert.ErrorIs(t, err, ErrMalformedKey, bad)
	}
}

func TestWrapCachesResults(t *testing.T) {
	store := newStore(t)
	var calls atomic.Int32
	square := New[int](store).Wrap("square", func(_ context.Context, args ...any) (int, error) {
		calls.Add(1)
		n := args[0].(int)
		return n * n, nil
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := square(ctx, 4)
		require.NoError(t, err)
		assert.Equal(t, 16, v)
	}
	assert.EqualValues(t, 1, calls.Load())

	v, err := square(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 25, v)
	assert.EqualValues(t, 2, calls.Load())

	raw, err := store.Get(ctx, "square:?:4")
	require.NoError(t, err)
	assert.Equal(t, "16", string(raw))
}

func TestBypassSkipsLookupButStores(t *testing.T) {
	store := newStore(t)
	var calls atomic.Int32
	next := New[int](store).Wrap("counter", func(context.Context, ...any) (int, error) {
		return int(calls.Add(1)), nil
	})
	ctx := context.Background()

	v, err := next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = next(Bypass(ctx))
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	v, err = next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v, "bypassed call must refresh the cached value")
}

func TestValidatorRejectsResults(t *testing.T) {
	store := newStore(t)
	var calls atomic.Int32
	c := New[string](store, WithValidator(func(s string) bool { return s != "" }))
	lookup := c.Wrap("lookup", func(_ context.Context, args ...any) (string, error) {
		calls.Add(1)
		if args[0] == "missing" {
			return "", nil
		}
		return "found", nil
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := lookup(ctx, "missing")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2, calls.Load(), "rejected results are recomputed")

	ok, err := store.Contains(ctx, KeyFromCall("lookup", "missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestErrorsAreNotCached(t *testing.T) {
	store := newStore(t)
	boom := errors.New("upstream down")
	var calls atomic.Int32
	fn := New[int](store).Wrap("flaky", func(context.Context, ...any) (int, error) {
		if calls.Add(1) == 1 {
			return 0, boom
		}
		return 7, nil
	})
	ctx := context.Background()

	_, err := fn(ctx)
	require.ErrorIs(t, err, boom)

	v, err := fn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestForgetAndUndecodable(t *testing.T) {
	store := newStore(t)
	c := New[int](store)
	var calls atomic.Int32
	fn := c.Wrap("f", func(context.Context, ...any) (int, error) {
		return int(calls.Add(1)), nil
	})
	ctx := context.Background()

	_, err := fn(ctx, "x")
	require.NoError(t, err)
	require.NoError(t, c.Forget(ctx, "f", "x"))
	v, err := fn(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	require.NoError(t, store.Set(ctx, KeyFromCall("f", "x"), []byte("not a number")))
	v, err = fn(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}
