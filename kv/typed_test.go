package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adeilh/omnikv/backend/memory"
)

type profile struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

func TestTypedJSON(t *testing.T) {
	s := newStore(t, memory.New(), passphrase("secret"))
	profiles := NewTyped[profile](s, nil)
	ctx := context.Background()

	want := profile{Name: "ada", Roles: []string{"admin"}}
	require.NoError(t, profiles.Set(ctx, "u1", want))

	got, err := profiles.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	fallback := profile{Name: "guest"}
	got, err = profiles.GetOr(ctx, "u2", fallback)
	require.NoError(t, err)
	assert.Equal(t, fallback, got)

	_, err = profiles.Get(ctx, "u2")
	assert.True(t, IsNotFound(err))

	ok, err := profiles.Contains(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, profiles.Delete(ctx, "u1", MustExist()))
	ok, err = profiles.Contains(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Same(t, s, profiles.Store())
}

func TestTypedDecodeError(t *testing.T) {
	s := newStore(t, memory.New())
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "n", []byte("not json")))

	_, err := NewTyped[int](s, JSON[int]()).Get(ctx, "n")
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
}

func TestTypedString(t *testing.T) {
	s := newStore(t, memory.New())
	names := NewTyped(s, String())
	ctx := context.Background()

	require.NoError(t, names.Set(ctx, "k", "value"))
	raw, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "value", string(raw))

	v, err := names.GetOrSet(ctx, "other", func(context.Context, string) (string, error) {
		return "made", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "made", v)

	err = names.Set(ctx, "k", "again", IfAbsent())
	assert.ErrorIs(t, err, ErrKeyExists)
}
