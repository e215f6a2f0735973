package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adeilh/omnikv/backend"
	"github.com/adeilh/omnikv/expiry"
	"github.com/adeilh/omnikv/kv"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "bolt", cfg.Backend)
	assert.Equal(t, "omnikv.db", cfg.BoltPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "@every 1m", cfg.SweepSchedule)
	assert.Zero(t, cfg.Expire)
	assert.Empty(t, cfg.StoreOptions())
}

func TestParseNormalizesExpiry(t *testing.T) {
	t.Setenv("OMNIKV_BACKEND", "memory")
	t.Setenv("OMNIKV_EXPIRE_SECONDS", "1.5")
	t.Setenv("OMNIKV_PASSPHRASE", "pw")
	t.Setenv("OMNIKV_PREFIX", "app:")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, cfg.Expire)
	assert.Len(t, cfg.StoreOptions(), 3)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown backend", map[string]string{"OMNIKV_BACKEND": "etcd"}, "OMNIKV_BACKEND"},
		{"negative expiry", map[string]string{"OMNIKV_EXPIRE_SECONDS": "-1"}, "OMNIKV_EXPIRE_SECONDS"},
		{"dir without path", map[string]string{"OMNIKV_BACKEND": "dir"}, "OMNIKV_DIR"},
		{"postgres without dsn", map[string]string{"OMNIKV_BACKEND": "postgres"}, "OMNIKV_POSTGRES_DSN"},
		{"remote without url", map[string]string{"OMNIKV_BACKEND": "remote"}, "OMNIKV_REMOTE_URL"},
		{"remote bad url", map[string]string{"OMNIKV_BACKEND": "remote", "OMNIKV_REMOTE_URL": "not a url"}, "OMNIKV_REMOTE_URL"},
		{"bad level", map[string]string{"OMNIKV_LOG_LEVEL": "loud"}, "OMNIKV_LOG_LEVEL"},
		{"bad number", map[string]string{"OMNIKV_REDIS_DB": "x"}, "RedisDB"},
		{"sub-nanosecond expiry", map[string]string{"OMNIKV_EXPIRE_SECONDS": "0.0000000001"}, "OMNIKV_EXPIRE_SECONDS"},
		{"overflowing expiry", map[string]string{"OMNIKV_EXPIRE_SECONDS": "1e11"}, "OMNIKV_EXPIRE_SECONDS"},
		{"infinite expiry", map[string]string{"OMNIKV_EXPIRE_SECONDS": "Inf"}, "OMNIKV_EXPIRE_SECONDS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Parse()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseRejectsUnrepresentableExpiry(t *testing.T) {
	t.Setenv("OMNIKV_EXPIRE_SECONDS", "1e-10")

	cfg, err := Parse()
	require.ErrorIs(t, err, expiry.ErrTTLRange)
	assert.Nil(t, cfg)
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")
	t.Setenv("OMNIKV_BOLT_PATH", path)
	t.Setenv("OMNIKV_EXPIRE_SECONDS", "60")

	cfg, err := Parse()
	require.NoError(t, err)
	b, closer, err := cfg.OpenBackend(ctx)
	require.NoError(t, err)
	defer closer.Close()
	_, ok := b.(backend.Swapper)
	assert.True(t, ok)

	s, err := kv.New(b, cfg.StoreOptions()...)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	assert.Equal(t, time.Minute, s.TTL())
}

func TestOpenBackendDirAndMemory(t *testing.T) {
	ctx := context.Background()
	for _, cfg := range []*Config{
		{Backend: "memory"},
		{Backend: "dir", Dir: t.TempDir()},
	} {
		b, closer, err := cfg.OpenBackend(ctx)
		require.NoError(t, err, cfg.Backend)
		require.NoError(t, b.Set(ctx, "k", []byte("v")))
		require.NoError(t, closer.Close())
	}

	_, _, err := (&Config{Backend: "carrier-pigeon"}).OpenBackend(ctx)
	assert.Error(t, err)
}
