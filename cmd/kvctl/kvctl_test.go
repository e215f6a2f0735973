package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adeilh/omnikv/backend/remote"
	"github.com/adeilh/omnikv/httpx"
	"github.com/adeilh/omnikv/kv"
)

func boltEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OMNIKV_BACKEND", "bolt")
	t.Setenv("OMNIKV_BOLT_PATH", filepath.Join(t.TempDir(), "kvctl.db"))
	t.Setenv("OMNIKV_LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := execute(context.Background(), args, &out, &errOut)
	return out.String(), err
}

func TestCommands(t *testing.T) {
	boltEnv(t)
	t.Setenv("OMNIKV_PASSPHRASE", "correct horse")

	_, err := run(t, "set", "greeting", "hello")
	require.NoError(t, err)

	out, err := run(t, "get", "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)

	_, err = run(t, "set", "greeting", "again", "--if-absent")
	require.ErrorIs(t, err, kv.ErrKeyExists)

	out, err = run(t, "has", "greeting")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	_, err = run(t, "set", "user:1", "ada")
	require.NoError(t, err)

	out, err = run(t, "keys")
	require.NoError(t, err)
	assert.Equal(t, []string{"greeting", "user:1"}, strings.Fields(out))

	out, err = run(t, "keys", "--match", "user:*")
	require.NoError(t, err)
	assert.Equal(t, "user:1\n", out)

	_, err = run(t, "del", "greeting")
	require.NoError(t, err)

	_, err = run(t, "get", "greeting")
	require.True(t, kv.IsNotFound(err), "got %v", err)

	out, err = run(t, "get", "greeting", "--default", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback\n", out)

	_, err = run(t, "del", "greeting", "--must-exist")
	require.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestWrongPassphraseIsDecryptError(t *testing.T) {
	boltEnv(t)
	t.Setenv("OMNIKV_PASSPHRASE", "one")
	_, err := run(t, "set", "k", "v")
	require.NoError(t, err)

	t.Setenv("OMNIKV_PASSPHRASE", "two")
	_, err = run(t, "get", "k")
	require.ErrorIs(t, err, kv.ErrDecrypt)
}

func TestExpiryAndSweep(t *testing.T) {
	boltEnv(t)
	t.Setenv("OMNIKV_EXPIRE_SECONDS", "0.05")

	_, err := run(t, "set", "short", "lived")
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond)

	out, err := run(t, "has", "short")
	require.NoError(t, err)
	assert.Equal(t, "false\n", out)

	out, err = run(t, "sweep")
	require.NoError(t, err)
	assert.Equal(t, "1 expired entries removed\n", out)
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv("OMNIKV_BACKEND", "floppy")
	_, err := run(t, "has", "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OMNIKV_BACKEND")
}

func TestArgsValidated(t *testing.T) {
	boltEnv(t)
	_, err := run(t, "set", "only-key")
	assert.Error(t, err)
}

func TestServeExposesBackendAndMetrics(t *testing.T) {
	boltEnv(t)
	t.Setenv("OMNIKV_SERVER_TOKEN", "tok")
	t.Setenv("OMNIKV_EXPIRE_SECONDS", "60")

	e := &env{}
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	require.NoError(t, e.open(cmd))
	t.Cleanup(func() { _ = e.close() })

	server, err := e.newServer()
	require.NoError(t, err)
	ts := httpx.NewServerTestServer(server)
	defer ts.Close()

	ctx := context.Background()
	b, err := remote.Dial(ctx, ts.BaseURL(), httpx.WithToken("tok"))
	require.NoError(t, err)
	client, err := kv.New(b, kv.WithExpiry(time.Minute))
	require.NoError(t, err)
	require.NoError(t, client.Set(ctx, "k", []byte("v")))

	got, err := e.store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	resp, err := httpx.NewClient(httpx.WithBaseURL(ts.BaseURL())).Get(ctx, "/metrics", nil)
	require.NoError(t, err)
	assert.Contains(t, resp.String(), `omnikv_operations_total{op="get",result="hit"} 1`)

	_, err = remote.Dial(ctx, ts.BaseURL())
	assert.True(t, httpx.IsStatus(err, httpx.StatusUnauthorized), "got %v", err)
}
