package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/adeilh/omnikv/backend"
	"github.com/adeilh/omnikv/backend/backendtest"
)

func openTemp(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "kv.db"), opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestContract(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend { return openTemp(t, Options{}) })
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("", Options{}); !errors.Is(err, ErrMissingPath) {
		t.Fatalf("expected ErrMissingPath, got %v", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	ctx := context.Background()

	s, err := Open(path, Options{Bucket: "custom"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = Open(path, Options{Bucket: "custom"})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("Get() = %q, want %q", got, "v")
	}
}

func TestKeysCallbackMayWrite(t *testing.T) {
	s := openTemp(t, Options{})
	ctx := context.Background()
	for _, k := range []string{"a", "b"} {
		if err := s.Set(ctx, k, []byte(k)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	err := s.Keys(ctx, func(k string) error { return s.Delete(ctx, k) })
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	for _, k := range []string{"a", "b"} {
		if ok, _ := s.Contains(ctx, k); ok {
			t.Fatalf("key %q should have been deleted", k)
		}
	}
}
