package dir

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/adeilh/omnikv/backend"
	"github.com/adeilh/omnikv/backend/backendtest"
)

func TestContract(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend {
		s, err := Open(t.TempDir())
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		return s
	})
}

func TestOpenRequiresRoot(t *testing.T) {
	if _, err := Open(""); !errors.Is(err, ErrMissingRoot) {
		t.Fatalf("expected ErrMissingRoot, got %v", err)
	}
}

func TestCorruptFileIsReported(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := os.WriteFile(s.path("k"), []byte{0xff}, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := s.Get(context.Background(), "k"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestKeysIgnoresForeignFiles(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ctx := context.Background()
	if err := s.Set(ctx, "only", []byte("v")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "README"), []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	var keys []string
	if err := s.Keys(ctx, func(k string) error {
		keys = append(keys, k)
		return nil
	}); err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 1 || keys[0] != "only" {
		t.Fatalf("Keys() = %v, want [only]", keys)
	}
}
