package dir

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/adeilh/omnikv/backend"
)

const fileExt = ".kv"

var (
	ErrMissingRoot = errors.New("dir: root directory is required")
	ErrCorrupt     = errors.New("dir: corrupt entry file")
)

// Store keeps one file per key under a root directory. File names are the
// SHA-256 of the key, so any key is a valid file name. Each file embeds the
// original key, which lets Keys recover it.
//
// Writes go through a temp file and rename, so readers never observe a
// partial value.
type Store struct {
	root string
}

var _ backend.Backend = (*Store)(nil)

// Open creates root if needed and returns a store rooted there.
func Open(root string) (*Store, error) {
	if root == "" {
		return nil, ErrMissingRoot
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("dir: create %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string { return s.root }

func (s *Store) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.root, hex.EncodeToString(sum[:])+fileExt)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := backend.CtxErr(ctx); err != nil {
		return nil, err
	}
	stored, value, err := readEntry(s.path(key))
	if err != nil {
		return nil, err
	}
	if stored != key {
		return nil, backend.ErrNotFound
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := backend.CtxErr(ctx); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("dir: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(encodeEntry(key, value)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("dir: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("dir: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		return fmt.Errorf("dir: rename: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := backend.CtxErr(ctx); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("dir: remove: %w", err)
	}
	return nil
}

func (s *Store) Contains(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, backend.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *Store) Keys(ctx context.Context, fn func(key string) error) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("dir: list: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		if err := backend.CtxErr(ctx); err != nil {
			return err
		}
		key, _, err := readEntry(filepath.Join(s.root, e.Name()))
		if errors.Is(err, backend.ErrNotFound) {
			// removed since ReadDir
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(key); err != nil {
			return backend.StopIteration(err)
		}
	}
	return nil
}

func encodeEntry(key string, value []byte) []byte {
	buf := make([]byte, 0, binary.MaxVarintLen64+len(key)+len(value))
	buf = binary.AppendUvarint(buf, uint64(len(key)))
	buf = append(buf, key...)
	return append(buf, value...)
}

func readEntry(path string) (string, []byte, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil, backend.ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("dir: read: %w", err)
	}
	n, w := binary.Uvarint(raw)
	if w <= 0 || uint64(len(raw)-w) < n {
		return "", nil, fmt.Errorf("%w: %s", ErrCorrupt, filepath.Base(path))
	}
	end := w + int(n)
	return string(raw[w:end]), raw[end:], nil
}
