package kv

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adeilh/omnikv/backend"
	"github.com/adeilh/omnikv/backend/memory"
	"github.com/adeilh/omnikv/seal"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func passphrase(p string) Option {
	return WithPassphrase(p, seal.WithArgon2Params(1, 1024, 1))
}

func newStore(t *testing.T, b backend.Backend, opts ...Option) *Store {
	t.Helper()
	s, err := New(b, opts...)
	require.NoError(t, err)
	return s
}

// plainBackend hides the Swapper capability of the wrapped backend.
type plainBackend struct{ backend.Backend }

var errBoom = errors.New("backend unavailable")

// failingBackend fails every call with errBoom.
type failingBackend struct{}

func (failingBackend) Get(context.Context, string) ([]byte, error)    { return nil, errBoom }
func (failingBackend) Set(context.Context, string, []byte) error      { return errBoom }
func (failingBackend) Delete(context.Context, string) error           { return errBoom }
func (failingBackend) Contains(context.Context, string) (bool, error) { return false, errBoom }
func (failingBackend) Keys(context.Context, func(string) error) error { return errBoom }

type recordingObserver struct {
	mu      sync.Mutex
	ops     []string
	expired int
}

func (r *recordingObserver) ObserveOperation(op, result string, _ time.Duration) {
	r.mu.Lock()
	r.ops = append(r.ops, op+":"+result)
	r.mu.Unlock()
}

func (r *recordingObserver) ObserveExpired(n int) {
	r.mu.Lock()
	r.expired += n
	r.mu.Unlock()
}

// backends runs fn against a swapping and a non-swapping backend.
func backends(t *testing.T, fn func(t *testing.T, mem *memory.Store, b backend.Backend)) {
	t.Run("swapper", func(t *testing.T) {
		mem := memory.New()
		fn(t, mem, mem)
	})
	t.Run("plain", func(t *testing.T) {
		mem := memory.New()
		fn(t, mem, plainBackend{mem})
	})
}
