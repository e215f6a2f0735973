// Package memo caches function results in a kv.Store.
//
// A wrapped function is looked up under a key derived from its name and
// arguments (see KeyFromCall). On a miss the function runs, and results the
// validator accepts are stored, so they inherit the store's expiry and
// encryption.
package memo

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/adeilh/omnikv/kv"
)

// Func is the shape of a memoizable call.
type Func[V any] func(ctx context.Context, args ...any) (V, error)

type Cache[V any] struct {
	store    *kv.Store
	ser      kv.Serializer[V]
	validate func(V) bool
	logger   *zap.Logger
	group    singleflight.Group
}

type Option[V any] func(*Cache[V])

// WithValidator decides which results are stored. By default every
// successful result is.
func WithValidator[V any](fn func(V) bool) Option[V] {
	return func(c *Cache[V]) {
		if fn != nil {
			c.validate = fn
		}
	}
}

// WithSerializer replaces the default JSON serializer.
func WithSerializer[V any](ser kv.Serializer[V]) Option[V] {
	return func(c *Cache[V]) {
		if ser != nil {
			c.ser = ser
		}
	}
}

func WithLogger[V any](l *zap.Logger) Option[V] {
	return func(c *Cache[V]) {
		if l != nil {
			c.logger = l
		}
	}
}

func New[V any](store *kv.Store, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		store:    store,
		ser:      kv.JSON[V](),
		validate: func(V) bool { return true },
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type bypassKey struct{}

// Bypass marks ctx so wrapped calls skip the cache lookup. Their results are
// still stored.
func Bypass(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassKey{}, true)
}

func bypassed(ctx context.Context) bool {
	v, _ := ctx.Value(bypassKey{}).(bool)
	return v
}

// Wrap returns fn memoized under name.
func (c *Cache[V]) Wrap(name string, fn Func[V]) Func[V] {
	return func(ctx context.Context, args ...any) (V, error) {
		return c.Do(ctx, KeyFromCall(name, args...), func(ctx context.Context) (V, error) {
			return fn(ctx, args...)
		})
	}
}

// Do returns the cached result under key or runs fn. Concurrent misses on
// the same key share one fn call unless ctx is marked with Bypass.
func (c *Cache[V]) Do(ctx context.Context, key string, fn func(ctx context.Context) (V, error)) (V, error) {
	if bypassed(ctx) {
		return c.call(ctx, key, fn)
	}
	if v, ok, err := c.lookup(ctx, key); err != nil || ok {
		return v, err
	}
	res, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok, err := c.lookup(ctx, key); err != nil || ok {
			return v, err
		}
		return c.call(ctx, key, fn)
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Forget drops the cached result of one call.
func (c *Cache[V]) Forget(ctx context.Context, name string, args ...any) error {
	return c.store.Delete(ctx, KeyFromCall(name, args...))
}

func (c *Cache[V]) lookup(ctx context.Context, key string) (V, bool, error) {
	var zero V
	data, ok, err := c.store.Lookup(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := c.ser.Unmarshal(data)
	if err != nil {
		// Stale encoding from an older result type; recompute.
		c.logger.Warn("memo: discarding undecodable result", zap.String("key", key), zap.Error(err))
		return zero, false, nil
	}
	return v, true, nil
}

func (c *Cache[V]) call(ctx context.Context, key string, fn func(ctx context.Context) (V, error)) (V, error) {
	v, err := fn(ctx)
	if err != nil {
		return v, err
	}
	if !c.validate(v) {
		return v, nil
	}
	data, err := c.ser.Marshal(v)
	if err != nil {
		c.logger.Warn("memo: result not cached", zap.String("key", key), zap.Error(err))
		return v, nil
	}
	if err := c.store.Set(ctx, key, data); err != nil {
		return v, err
	}
	return v, nil
}
