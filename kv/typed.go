package kv

import (
	"context"
	"encoding/json"
	"fmt"
)

// Serializer converts typed values to and from stored bytes.
type Serializer[V any] interface {
	Marshal(v V) ([]byte, error)
	Unmarshal(data []byte) (V, error)
}

type jsonSerializer[V any] struct{}

// JSON serializes values with encoding/json.
func JSON[V any]() Serializer[V] { return jsonSerializer[V]{} }

func (jsonSerializer[V]) Marshal(v V) ([]byte, error) { return json.Marshal(v) }

func (jsonSerializer[V]) Unmarshal(data []byte) (V, error) {
	var v V
	err := json.Unmarshal(data, &v)
	return v, err
}

type stringSerializer struct{}

// String stores strings as their raw bytes.
func String() Serializer[string] { return stringSerializer{} }

func (stringSerializer) Marshal(v string) ([]byte, error)      { return []byte(v), nil }
func (stringSerializer) Unmarshal(data []byte) (string, error) { return string(data), nil }

// Typed is a Store view that works with values of type V.
type Typed[V any] struct {
	store *Store
	ser   Serializer[V]
}

// NewTyped wraps s. A nil serializer means JSON.
func NewTyped[V any](s *Store, ser Serializer[V]) *Typed[V] {
	if ser == nil {
		ser = JSON[V]()
	}
	return &Typed[V]{store: s, ser: ser}
}

func (t *Typed[V]) Store() *Store { return t.store }

// Get decodes the stored value; the store-level default applies on a miss.
func (t *Typed[V]) Get(ctx context.Context, key string) (V, error) {
	data, err := t.store.Get(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}
	return t.decode(key, data)
}

// GetOr returns def on a miss.
func (t *Typed[V]) GetOr(ctx context.Context, key string, def V) (V, error) {
	data, ok, err := t.store.Lookup(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}
	if !ok {
		return def, nil
	}
	return t.decode(key, data)
}

func (t *Typed[V]) Set(ctx context.Context, key string, v V, opts ...SetOption) error {
	data, err := t.ser.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %q: %w", key, err)
	}
	return t.store.Set(ctx, key, data, opts...)
}

func (t *Typed[V]) Delete(ctx context.Context, key string, opts ...DeleteOption) error {
	return t.store.Delete(ctx, key, opts...)
}

func (t *Typed[V]) Contains(ctx context.Context, key string) (bool, error) {
	return t.store.Contains(ctx, key)
}

// GetOrSet is Store.GetOrSet for typed producers.
func (t *Typed[V]) GetOrSet(ctx context.Context, key string, fn func(ctx context.Context, key string) (V, error)) (V, error) {
	data, err := t.store.GetOrSet(ctx, key, func(ctx context.Context, key string) ([]byte, error) {
		v, err := fn(ctx, key)
		if err != nil {
			return nil, err
		}
		data, err := t.ser.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("kv: encode %q: %w", key, err)
		}
		return data, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return t.decode(key, data)
}

func (t *Typed[V]) decode(key string, data []byte) (V, error) {
	v, err := t.ser.Unmarshal(data)
	if err != nil {
		return v, fmt.Errorf("kv: decode %q: %w", key, err)
	}
	return v, nil
}
