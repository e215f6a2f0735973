package kv

import "context"

type defaultKind uint8

const (
	noDefault defaultKind = iota
	valueDefault
	funcDefault
)

// Default is what a read returns for a missing key: nothing (a KeyError),
// a fixed value, or a value computed from the key.
type Default struct {
	kind  defaultKind
	value []byte
	fn    func(ctx context.Context, key string) ([]byte, error)
}

func NoDefault() Default { return Default{} }

func DefaultValue(v []byte) Default {
	return Default{kind: valueDefault, value: append([]byte{}, v...)}
}

func DefaultFrom(fn func(ctx context.Context, key string) ([]byte, error)) Default {
	if fn == nil {
		return Default{}
	}
	return Default{kind: funcDefault, fn: fn}
}

// IsSet reports whether d yields a value.
func (d Default) IsSet() bool { return d.kind != noDefault }

func (d Default) resolve(ctx context.Context, op, key string) ([]byte, error) {
	switch d.kind {
	case valueDefault:
		return append([]byte{}, d.value...), nil
	case funcDefault:
		return d.fn(ctx, key)
	default:
		return nil, notFound(op, key)
	}
}
