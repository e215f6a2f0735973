package backend

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key is absent. It must stay
	// distinguishable from every other backend failure.
	ErrNotFound = errors.New("backend: key not found")

	// ErrStop may be returned from a Keys callback to end iteration early.
	// Keys then returns nil.
	ErrStop = errors.New("backend: stop iteration")
)

// Backend is the raw storage capability a key-value repository must provide:
// memory, on-disk files, Redis, PostgreSQL or a remote HTTP store. Values are
// opaque byte blobs and must round-trip exactly. Only single-key atomicity is
// assumed.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete is a no-op when the key is absent.
	Delete(ctx context.Context, key string) error
	Contains(ctx context.Context, key string) (bool, error)
	// Keys calls fn for every stored key. Order is backend specific.
	Keys(ctx context.Context, fn func(key string) error) error
}

// Swapper is an optional capability for backends that can perform an atomic
// conditional write.
//
// CompareAndSwap replaces the value under key with next only while the stored
// value still equals prev. A nil prev means the key must be absent and a nil
// next deletes the key. It reports false, without error, when the condition
// did not hold.
type Swapper interface {
	CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error)
}

// StopIteration converts ErrStop returned by a Keys callback into a clean
// end of iteration.
func StopIteration(err error) error {
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

// CtxErr reports a cancelled or expired context before any work is done.
func CtxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Clone returns a copy of b that never aliases the caller's slice. A nil
// input stays nil.
func Clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
