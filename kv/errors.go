package kv

import (
	"errors"
	"fmt"

	"github.com/adeilh/omnikv/seal"
)

var (
	// ErrKeyNotFound reports a key that is absent or expired on a read that
	// has no default, or on a strict delete.
	ErrKeyNotFound = errors.New("kv: key not found")

	// ErrKeyExists reports a live key on a write with IfAbsent.
	ErrKeyExists = errors.New("kv: key already exists")

	// ErrConfig wraps every construction-time failure.
	ErrConfig = errors.New("kv: invalid configuration")

	// ErrDecrypt reports a stored value that cannot be authenticated or
	// decoded. It is never turned into a miss.
	ErrDecrypt = seal.ErrDecrypt
)

// KeyError is the error family for key presence violations. Err is
// ErrKeyNotFound or ErrKeyExists.
type KeyError struct {
	Op  string
	Key string
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
}

func (e *KeyError) Unwrap() error { return e.Err }

func notFound(op, key string) error {
	return &KeyError{Op: op, Key: key, Err: ErrKeyNotFound}
}

func exists(op, key string) error {
	return &KeyError{Op: op, Key: key, Err: ErrKeyExists}
}

// IsNotFound reports whether err is a KeyError for a missing key.
func IsNotFound(err error) bool { return errors.Is(err, ErrKeyNotFound) }

func decryptError(op, key string, err error) error {
	if errors.Is(err, ErrDecrypt) {
		return fmt.Errorf("kv: %s %q: %w", op, key, err)
	}
	return fmt.Errorf("kv: %s %q: %w: %w", op, key, ErrDecrypt, err)
}

func configError(err error) error {
	return fmt.Errorf("%w: %w", ErrConfig, err)
}
