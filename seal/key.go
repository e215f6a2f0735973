package seal

import (
	"errors"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Default key derivation parameters
const (
	DefaultArgon2Time    = 3
	DefaultArgon2Memory  = 64 * 1024 // 64 MB
	DefaultArgon2Threads = 4
	KeySize              = chacha20poly1305.KeySize
)

// DefaultSalt is the application salt used when none is configured. Every
// store sharing data must derive with the same salt and parameters.
var DefaultSalt = []byte("omnikv/seal/v1 argon2id salt")

var (
	ErrEmptyPassphrase = errors.New("seal: passphrase is empty")
	ErrEmptySalt       = errors.New("seal: salt is empty")
)

type keyConfig struct {
	salt    []byte
	time    uint32
	memory  uint32
	threads uint8
}

// KeyOption configures DeriveKey.
type KeyOption func(*keyConfig)

// WithSalt overrides DefaultSalt.
func WithSalt(salt []byte) KeyOption {
	return func(c *keyConfig) {
		c.salt = append([]byte(nil), salt...)
	}
}

// WithArgon2Params sets the Argon2id cost. Zero values keep the defaults.
func WithArgon2Params(time, memoryKiB uint32, threads uint8) KeyOption {
	return func(c *keyConfig) {
		if time > 0 {
			c.time = time
		}
		if memoryKiB > 0 {
			c.memory = memoryKiB
		}
		if threads > 0 {
			c.threads = threads
		}
	}
}

// DeriveKey turns a passphrase into a 256-bit key with Argon2id. The result
// is deterministic for a given passphrase, salt and parameter set.
func DeriveKey(passphrase []byte, opts ...KeyOption) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	cfg := keyConfig{
		salt:    DefaultSalt,
		time:    DefaultArgon2Time,
		memory:  DefaultArgon2Memory,
		threads: DefaultArgon2Threads,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if len(cfg.salt) == 0 {
		return nil, ErrEmptySalt
	}
	return argon2.IDKey(passphrase, cfg.salt, cfg.time, cfg.memory, cfg.threads, KeySize), nil
}

// clearBytes zeros a byte slice.
func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
