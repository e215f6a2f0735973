// Package seal provides authenticated encryption for stored values.
//
// A payload produced by AEAD is
//
//	version(1) | nonce(24) | ciphertext | tag(16)
//
// and is opaque to everything but this package.
package seal

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const payloadVersion byte = 1

// ErrDecrypt is returned for any payload that cannot be authenticated:
// tampering, a wrong passphrase, truncation or foreign data.
var ErrDecrypt = errors.New("seal: cannot decrypt payload")

// Codec transforms values on their way to and from storage. associated is
// bound to the ciphertext and must match on Decrypt.
type Codec interface {
	Encrypt(plaintext, associated []byte) ([]byte, error)
	Decrypt(payload, associated []byte) ([]byte, error)
	// Encrypted reports whether the codec actually encrypts.
	Encrypted() bool
}

type identity struct{}

// Identity returns the pass-through codec used when no passphrase is set.
func Identity() Codec { return identity{} }

func (identity) Encrypt(p, _ []byte) ([]byte, error) { return append([]byte{}, p...), nil }
func (identity) Decrypt(p, _ []byte) ([]byte, error) { return append([]byte{}, p...), nil }
func (identity) Encrypted() bool                     { return false }

// AEAD encrypts with XChaCha20-Poly1305. Each Encrypt call draws a fresh
// 192-bit random nonce. It is safe for concurrent use.
type AEAD struct {
	aead cipher.AEAD
	rand io.Reader
}

var _ Codec = (*AEAD)(nil)

// New derives a key from passphrase and returns a codec bound to it. The
// passphrase is not retained.
func New(passphrase []byte, opts ...KeyOption) (*AEAD, error) {
	work := append([]byte(nil), passphrase...)
	defer clearBytes(work)

	key, err := DeriveKey(work, opts...)
	if err != nil {
		return nil, err
	}
	defer clearBytes(key)
	return NewWithKey(key)
}

// NewWithKey builds a codec from a raw 32-byte key.
func NewWithKey(key []byte) (*AEAD, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	return &AEAD{aead: aead, rand: rand.Reader}, nil
}

func (a *AEAD) Encrypted() bool { return true }

func (a *AEAD) Encrypt(plaintext, associated []byte) ([]byte, error) {
	ns := a.aead.NonceSize()
	out := make([]byte, 1+ns, 1+ns+len(plaintext)+a.aead.Overhead())
	out[0] = payloadVersion
	nonce := out[1 : 1+ns]
	if _, err := io.ReadFull(a.rand, nonce); err != nil {
		return nil, fmt.Errorf("seal: generate nonce: %w", err)
	}
	return a.aead.Seal(out, nonce, plaintext, additionalData(associated)), nil
}

func (a *AEAD) Decrypt(payload, associated []byte) ([]byte, error) {
	ns := a.aead.NonceSize()
	if len(payload) < 1+ns+a.aead.Overhead() {
		return nil, fmt.Errorf("%w: payload too short", ErrDecrypt)
	}
	if payload[0] != payloadVersion {
		return nil, fmt.Errorf("%w: unknown payload version %d", ErrDecrypt, payload[0])
	}
	nonce := payload[1 : 1+ns]
	plain, err := a.aead.Open(nil, nonce, payload[1+ns:], additionalData(associated))
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecrypt)
	}
	if plain == nil {
		plain = []byte{}
	}
	return plain, nil
}

// additionalData binds the payload version and the caller's associated data.
func additionalData(associated []byte) []byte {
	ad := make([]byte, 0, 1+len(associated))
	ad = append(ad, payloadVersion)
	return append(ad, associated...)
}
