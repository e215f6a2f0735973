package kv

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/adeilh/omnikv/expiry"
	"github.com/adeilh/omnikv/seal"
)

const defaultLockStripes = 64

type config struct {
	policy     *expiry.Policy
	passphrase []byte
	keyOpts    []seal.KeyOption
	codec      seal.Codec
	prefix     string
	fallback   Default
	logger     *zap.Logger
	observer   Observer
	now        func() time.Time
	stripes    int
	err        error
}

// Option configures a Store at construction.
type Option func(*config)

func (c *config) fail(err error) {
	c.err = errors.Join(c.err, err)
}

// WithExpiry enables sliding expiration: a key dies ttl after its last
// successful read or write. ttl must be positive.
func WithExpiry(ttl time.Duration) Option {
	return func(c *config) {
		p, err := expiry.New(ttl)
		if err != nil {
			c.fail(err)
			return
		}
		c.policy = p
	}
}

// WithExpireSeconds is WithExpiry expressed in (fractional) seconds.
func WithExpireSeconds(seconds float64) Option {
	return func(c *config) {
		p, err := expiry.FromSeconds(seconds)
		if err != nil {
			c.fail(err)
			return
		}
		c.policy = p
	}
}

// WithPassphrase enables value encryption with a key derived from
// passphrase. The passphrase is only held until New returns.
func WithPassphrase(passphrase string, opts ...seal.KeyOption) Option {
	return func(c *config) {
		if passphrase == "" {
			c.fail(seal.ErrEmptyPassphrase)
			return
		}
		c.passphrase = []byte(passphrase)
		c.keyOpts = opts
	}
}

// WithCodec installs a prepared codec, for example one shared by several
// stores so the key is derived only once.
func WithCodec(codec seal.Codec) Option {
	return func(c *config) {
		if codec == nil {
			c.fail(errors.New("codec is nil"))
			return
		}
		c.codec = codec
	}
}

// WithKeyPrefix namespaces every key. Keys outside the prefix are invisible
// to the store.
func WithKeyPrefix(prefix string) Option {
	return func(c *config) { c.prefix = prefix }
}

// WithDefault sets the store-level value returned by Get on a miss.
func WithDefault(d Default) Option {
	return func(c *config) { c.fallback = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver receives per-operation outcomes, typically for metrics.
func WithObserver(o Observer) Option {
	return func(c *config) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithClock replaces time.Now for deadline computation.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLockStripes sets the number of per-key lock stripes.
func WithLockStripes(n int) Option {
	return func(c *config) {
		if n <= 0 {
			c.fail(errors.New("lock stripes must be positive"))
			return
		}
		c.stripes = n
	}
}

// GetOption tunes a single Get.
type GetOption func(*getConfig)

type getConfig struct {
	fallback Default
}

// Fallback overrides the store-level default for one call.
func Fallback(d Default) GetOption {
	return func(c *getConfig) {
		c.fallback = d
	}
}

// Or returns v on a miss.
func Or(v []byte) GetOption { return Fallback(DefaultValue(v)) }

// OrElse computes the value on a miss. It is not stored.
func OrElse(fn func(ctx context.Context, key string) ([]byte, error)) GetOption {
	return Fallback(DefaultFrom(fn))
}

// SetOption tunes a single Set.
type SetOption func(*setConfig)

type setConfig struct {
	overwrite bool
}

// IfAbsent makes Set fail with ErrKeyExists when the key is live.
func IfAbsent() SetOption {
	return func(c *setConfig) { c.overwrite = false }
}

// DeleteOption tunes a single Delete.
type DeleteOption func(*deleteConfig)

type deleteConfig struct {
	missingOK bool
}

// MustExist makes Delete fail with ErrKeyNotFound when the key is absent or
// expired.
func MustExist() DeleteOption {
	return func(c *deleteConfig) { c.missingOK = false }
}
