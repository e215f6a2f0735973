// Package config loads kvctl settings from OMNIKV_* environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/adeilh/omnikv/backend"
	"github.com/adeilh/omnikv/backend/bolt"
	"github.com/adeilh/omnikv/backend/dir"
	"github.com/adeilh/omnikv/backend/memory"
	"github.com/adeilh/omnikv/backend/postgres"
	"github.com/adeilh/omnikv/backend/redis"
	"github.com/adeilh/omnikv/backend/remote"
	"github.com/adeilh/omnikv/expiry"
	"github.com/adeilh/omnikv/httpx"
	"github.com/adeilh/omnikv/kv"
)

const EnvPrefix = "OMNIKV_"

type Config struct {
	Expire time.Duration `env:"-"`

	Backend string `env:"BACKEND" envDefault:"bolt" validate:"oneof=memory bolt dir redis postgres remote"`

	BoltPath   string `env:"BOLT_PATH" envDefault:"omnikv.db" validate:"required_if=Backend bolt"`
	BoltBucket string `env:"BOLT_BUCKET" envDefault:"omnikv" validate:"required"`

	Dir string `env:"DIR" validate:"required_if=Backend dir"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379" validate:"required_if=Backend redis"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0" validate:"gte=0"`

	PostgresDSN   string `env:"POSTGRES_DSN" validate:"required_if=Backend postgres"`
	PostgresTable string `env:"POSTGRES_TABLE" envDefault:"omnikv_entries"`

	RemoteURL   string `env:"REMOTE_URL" validate:"required_if=Backend remote"`
	RemoteToken string `env:"REMOTE_TOKEN"`

	ExpireSeconds float64 `env:"EXPIRE_SECONDS" envDefault:"0" validate:"gte=0"`
	Passphrase    string  `env:"PASSPHRASE"`
	Prefix        string  `env:"PREFIX"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	ListenAddr    string `env:"LISTEN_ADDR" envDefault:":8080"`
	ServerToken   string `env:"SERVER_TOKEN"`
	SweepSchedule string `env:"SWEEP_SCHEDULE" envDefault:"@every 1m"`
}

// Parse loads configuration from the environment, validates and normalizes it.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s%s: failed %q validation", EnvPrefix, envName(fe.StructField()), fe.Tag())
		}
		return err
	}
	if c.RemoteURL != "" {
		if err := v.Var(c.RemoteURL, "url"); err != nil {
			return fmt.Errorf("%sREMOTE_URL must be a URL", EnvPrefix)
		}
	}
	if c.ExpireSeconds > 0 {
		if _, err := expiry.FromSeconds(c.ExpireSeconds); err != nil {
			return fmt.Errorf("%sEXPIRE_SECONDS=%g: %w", EnvPrefix, c.ExpireSeconds, err)
		}
	}
	return nil
}

func (c *Config) normalize() {
	c.Expire = 0
	if p, err := expiry.FromSeconds(c.ExpireSeconds); err == nil {
		c.Expire = p.TTL()
	}
}

var envNames = map[string]string{
	"Backend":       "BACKEND",
	"BoltPath":      "BOLT_PATH",
	"BoltBucket":    "BOLT_BUCKET",
	"Dir":           "DIR",
	"RedisAddr":     "REDIS_ADDR",
	"RedisDB":       "REDIS_DB",
	"PostgresDSN":   "POSTGRES_DSN",
	"RemoteURL":     "REMOTE_URL",
	"ExpireSeconds": "EXPIRE_SECONDS",
	"LogLevel":      "LOG_LEVEL",
}

func envName(field string) string {
	if name, ok := envNames[field]; ok {
		return name
	}
	return field
}

// StoreOptions translates the expiry, encryption and prefix settings.
func (c *Config) StoreOptions() []kv.Option {
	var opts []kv.Option
	if c.Expire > 0 {
		opts = append(opts, kv.WithExpiry(c.Expire))
	}
	if c.Passphrase != "" {
		opts = append(opts, kv.WithPassphrase(c.Passphrase))
	}
	if c.Prefix != "" {
		opts = append(opts, kv.WithKeyPrefix(c.Prefix))
	}
	return opts
}

// OpenBackend connects the configured backend. The returned closer releases
// its resources and is never nil.
func (c *Config) OpenBackend(ctx context.Context) (backend.Backend, io.Closer, error) {
	switch c.Backend {
	case "memory":
		return memory.New(), nopCloser{}, nil
	case "bolt":
		b, err := bolt.Open(c.BoltPath, bolt.Options{Bucket: c.BoltBucket})
		if err != nil {
			return nil, nil, err
		}
		return b, b, nil
	case "dir":
		b, err := dir.Open(c.Dir)
		if err != nil {
			return nil, nil, err
		}
		return b, nopCloser{}, nil
	case "redis":
		b := redis.NewStore(redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
		if err := b.Ping(ctx); err != nil {
			_ = b.Close()
			return nil, nil, fmt.Errorf("config: redis %s: %w", c.RedisAddr, err)
		}
		return b, b, nil
	case "postgres":
		return c.openPostgres(ctx)
	case "remote":
		var opts []httpx.ClientOption
		if c.RemoteToken != "" {
			opts = append(opts, httpx.WithToken(c.RemoteToken))
		}
		b, err := remote.Dial(ctx, c.RemoteURL, opts...)
		if err != nil {
			return nil, nil, err
		}
		return b, nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("config: unknown backend %q", c.Backend)
}

func (c *Config) openPostgres(ctx context.Context) (backend.Backend, io.Closer, error) {
	db, err := postgres.Open(ctx, postgres.WithDSN(c.PostgresDSN))
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, db, c.PostgresTable); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	store, err := postgres.NewStore(db, postgres.WithTable(c.PostgresTable))
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, store, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
