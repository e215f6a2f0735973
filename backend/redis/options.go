package redis

import (
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Options controls how the Redis backend connects to the server. Zero fields
// fall back to defaultOptions.
type Options struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	// ScanCount is the COUNT hint passed to SCAN while iterating keys.
	ScanCount int64
}

var defaultOptions = Options{
	Addr:         "127.0.0.1:6379",
	DialTimeout:  5 * time.Second,
	ReadTimeout:  2 * time.Second,
	WriteTimeout: 2 * time.Second,
	PoolSize:     8,
	ScanCount:    100,
}

func (o Options) withDefaults() Options {
	d := defaultOptions
	if o.Addr == "" {
		o.Addr = d.Addr
	}
	o.DialTimeout = orDuration(o.DialTimeout, d.DialTimeout)
	o.ReadTimeout = orDuration(o.ReadTimeout, d.ReadTimeout)
	o.WriteTimeout = orDuration(o.WriteTimeout, d.WriteTimeout)
	o.DB = max(o.DB, 0)
	if o.PoolSize <= 0 {
		o.PoolSize = d.PoolSize
	}
	if o.ScanCount <= 0 {
		o.ScanCount = d.ScanCount
	}
	return o
}

func (o Options) client() *goredis.Options {
	return &goredis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
		PoolSize:     o.PoolSize,
	}
}

func orDuration(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}
