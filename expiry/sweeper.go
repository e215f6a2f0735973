package expiry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const DefaultSweepSchedule = "@every 1m"

// Target purges expired entries and reports how many it removed.
type Target interface {
	Sweep(ctx context.Context) (int, error)
}

// Sweeper periodically runs a Target on a cron schedule. A run that is still
// in progress when the next tick fires causes that tick to be skipped.
//
// Sweeping only reclaims space early; expired entries are already invisible
// to readers without it.
type Sweeper struct {
	cron    *cron.Cron
	target  Target
	logger  *zap.Logger
	timeout time.Duration
}

type SweeperOption func(*sweeperConfig)

type sweeperConfig struct {
	schedule string
	logger   *zap.Logger
	timeout  time.Duration
}

// WithSchedule sets the cron expression (seconds field supported) or a
// descriptor such as "@every 30s".
func WithSchedule(spec string) SweeperOption {
	return func(c *sweeperConfig) {
		if spec != "" {
			c.schedule = spec
		}
	}
}

func WithLogger(l *zap.Logger) SweeperOption {
	return func(c *sweeperConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRunTimeout bounds a single sweep run.
func WithRunTimeout(d time.Duration) SweeperOption {
	return func(c *sweeperConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewSweeper validates the schedule and registers the job. Call Start to
// begin ticking.
func NewSweeper(target Target, opts ...SweeperOption) (*Sweeper, error) {
	if target == nil {
		return nil, errors.New("expiry: sweep target is nil")
	}
	cfg := sweeperConfig{
		schedule: DefaultSweepSchedule,
		logger:   zap.NewNop(),
		timeout:  5 * time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	s := &Sweeper{target: target, logger: cfg.logger, timeout: cfg.timeout}
	cl := cronLogger{l: cfg.logger.Sugar()}
	s.cron = cron.New(cron.WithSeconds(), cron.WithLogger(cl))

	var job cron.Job = cron.FuncJob(func() { _, _ = s.RunOnce(context.Background()) })
	job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(job)
	if _, err := s.cron.AddJob(cfg.schedule, job); err != nil {
		return nil, fmt.Errorf("expiry: invalid sweep schedule %q: %w", cfg.schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running sweep to finish or for
// ctx to end.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one sweep immediately.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.target.Sweep(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", zap.Error(err), zap.Int("purged", n))
		return n, err
	}
	s.logger.Debug("expiry sweep finished", zap.Int("purged", n), zap.Duration("took", time.Since(start)))
	return n, nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ l *zap.SugaredLogger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
