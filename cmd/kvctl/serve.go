package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adeilh/omnikv/backend/remote"
	"github.com/adeilh/omnikv/expiry"
	"github.com/adeilh/omnikv/httpx"
)

func newServeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured backend over HTTP for remote stores",
		Long: "serve exposes the raw backend under /v1 and Prometheus metrics under /metrics. " +
			"Clients keep their own expiry and encryption; when OMNIKV_EXPIRE_SECONDS is set the " +
			"server also sweeps expired entries on OMNIKV_SWEEP_SCHEDULE.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return e.serve(ctx)
		},
	}
}

func (e *env) newServer() (*httpx.Server, error) {
	reg := prometheus.NewRegistry()
	if err := e.collector.Register(reg); err != nil {
		return nil, err
	}
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	server := httpx.NewServer(
		httpx.WithAddress(e.cfg.ListenAddr),
		httpx.WithLogger(e.logger),
	)
	server.RegisterRoutes(func(a *httpx.App) {
		remote.Register(a, e.raw,
			remote.WithServerToken(e.cfg.ServerToken),
			remote.WithServerLogger(e.logger))
		a.Mount("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	})
	return server, nil
}

func (e *env) serve(ctx context.Context) error {
	server, err := e.newServer()
	if err != nil {
		return err
	}

	if e.store.TTL() > 0 {
		sweeper, err := expiry.NewSweeper(e.store,
			expiry.WithSchedule(e.cfg.SweepSchedule),
			expiry.WithLogger(e.logger))
		if err != nil {
			return err
		}
		sweeper.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := sweeper.Stop(stopCtx); err != nil {
				e.logger.Warn("sweeper did not stop cleanly", zap.Error(err))
			}
		}()
		e.logger.Info("expiry sweeper started", zap.String("schedule", e.cfg.SweepSchedule))
	}

	return server.Start(ctx)
}
