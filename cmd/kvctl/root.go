package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adeilh/omnikv/backend"
	"github.com/adeilh/omnikv/internal/config"
	"github.com/adeilh/omnikv/internal/logging"
	"github.com/adeilh/omnikv/kv"
	"github.com/adeilh/omnikv/metrics"
)

// env is the state shared by subcommands, filled in by the root
// PersistentPreRunE and released by execute.
type env struct {
	cfg       *config.Config
	logger    *zap.Logger
	raw       backend.Backend
	store     *kv.Store
	collector *metrics.Collector
	closer    io.Closer
}

// execute runs one kvctl invocation and always releases the backend, also
// when the command fails.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root, e := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if cerr := e.close(); err == nil {
		err = cerr
	}
	return err
}

func newRootCmd() (*cobra.Command, *env) {
	e := &env{}
	root := &cobra.Command{
		Use:           "kvctl",
		Short:         "Inspect and serve an omnikv key-value store",
		Long:          "kvctl reads its backend, expiry, encryption and prefix settings from OMNIKV_* environment variables.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.open(cmd)
		},
	}
	root.AddCommand(
		newGetCmd(e),
		newSetCmd(e),
		newDelCmd(e),
		newHasCmd(e),
		newKeysCmd(e),
		newSweepCmd(e),
		newServeCmd(e),
	)
	return root, e
}

func (e *env) open(cmd *cobra.Command) error {
	cfg, err := config.Parse()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	raw, closer, err := cfg.OpenBackend(cmd.Context())
	if err != nil {
		return err
	}

	collector := metrics.New(metrics.DefaultNamespace)
	opts := append(cfg.StoreOptions(), kv.WithLogger(logger), kv.WithObserver(collector))
	store, err := kv.New(raw, opts...)
	if err != nil {
		_ = closer.Close()
		return err
	}

	e.cfg, e.logger, e.raw, e.store, e.collector, e.closer = cfg, logger, raw, store, collector, closer
	logger.Debug("store opened",
		zap.String("backend", cfg.Backend),
		zap.Duration("ttl", store.TTL()),
		zap.Bool("encrypted", store.Encrypted()))
	return nil
}

func (e *env) close() error {
	if e.closer == nil {
		return nil
	}
	err := e.closer.Close()
	e.closer = nil
	_ = e.logger.Sync()
	return err
}
