package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/iamBelugaa/kvs/internal/engine"
	"github.com/iamBelugaa/kvs/internal/metrics"
	"github.com/iamBelugaa/kvs/internal/server"
	"github.com/iamBelugaa/kvs/internal/threadpool"
	"github.com/iamBelugaa/kvs/pkg/config"
	"github.com/iamBelugaa/kvs/pkg/kvs"
	"github.com/iamBelugaa/kvs/pkg/logger"
)

var version = "0.1.0"

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "kvs-server",
		Short:         "Serve a persistent key-value store over TCP",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg *config.Config) (err error) {
	log, err := logger.NewWithConfig("kvs-server", cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	log.Infow(
		"kvs-server starting",
		"version", version,
		"engine", cfg.Engine,
		"addr", cfg.Addr,
		"dataDir", cfg.DataDir,
		"pool", cfg.Pool.Kind,
	)

	eng, err := kvs.Open(ctx, cfg.Engine, log, cfg.StoreOptions()...)
	if err != nil {
		log.Errorw("Failed to open engine", "error", err)
		return err
	}
	defer func() {
		if closeErr := eng.Close(); closeErr != nil {
			err = multierr.Append(err, closeErr)
		}
	}()

	pool, err := newPool(cfg.Pool, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = multierr.Append(err, pool.Shutdown(shutdownCtx))
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)
	metrics.RegisterPool(registry, pool)
	if sp, ok := eng.(engine.StatsProvider); ok {
		metrics.RegisterEngine(registry, sp)
	}

	if cfg.MetricsAddr != "" {
		ms := metrics.NewServer(cfg.MetricsAddr, registry, log)
		go func() {
			if err := ms.Start(); err != nil {
				log.Errorw("Metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			ms.Shutdown(shutdownCtx)
		}()
	}

	srv, err := server.New(eng, cfg.Addr, server.WithPool(pool), server.WithLogger(log), server.WithMetrics(m))
	if err != nil {
		return err
	}

	if err := srv.Run(ctx); err != nil {
		log.Errorw("Server stopped with error", "error", err)
		return err
	}

	log.Infow("kvs-server stopped")
	return nil
}

func newPool(cfg config.PoolConfig, log *zap.SugaredLogger) (threadpool.Pool, error) {
	if cfg.Kind == threadpool.KindNaive {
		return threadpool.NewNaive(log), nil
	}
	return threadpool.NewSharedQueue(cfg.Workers, log)
}
