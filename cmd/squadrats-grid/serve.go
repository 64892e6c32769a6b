package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/squadrats-grid/internal/contour"
	"github.com/mohammed-shakir/squadrats-grid/internal/core/server"
	"github.com/mohammed-shakir/squadrats-grid/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/squadrats-grid/internal/job"
	"github.com/mohammed-shakir/squadrats-grid/internal/metrics"
	"github.com/mohammed-shakir/squadrats-grid/internal/region"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve grids and coverages over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	f := cmd.Flags()
	f.StringVar(&a.cfg.Addr, "addr", a.cfg.Addr, "listen address")
	f.StringVar(&a.cfg.PolyDir, "poly-dir", a.cfg.PolyDir, "directory with boundary files")
	f.IntVar(&a.cfg.MaxGridTiles, "max-grid-tiles", a.cfg.MaxGridTiles, "largest coverage GET /grid will build a grid for (0: no cap)")
	f.BoolVar(&a.cfg.MetricsEnabled, "metrics", a.cfg.MetricsEnabled, "expose prometheus metrics on /metrics")
	f.BoolVar(&a.cfg.Cache.Enabled, "cache", a.cfg.Cache.Enabled, "cache coverages in redis")
	f.StringVar(&a.cfg.Cache.RedisAddr, "redis-addr", a.cfg.Cache.RedisAddr, "redis address")
	f.BoolVar(&a.cfg.Invalidation.Enabled, "invalidation", a.cfg.Invalidation.Enabled, "consume region update events from kafka")
	f.StringVar(&a.cfg.Invalidation.Brokers, "kafka-brokers", a.cfg.Invalidation.Brokers, "kafka brokers (comma separated)")
	f.StringVar(&a.cfg.Invalidation.Topic, "kafka-topic", a.cfg.Invalidation.Topic, "region update topic")
	f.StringVar(&a.cfg.Invalidation.GroupID, "kafka-group", a.cfg.Invalidation.GroupID, "consumer group id")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	p := metrics.Init(metrics.Config{
		Enabled: a.cfg.MetricsEnabled,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	a.log.Info("starting grid server",
		"addr", a.cfg.Addr,
		"version", Version,
		"poly_dir", a.cfg.PolyDir,
		"strategy", a.cfg.Strategy,
		"max_grid_tiles", a.cfg.MaxGridTiles,
		"metrics", a.cfg.MetricsEnabled)

	if !exists(a.cfg.PolyDir) {
		return fmt.Errorf("boundary directory %s does not exist", a.cfg.PolyDir)
	}
	idx, err := region.BuildIndex(a.cfg.PolyDir, a.log)
	if err != nil {
		return err
	}

	cache, closer, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()
	var cc job.CoverageCache
	if cache != nil {
		cc = cache
	}
	runner, err := job.NewRunner(a.cfg.Strategy, contour.Options{Holes: a.cfg.HonorHoles}, cc, a.log)
	if err != nil {
		return err
	}
	runner.MaxTiles = a.cfg.MaxGridTiles

	deps := server.Deps{Regions: idx, Runner: runner, Metrics: p}
	switch {
	case a.cfg.Invalidation.Enabled && cache == nil:
		a.log.Warn("invalidation needs the coverage cache; consumer not started")
	case a.cfg.Invalidation.Enabled:
		kcfg := kafkaconsumer.FromEnv()
		kcfg.Brokers = splitList([]string{a.cfg.Invalidation.Brokers})
		kcfg.Topic = a.cfg.Invalidation.Topic
		kcfg.GroupID = a.cfg.Invalidation.GroupID
		consumer := kafkaconsumer.New(kcfg, a.log, cache, idx)
		if err := consumer.Start(ctx); err != nil {
			return fmt.Errorf("start invalidation consumer: %w", err)
		}
		defer consumer.Stop()
		deps.Ready = consumer
	}

	if err := server.Run(ctx, a.cfg, a.log, deps); err != nil {
		a.log.Error("server exited with error", "err", err)
		return err
	}
	a.log.Info("server stopped")
	return nil
}
