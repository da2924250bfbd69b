// Package main wires together the catalog crawler service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/api"
	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/dispatcher"
	"github.com/JakeFAU/catalog-crawler/internal/logging"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
	"github.com/JakeFAU/catalog-crawler/internal/orchestrator"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	bootstrap := flag.Bool("bootstrap", false, "Create keyspace and tables before starting")
	seeds := flag.String("seed", "", "Comma separated artist ids to enqueue at startup")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)

	if err := run(cfg, *bootstrap, splitSeeds(*seeds), logger); err != nil {
		logger.Error("crawler exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(cfg config.Config, bootstrap bool, seeds []string, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	comps, err := build(ctx, cfg, bootstrap, logger)
	defer comps.close()
	if err != nil {
		return err
	}

	orchCfg := orchestrator.Config{
		LockTTL:      cfg.Lock.TTL,
		PollInterval: cfg.Crawler.PollInterval,
		Retry: orchestrator.RetryPolicy{
			MaxAttempts:    cfg.Crawler.MaxAttempts,
			RefreshBetween: cfg.Crawler.RefreshBetween,
		},
	}
	if cfg.Publisher.Kind != config.PublisherNone {
		orchCfg.EventTopic = cfg.Publisher.Topic
	}

	workers := make([]dispatcher.Runner, 0, cfg.Crawler.Workers)
	for i := 0; i < cfg.Crawler.Workers; i++ {
		workers = append(workers, orchestrator.New(comps.deps, orchCfg, logger.With(zap.Int("worker", i))))
	}
	dispatch := dispatcher.New(comps.deps.Queue, workers)

	if len(seeds) > 0 {
		res, err := dispatch.Enqueue(ctx, seeds)
		if err != nil {
			logger.Warn("seed enqueue incomplete", zap.Error(err))
		}
		logger.Info("seeds enqueued", zap.Strings("inserted", res.Inserted), zap.Strings("existing", res.Existing))
	}

	apiServer := api.NewServer(
		orchestrator.New(comps.deps, orchCfg, logger.With(zap.String("worker", "api"))),
		dispatch,
		comps.deps.IDs,
		api.Options{
			RequestTimeout:  cfg.Server.RequestTimeout,
			SeedParallelism: cfg.Server.SeedParallelism,
			APIKey:          cfg.Server.APIKey,
			MetricsPath:     cfg.Metrics.Path,
			DisableMetrics:  !cfg.Metrics.Enabled,
			Checks:          comps.checks,
		},
		logger,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go comps.tokens.Run(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("workers still running at shutdown deadline")
	}
	logger.Info("shutdown complete")
	return nil
}

func splitSeeds(raw string) []string {
	var out []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
