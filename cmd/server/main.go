package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"likeness/internal/platform/config"
	"likeness/internal/platform/httpserver"
	"likeness/internal/platform/kafka"
	"likeness/internal/platform/logger"
	"likeness/internal/platform/postgres"
	"likeness/internal/platform/redis"
	"likeness/internal/platform/tracing"
	ratelimit "likeness/internal/ratelimit/middleware"
	webhookservice "likeness/internal/webhook/service"
)

const (
	limiterSweepEvery = time.Minute
	shutdownTimeout   = 20 * time.Second
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(rootCtx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, "likeness", cfg.OTELEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	checks := map[string]pinger{}

	st := newMemoryStores()
	if cfg.DatabaseURL != "" {
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			return err
		}
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		st = newPostgresStores(db)
		checks["postgres"] = db.PingContext
		log.Info("using postgres stores")
	} else {
		log.Warn("LIKENESS_DATABASE_URL not set, using in-memory stores")
	}

	rdb, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		checks["redis"] = rdb.Health
	}

	var mirror webhookservice.Mirror
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, kafka.Options{})
		if err != nil {
			return err
		}
		defer producer.Close()
		mirror = producer
		log.Info("mirroring webhook events to kafka", "topic", producer.Topic())
	}

	a := newApp(cfg, log, st, rdb, mirror, checks)
	srv := httpserver.New(cfg.Addr, a.router,
		httpserver.WithHandlerTimeout(requestTimeout),
		httpserver.WithErrorLog(log),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("likeness listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return ignoreCanceled(a.touches.Run(gctx))
	})
	g.Go(func() error {
		ratelimit.RunCleanup(gctx, a.keyLimiter, limiterSweepEvery, a.rateLimitMetrics)
		return nil
	})
	g.Go(func() error {
		return ignoreCanceled(a.dispatcher.Run(gctx))
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
