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

	"tweet_ingestion/internal/auth"
	"tweet_ingestion/internal/config"
	"tweet_ingestion/internal/handlers"
	"tweet_ingestion/internal/kafka"
	"tweet_ingestion/internal/logger"
	"tweet_ingestion/internal/metrics"
	"tweet_ingestion/internal/repository"
	"tweet_ingestion/internal/service"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	// ---------- config ----------
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	// ---------- db ----------
	pool, err := repository.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Error("db", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	postRepo := repository.NewPostRepository(pool)
	outboxRepo := repository.NewOutboxRepository(pool, cfg.OutboxMaxRetries)

	// ---------- kafka producer ----------
	producer, err := kafka.NewSyncProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		log.Error("kafka producer", "err", err)
		os.Exit(1)
	}
	defer producer.Close()

	// ---------- background ----------
	outboxSender := service.NewOutboxSender(
		outboxRepo,
		producer,
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
		cfg.OutboxRetentionDays,
		cfg.OutboxMaxRetries,
		log.With("component", "outbox"),
	)
	outboxSender.Start(ctx)
	metrics.StartDBCollectors(ctx, pool, 15*time.Second, log)

	// ---------- handlers ----------
	verifier := auth.NewVerifier([]byte(cfg.JWTSecret))
	tweets := service.NewTweetService(postRepo, producer, outboxRepo, cfg.KafkaTopic, log)
	h := handlers.NewTweetHandler(verifier, tweets, log)

	api := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handlers.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}
	admin := &http.Server{
		Addr: ":" + cfg.MetricsPort,
		Handler: handlers.NewAdminRouter(map[string]handlers.HealthCheck{
			"postgres": pool.Ping,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// ---------- start servers ----------
	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range []*http.Server{api, admin} {
		g.Go(func() error {
			log.Info("server starting", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
