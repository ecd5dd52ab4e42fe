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

	"tweet_ingestion/internal/cache"
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

	// ---------- redis ----------
	rc := cache.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rc.Close()
	if err := rc.Ping(ctx); err != nil {
		// consumer still works without markers, writes are idempotent
		log.Warn("redis unreachable at startup", "addr", cfg.RedisAddr, "err", err)
	}

	// ---------- kafka ----------
	producer, err := kafka.NewSyncProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		log.Error("kafka producer", "err", err)
		os.Exit(1)
	}
	defer producer.Close()

	fanout := service.NewFanoutService(
		repository.NewFanoutRepository(pool),
		cache.NewProcessedMarkers(rc, cfg.ProcessedTTL),
		cfg.ConsumerConcurrency,
		log.With("component", "fanout"),
	)

	consumer, err := kafka.NewConsumer(
		kafka.ConsumerConfig{
			Brokers:    cfg.KafkaBrokers,
			GroupID:    cfg.KafkaGroupID,
			Topic:      cfg.KafkaTopic,
			BatchSize:  cfg.ConsumerBatchSize,
			BatchWait:  cfg.ConsumerBatchWait,
			MaxRetries: cfg.QueueMaxRetries,
		},
		fanout,
		producer,
		repository.NewDeadLetterRepository(pool),
		log.With("component", "consumer"),
	)
	if err != nil {
		log.Error("kafka consumer", "err", err)
		os.Exit(1)
	}
	defer consumer.Close()

	metrics.StartDBCollectors(ctx, pool, 15*time.Second, log)

	admin := &http.Server{
		Addr: ":" + cfg.MetricsPort,
		Handler: handlers.NewAdminRouter(map[string]handlers.HealthCheck{
			"postgres": pool.Ping,
			"redis":    rc.Ping,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("consumer starting", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroupID)
		return consumer.Start(gctx)
	})
	g.Go(func() error {
		log.Info("admin server starting", "addr", admin.Addr)
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return admin.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("consumer stopped", "err", err)
		os.Exit(1)
	}
	log.Info("consumer stopped")
}
