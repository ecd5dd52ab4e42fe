package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tweet_ingestion/internal/metrics"
	"tweet_ingestion/internal/models"
)

type OutboxStore interface {
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*models.OutboxMessage, error)
	MarkSent(ctx context.Context, id int64) error
	MarkRetry(ctx context.Context, id int64, cause string, backoff time.Duration) error
	DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type RawSender interface {
	SendRaw(topic, key string, payload []byte) error
}

// OutboxSender relays tweets whose enqueue failed during the request.
type OutboxSender struct {
	store    OutboxStore
	producer RawSender
	logger   *slog.Logger

	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	retention    time.Duration
	lease        time.Duration
	maxBackoff   time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

func NewOutboxSender(
	store OutboxStore,
	producer RawSender,
	pollInterval time.Duration,
	batchSize int,
	retentionDays int,
	maxAttempts int,
	logger *slog.Logger,
) *OutboxSender {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if retentionDays < 0 {
		retentionDays = 0
	}

	return &OutboxSender{
		store:        store,
		producer:     producer,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		maxAttempts:  maxAttempts,
		retention:    time.Duration(retentionDays) * 24 * time.Hour,
		lease:        30 * time.Second,
		maxBackoff:   5 * time.Minute,
		cleanupEvery: time.Hour,
		now:          time.Now,
	}
}

// Start runs the relay in a background goroutine until ctx is done.
func (s *OutboxSender) Start(ctx context.Context) {
	go func() {
		s.logger.Info("outbox relay started", "poll_interval", s.pollInterval)
		defer s.logger.Info("outbox relay stopped")

		poll := time.NewTicker(s.pollInterval)
		defer poll.Stop()
		cleanup := time.NewTicker(s.cleanupEvery)
		defer cleanup.Stop()

		s.relayOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-poll.C:
				s.relayOnce(ctx)
			case <-cleanup.C:
				s.cleanupOnce(ctx)
			}
		}
	}()
}

func (s *OutboxSender) relayOnce(ctx context.Context) {
	msgs, err := s.store.ClaimDue(ctx, s.batchSize, s.lease)
	if err != nil {
		s.logger.Error("outbox claim failed", "err", err)
		return
	}

	for _, m := range msgs {
		log := s.logger.With("tweet_id", m.TweetID, "attempts", m.Attempts)

		if err := s.send(m); err != nil {
			if err := s.store.MarkRetry(ctx, m.ID, err.Error(), s.backoff(m.Attempts+1)); err != nil {
				log.Error("outbox mark retry failed", "err", err)
			}
			if m.Attempts+1 >= s.maxAttempts {
				metrics.IncOutboxGaveUp()
				log.Error("outbox gave up on tweet", "err", err)
				continue
			}
			log.Warn("outbox send failed", "err", err)
			continue
		}

		if err := s.store.MarkSent(ctx, m.ID); err != nil {
			// the lease expires and the tweet is sent again; consumers tolerate duplicates
			log.Error("outbox mark sent failed", "err", err)
			continue
		}
		log.Info("outbox relayed tweet")
	}
}

func (s *OutboxSender) send(m *models.OutboxMessage) error {
	if m.Topic == "" || len(m.Payload) == 0 {
		return fmt.Errorf("outbox row %d is incomplete", m.ID)
	}

	metrics.ObserveOutboxDelay(s.now().Sub(m.CreatedAt))

	start := time.Now()
	if err := s.producer.SendRaw(m.Topic, m.TweetID, m.Payload); err != nil {
		metrics.ObserveOutboxSend("retry", time.Since(start))
		return err
	}
	metrics.ObserveOutboxSend("sent", time.Since(start))
	return nil
}

// backoff grows linearly with the attempt number, capped at maxBackoff.
func (s *OutboxSender) backoff(attempt int) time.Duration {
	d := s.pollInterval * time.Duration(attempt)
	if d > s.maxBackoff {
		return s.maxBackoff
	}
	return d
}

func (s *OutboxSender) cleanupOnce(ctx context.Context) {
	if s.retention <= 0 {
		return
	}
	n, err := s.store.DeleteSentBefore(ctx, s.now().Add(-s.retention))
	if err != nil {
		s.logger.Error("outbox cleanup failed", "err", err)
		return
	}
	if n > 0 {
		s.logger.Info("outbox cleanup", "deleted", n)
	}
}
