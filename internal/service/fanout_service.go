package service

import (
	"context"
	"log/slog"
	"time"

	"tweet_ingestion/internal/content"
	"tweet_ingestion/internal/metrics"
	"tweet_ingestion/internal/models"
	"tweet_ingestion/internal/queue"

	"golang.org/x/sync/errgroup"
)

type FanoutStore interface {
	SaveFanout(ctx context.Context, notifications []models.Notification, event models.AnalyticsEvent) error
}

type ProcessedMarkers interface {
	IsProcessed(ctx context.Context, tweetID string) (bool, error)
	MarkProcessed(ctx context.Context, tweetID string) error
}

// FanoutService turns queued tweets into mention notifications and analytics events.
type FanoutService struct {
	store   FanoutStore
	markers ProcessedMarkers

	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// NewFanoutService builds the consumer side. markers may be nil.
func NewFanoutService(store FanoutStore, markers ProcessedMarkers, concurrency int, logger *slog.Logger) *FanoutService {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &FanoutService{
		store:       store,
		markers:     markers,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}
}

// ProcessBatch settles every delivery. A failing message never affects the others.
func (s *FanoutService) ProcessBatch(ctx context.Context, deliveries []*queue.Delivery) {
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, d := range deliveries {
		g.Go(func() error {
			s.processOne(ctx, d)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *FanoutService) processOne(ctx context.Context, d *queue.Delivery) {
	msg := &d.Message
	log := s.logger.With("tweet_id", msg.TweetID, "attempt", d.Attempt)

	if s.markers != nil {
		done, err := s.markers.IsProcessed(ctx, msg.TweetID)
		switch {
		case err != nil:
			log.Warn("processed marker lookup failed", "err", err)
		case done:
			metrics.IncMessageSkipped()
			d.Ack()
			return
		}
	}

	mentions := content.ExtractMentions(msg.Content)
	metrics.ObserveMentions(len(mentions))

	event := models.AnalyticsEvent{
		PostID:    msg.TweetID,
		Event:     models.AnalyticsEventCreated,
		Timestamp: s.now().UTC(),
	}
	if err := s.store.SaveFanout(ctx, models.NewMentionNotifications(msg, mentions), event); err != nil {
		log.Error("queue processing failed", "err", err)
		d.Retry(err)
		return
	}

	if s.markers != nil {
		if err := s.markers.MarkProcessed(ctx, msg.TweetID); err != nil {
			log.Warn("set processed marker failed", "err", err)
		}
	}

	log.Info("processed tweet", "mentions", len(mentions))
	d.Ack()
}
