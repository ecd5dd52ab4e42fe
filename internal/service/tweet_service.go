package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tweet_ingestion/internal/auth"
	"tweet_ingestion/internal/content"
	"tweet_ingestion/internal/metrics"
	"tweet_ingestion/internal/models"
)

var ErrPersistence = errors.New("persistence error")

type PostStore interface {
	Create(ctx context.Context, authorID, content string) (*models.Post, error)
}

type TweetEnqueuer interface {
	EnqueueTweet(ctx context.Context, msg *models.TweetMessage) error
}

type OutboxWriter interface {
	Add(ctx context.Context, msg *models.OutboxMessage) error
}

type TweetService struct {
	posts  PostStore
	queue  TweetEnqueuer
	outbox OutboxWriter

	topic  string
	logger *slog.Logger
	now    func() time.Time
}

func NewTweetService(
	posts PostStore,
	queue TweetEnqueuer,
	outbox OutboxWriter,
	topic string,
	logger *slog.Logger,
) *TweetService {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(topic) == "" {
		topic = "tweet_created"
	}
	return &TweetService{
		posts:  posts,
		queue:  queue,
		outbox: outbox,
		topic:  topic,
		logger: logger,
		now:    time.Now,
	}
}

// CreateTweet persists sanitized content under the verified author and then enqueues the
// follow-up message. Only a persistence failure is returned; enqueue problems are logged
// and compensated through the outbox.
func (s *TweetService) CreateTweet(ctx context.Context, author auth.Subject, c content.Valid) (*models.Post, error) {
	if author.ID == "" {
		return nil, fmt.Errorf("author is empty")
	}

	post, err := s.posts.Create(ctx, author.ID, content.Sanitize(c.String()))
	if err != nil {
		metrics.IncPersistenceError()
		s.logger.Error("insert tweet failed", "author_id", author.ID, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	metrics.IncTweetsCreated()

	s.enqueue(ctx, post)
	return post, nil
}

func (s *TweetService) enqueue(ctx context.Context, post *models.Post) {
	msg := models.NewTweetMessage(post, s.now())

	// the post is committed, so neither the send nor the compensation may be cut short by the client
	ctx = context.WithoutCancel(ctx)

	err := s.queue.EnqueueTweet(ctx, msg)
	if err == nil {
		s.logger.Info("tweet enqueued", "tweet_id", post.ID)
		return
	}

	metrics.IncEnqueueFailed()
	s.logger.Warn("enqueue tweet failed, writing to outbox", "tweet_id", post.ID, "author_id", post.AuthorID, "err", err)

	payload, err := json.Marshal(msg)
	if err == nil {
		err = s.outbox.Add(ctx, &models.OutboxMessage{TweetID: post.ID, Topic: s.topic, Payload: payload})
	}
	if err != nil {
		metrics.IncEnqueueLost()
		s.logger.Error("tweet persisted without queue message", "tweet_id", post.ID, "author_id", post.AuthorID, "err", err)
		return
	}
	metrics.IncEnqueueCompensated()
}
