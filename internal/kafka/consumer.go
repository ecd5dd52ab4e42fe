package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tweet_ingestion/internal/metrics"
	"tweet_ingestion/internal/models"
	"tweet_ingestion/internal/queue"

	"github.com/IBM/sarama"
)

// BatchProcessor settles every delivery of a batch with Ack or Retry.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, deliveries []*queue.Delivery)
}

type Republisher interface {
	Republish(topic, key string, payload []byte, attempt int) error
}

type DeadLetterSink interface {
	SaveDeadLetter(ctx context.Context, dl *models.DeadLetter) error
}

type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topic   string

	BatchSize int
	BatchWait time.Duration
	// MaxRetries is how many redeliveries a failing message gets before it is dead-lettered.
	MaxRetries int
}

type Consumer struct {
	group   sarama.ConsumerGroup
	topic   string
	handler sarama.ConsumerGroupHandler
	logger  *slog.Logger
}

func NewConsumer(
	cfg ConsumerConfig,
	processor BatchProcessor,
	republisher Republisher,
	dlq DeadLetterSink,
	logger *slog.Logger,
) (*Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sc := sarama.NewConfig()
	sc.Version = sarama.V2_8_0_0

	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest

	// offsets are committed by hand once a whole batch is settled
	sc.Consumer.Offsets.AutoCommit.Enable = false

	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{
		sarama.NewBalanceStrategyRange(),
	}
	sc.Consumer.Group.Session.Timeout = 30 * time.Second
	sc.Consumer.Group.Heartbeat.Interval = 3 * time.Second

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	return &Consumer{
		group:   group,
		topic:   cfg.Topic,
		handler: newTweetGroupHandler(cfg, processor, republisher, dlq, logger),
		logger:  logger,
	}, nil
}

func (c *Consumer) Start(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("consumer group error", "err", err)
			metrics.IncKafkaError("consumer", "group")
		}
	}()

	for {
		err := c.group.Consume(ctx, []string{c.topic}, c.handler)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("consume loop error", "err", err)
			metrics.IncKafkaError("consumer", "consume")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type tweetGroupHandler struct {
	processor   BatchProcessor
	republisher Republisher
	dlq         DeadLetterSink
	logger      *slog.Logger

	batchSize  int
	batchWait  time.Duration
	maxRetries int
}

func newTweetGroupHandler(
	cfg ConsumerConfig,
	processor BatchProcessor,
	republisher Republisher,
	dlq DeadLetterSink,
	logger *slog.Logger,
) *tweetGroupHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchWait <= 0 {
		cfg.BatchWait = time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &tweetGroupHandler{
		processor:   processor,
		republisher: republisher,
		dlq:         dlq,
		logger:      logger,
		batchSize:   cfg.BatchSize,
		batchWait:   cfg.BatchWait,
		maxRetries:  cfg.MaxRetries,
	}
}

func (h *tweetGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *tweetGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim groups messages of one partition into batches. The offset of a batch is
// committed only after every message in it was acked, republished or dead-lettered.
func (h *tweetGroupHandler) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	ctx := session.Context()
	batch := make([]*sarama.ConsumerMessage, 0, h.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := h.handleBatch(ctx, batch); err != nil {
			// nothing committed, the whole batch comes back after the rebalance
			return err
		}
		session.MarkMessage(batch[len(batch)-1], "")
		session.Commit()
		batch = batch[:0]
		return nil
	}

	ticker := time.NewTicker(h.batchWait)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return flush()
			}
			lag := claim.HighWaterMarkOffset() - msg.Offset - 1
			metrics.SetKafkaConsumerLag(msg.Topic, msg.Partition, lag)

			batch = append(batch, msg)
			if len(batch) >= h.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

type pendingDeadLetter struct {
	msg      *sarama.ConsumerMessage
	attempts int
	cause    error
}

type pendingRetry struct {
	msg      *sarama.ConsumerMessage
	delivery *queue.Delivery
}

// handleBatch settles every message of msgs or returns an error, in which case nothing of the
// batch may be committed. Side effects start only once every outcome is known. Dead letters are
// keyed by offset and written first; republishes come last, so a failed republish can only
// repeat earlier republishes of the same batch on redelivery.
func (h *tweetGroupHandler) handleBatch(ctx context.Context, msgs []*sarama.ConsumerMessage) error {
	metrics.ObserveBatchSize(len(msgs))

	var (
		deliveries = make([]*queue.Delivery, 0, len(msgs))
		sources    = make([]*sarama.ConsumerMessage, 0, len(msgs))
		dead       []pendingDeadLetter
		retries    []pendingRetry
		acked      int
	)

	for _, m := range msgs {
		attempt := attemptOf(m)
		tm, err := DecodeTweetMessage(m.Value)
		if err != nil {
			h.logger.Warn("undecodable queue message",
				"topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "err", err)
			dead = append(dead, pendingDeadLetter{msg: m, attempts: attempt, cause: err})
			continue
		}
		deliveries = append(deliveries, queue.NewDelivery(tm, attempt))
		sources = append(sources, m)
	}

	if len(deliveries) > 0 {
		h.processor.ProcessBatch(ctx, deliveries)
	}

	// shutdown or rebalance: the batch comes back with its attempt numbers unchanged
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}

	for i, d := range deliveries {
		switch d.Outcome() {
		case queue.Acked:
			acked++
		case queue.Retried:
			if d.Attempt > h.maxRetries {
				dead = append(dead, pendingDeadLetter{msg: sources[i], attempts: d.Attempt, cause: d.Err()})
				continue
			}
			retries = append(retries, pendingRetry{msg: sources[i], delivery: d})
		default:
			return fmt.Errorf("tweet %s left unsettled", d.Message.TweetID)
		}
	}

	for _, dl := range dead {
		if err := h.deadLetter(ctx, dl.msg, dl.attempts, dl.cause); err != nil {
			return err
		}
	}

	for _, r := range retries {
		d := r.delivery
		if err := h.republisher.Republish(r.msg.Topic, string(r.msg.Key), r.msg.Value, d.Attempt+1); err != nil {
			return fmt.Errorf("republish tweet %s: %w", d.Message.TweetID, err)
		}
		metrics.IncMessageSettled("retried")
		h.logger.Info("queue message scheduled for retry",
			"tweet_id", d.Message.TweetID, "attempt", d.Attempt, "err", d.Err())
	}

	metrics.AddMessagesSettled("acked", acked)
	metrics.AddKafkaProcessed(len(dead) + len(retries) + acked)
	return nil
}

func (h *tweetGroupHandler) deadLetter(ctx context.Context, m *sarama.ConsumerMessage, attempts int, cause error) error {
	lastErr := ""
	if cause != nil {
		lastErr = cause.Error()
	}

	dl := &models.DeadLetter{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       string(m.Key),
		Payload:   m.Value,
		Attempts:  attempts,
		LastError: lastErr,
	}
	if err := h.dlq.SaveDeadLetter(ctx, dl); err != nil {
		metrics.IncKafkaError("consumer", "dead_letter")
		return fmt.Errorf("save dead letter: %w", err)
	}

	metrics.IncMessageSettled("dead_lettered")
	h.logger.Error("queue message dead-lettered",
		"topic", m.Topic, "partition", m.Partition, "offset", m.Offset,
		"attempts", attempts, "err", lastErr)
	return nil
}
