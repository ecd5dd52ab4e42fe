package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tweet_ingestion/internal/metrics"
	"tweet_ingestion/internal/models"

	"github.com/IBM/sarama"
)

type Producer struct {
	topic    string
	producer sarama.SyncProducer
}

func NewSyncProducer(brokers []string, topic string) (*Producer, error) {
	cfg := sarama.NewConfig()

	// required by SyncProducer
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 500 * time.Millisecond
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Version = sarama.V2_8_0_0

	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create sarama sync producer: %w", err)
	}

	return NewProducer(prod, topic), nil
}

func NewProducer(p sarama.SyncProducer, topic string) *Producer {
	return &Producer{topic: topic, producer: p}
}

func (p *Producer) Close() error {
	return p.producer.Close()
}

func (p *Producer) Topic() string { return p.topic }

// EnqueueTweet sends msg to the tweet topic keyed by tweet id.
func (p *Producer) EnqueueTweet(ctx context.Context, msg *models.TweetMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}
	if msg.TweetID == "" {
		return fmt.Errorf("tweetId is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal tweet message: %w", err)
	}
	return p.SendRaw(p.topic, msg.TweetID, b)
}

// SendRaw sends an already encoded payload, used by the outbox relay.
func (p *Producer) SendRaw(topic, key string, payload []byte) error {
	return p.send(&sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: time.Now(),
	})
}

// Republish puts a message back on its topic for another delivery attempt.
func (p *Producer) Republish(topic, key string, payload []byte, attempt int) error {
	return p.send(&sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(payload),
		Headers:   []sarama.RecordHeader{attemptHeader(attempt)},
		Timestamp: time.Now(),
	})
}

func (p *Producer) send(msg *sarama.ProducerMessage) error {
	if msg.Topic == "" {
		return fmt.Errorf("topic is empty")
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		metrics.IncKafkaError("producer", "send")
		return fmt.Errorf("send kafka message: %w", err)
	}
	metrics.IncKafkaSent()
	return nil
}
