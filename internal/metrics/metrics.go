package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)

	// Ingestion
	tweetsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tweets_created_total",
			Help: "Total number of tweets persisted.",
		},
	)
	contentRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tweet_content_rejected_total",
			Help: "Tweets rejected by content validation, by reason.",
		},
		[]string{"reason"},
	)
	authFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tweet_auth_failures_total",
			Help: "Requests rejected with 401.",
		},
	)
	persistenceErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tweet_persistence_errors_total",
			Help: "Tweet inserts that failed in the row store.",
		},
	)
	enqueueFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tweet_enqueue_failed_total",
			Help: "Direct queue sends that failed after the tweet was persisted.",
		},
	)
	enqueueCompensated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tweet_enqueue_compensated_total",
			Help: "Failed queue sends recorded in the outbox for retry.",
		},
	)
	enqueueLost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tweet_enqueue_lost_total",
			Help: "Persisted tweets left without a queue message.",
		},
	)

	// Kafka
	kafkaMessagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kafka_messages_sent_total",
			Help: "Total number of Kafka messages successfully sent.",
		},
	)
	kafkaMessagesProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kafka_messages_processed_total",
			Help: "Total number of Kafka messages settled by the consumer.",
		},
	)
	kafkaErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_errors_total",
			Help: "Total number of Kafka-related errors.",
		},
		[]string{"component", "operation"},
	)
	kafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (high watermark - current offset - 1).",
		},
		[]string{"topic", "partition"},
	)

	// Consumer
	messagesSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_settled_total",
			Help: "Queue messages by outcome (acked, retried, dead_lettered).",
		},
		[]string{"outcome"},
	)
	messagesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_messages_already_processed_total",
			Help: "Redelivered messages acknowledged from the processed marker.",
		},
	)
	mentionsPerMessage = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tweet_mentions_per_message",
			Help:    "Distinct mentions extracted per processed message.",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
		},
	)
	batchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queue_batch_size",
			Help:    "Messages per consumer batch.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	// Outbox relay
	outboxRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tweet_outbox_rows",
			Help: "Rows in tweet_outbox by status.",
		},
		[]string{"status"},
	)
	outboxRelayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tweet_outbox_relay_total",
			Help: "Outbox send attempts by result (sent, retry, gave_up).",
		},
		[]string{"result"},
	)
	outboxSendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tweet_outbox_send_duration_seconds",
			Help:    "Time to relay one outbox row to kafka.",
			Buckets: prometheus.DefBuckets,
		},
	)
	outboxDelay = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tweet_outbox_delay_seconds",
			Help:    "Age of an outbox row when its send is attempted.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)
	deadLetterCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dead_letters_count",
			Help: "Current number of dead-lettered queue messages.",
		},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,

			tweetsCreated,
			contentRejected,
			authFailures,
			persistenceErrors,
			enqueueFailed,
			enqueueCompensated,
			enqueueLost,

			kafkaMessagesSent,
			kafkaMessagesProcessed,
			kafkaErrors,
			kafkaConsumerLag,

			messagesSettled,
			messagesSkipped,
			mentionsPerMessage,
			batchSize,

			outboxRows,
			outboxRelayed,
			outboxSendDuration,
			outboxDelay,
			deadLetterCount,
		)
		prometheus.MustRegister(redisCollectors()...)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// --- HTTP ---
func ObserveHTTPRequest(method, route, code string, d time.Duration) {
	httpRequests.WithLabelValues(method, route, code).Inc()
	httpDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
}

// --- Ingestion ---
func IncTweetsCreated()                { tweetsCreated.Inc() }
func IncContentRejected(reason string) { contentRejected.WithLabelValues(reason).Inc() }
func IncAuthFailure()                  { authFailures.Inc() }
func IncPersistenceError()             { persistenceErrors.Inc() }
func IncEnqueueFailed()                { enqueueFailed.Inc() }
func IncEnqueueCompensated()           { enqueueCompensated.Inc() }
func IncEnqueueLost()                  { enqueueLost.Inc() }

// --- Kafka ---
func IncKafkaSent()           { kafkaMessagesSent.Inc() }
func AddKafkaProcessed(n int) { kafkaMessagesProcessed.Add(float64(max(n, 0))) }
func IncKafkaError(component, operation string) {
	kafkaErrors.WithLabelValues(component, operation).Inc()
}
func SetKafkaConsumerLag(topic string, partition int32, lag int64) {
	if lag < 0 {
		lag = 0
	}
	kafkaConsumerLag.WithLabelValues(topic, strconv.Itoa(int(partition))).Set(float64(lag))
}

// --- Consumer ---
func IncMessageSettled(outcome string) { messagesSettled.WithLabelValues(outcome).Inc() }
func IncMessageSkipped()               { messagesSkipped.Inc() }
func ObserveMentions(n int)            { mentionsPerMessage.Observe(float64(max(n, 0))) }
func ObserveBatchSize(n int)           { batchSize.Observe(float64(max(n, 0))) }
func AddMessagesSettled(outcome string, n int) {
	messagesSettled.WithLabelValues(outcome).Add(float64(max(n, 0)))
}

// --- Outbox ---
func ObserveOutboxSend(result string, d time.Duration) {
	outboxRelayed.WithLabelValues(result).Inc()
	outboxSendDuration.Observe(d.Seconds())
}
func IncOutboxGaveUp() { outboxRelayed.WithLabelValues("gave_up").Inc() }
func ObserveOutboxDelay(d time.Duration) {
	outboxDelay.Observe(max(d, 0).Seconds())
}

// --- Gauges (DB collectors) ---
func SetOutboxRows(status string, count int64) {
	outboxRows.WithLabelValues(status).Set(float64(max(count, 0)))
}
func SetDeadLetterCount(count int64) {
	deadLetterCount.Set(float64(max(count, 0)))
}
