package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	redisRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_requests_total",
			Help: "Redis requests by operation and result.",
		},
		[]string{"operation", "result"}, // result: ok, error
	)

	redisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_request_duration_seconds",
			Help:    "Redis request duration in seconds.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	processedMarkerLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processed_marker_lookups_total",
			Help: "Processed-message marker lookups by result.",
		},
		[]string{"result"}, // hit, miss
	)
)

func redisCollectors() []prometheus.Collector {
	return []prometheus.Collector{redisRequests, redisDuration, processedMarkerLookups}
}

func ObserveRedisRequest(op string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	redisRequests.WithLabelValues(op, result).Inc()
	redisDuration.WithLabelValues(op).Observe(d.Seconds())
}

func IncMarkerLookup(hit bool) {
	if hit {
		processedMarkerLookups.WithLabelValues("hit").Inc()
		return
	}
	processedMarkerLookups.WithLabelValues("miss").Inc()
}
