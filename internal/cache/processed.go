package cache

import (
	"context"
	"time"

	"tweet_ingestion/internal/metrics"
)

// ProcessedMarkers records which queue messages already had their side effects committed,
// so redeliveries can be acknowledged without touching the row store.
type ProcessedMarkers struct {
	store Store
	ttl   time.Duration
}

func NewProcessedMarkers(store Store, ttl time.Duration) *ProcessedMarkers {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ProcessedMarkers{store: store, ttl: ttl}
}

func (p *ProcessedMarkers) IsProcessed(ctx context.Context, tweetID string) (bool, error) {
	ok, err := p.store.Exists(ctx, ProcessedKey(tweetID))
	if err != nil {
		return false, err
	}
	metrics.IncMarkerLookup(ok)
	return ok, nil
}

func (p *ProcessedMarkers) MarkProcessed(ctx context.Context, tweetID string) error {
	return p.store.Set(ctx, ProcessedKey(tweetID), []byte(time.Now().UTC().Format(time.RFC3339)), p.ttl)
}
