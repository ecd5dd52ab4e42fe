package service

import (
	"context"
	"errors"
	"testing"

	"tweet_ingestion/internal/models"
	"tweet_ingestion/internal/queue"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func delivery(tweetID, content string, attempt int) *queue.Delivery {
	return queue.NewDelivery(models.TweetMessage{
		TweetID:   tweetID,
		UserID:    "author-1",
		Content:   content,
		Timestamp: 1_700_000_000_000,
	}, attempt)
}

func TestFanoutService_MentionsAndAnalytics(t *testing.T) {
	store := newFakeFanoutStore()
	svc := NewFanoutService(store, nil, 2, nil)

	id := uuid.NewString()
	d := delivery(id, "hi @bob @carol", 1)
	svc.ProcessBatch(context.Background(), []*queue.Delivery{d})

	assert.Equal(t, queue.Acked, d.Outcome())
	assert.ElementsMatch(t, []string{"bob", "carol"}, store.targets(id))
	assert.Len(t, store.analytics, 1)

	for _, n := range store.notifications {
		assert.Equal(t, models.NotificationTypeMention, n.Type)
		assert.Equal(t, "author-1", n.ActorID)
	}
	ev := store.analytics[id+"|"+models.AnalyticsEventCreated]
	assert.Equal(t, id, ev.PostID)
}

func TestFanoutService_NoMentions(t *testing.T) {
	store := newFakeFanoutStore()
	svc := NewFanoutService(store, nil, 1, nil)

	id := uuid.NewString()
	d := delivery(id, "just text", 1)
	svc.ProcessBatch(context.Background(), []*queue.Delivery{d})

	assert.Equal(t, queue.Acked, d.Outcome())
	assert.Empty(t, store.notifications)
	assert.Len(t, store.analytics, 1)
}

func TestFanoutService_RetryThenRedeliveryHasNoDuplicates(t *testing.T) {
	store := newFakeFanoutStore()
	store.analyticsFailures = 1
	svc := NewFanoutService(store, nil, 1, nil)

	id := uuid.NewString()
	first := delivery(id, "hi @bob @carol", 1)
	svc.ProcessBatch(context.Background(), []*queue.Delivery{first})

	require.Equal(t, queue.Retried, first.Outcome())
	require.Error(t, first.Err())
	assert.Len(t, store.targets(id), 2, "notifications were written before analytics failed")
	assert.Empty(t, store.analytics)

	redelivered := delivery(id, "hi @bob @carol", 2)
	svc.ProcessBatch(context.Background(), []*queue.Delivery{redelivered})

	assert.Equal(t, queue.Acked, redelivered.Outcome())
	assert.Len(t, store.targets(id), 2)
	assert.Len(t, store.analytics, 1)
}

func TestFanoutService_FailureDoesNotBlockBatch(t *testing.T) {
	store := &selectiveFailStore{fakeFanoutStore: newFakeFanoutStore(), failFor: "bad"}
	svc := NewFanoutService(store, nil, 4, nil)

	good1 := delivery(uuid.NewString(), "@a", 1)
	bad := delivery("bad", "@b", 1)
	good2 := delivery(uuid.NewString(), "@c", 1)
	svc.ProcessBatch(context.Background(), []*queue.Delivery{good1, bad, good2})

	assert.Equal(t, queue.Acked, good1.Outcome())
	assert.Equal(t, queue.Retried, bad.Outcome())
	assert.Equal(t, queue.Acked, good2.Outcome())
}

func TestFanoutService_ProcessedMarkerShortCircuits(t *testing.T) {
	store := newFakeFanoutStore()
	markers := &fakeMarkers{}
	svc := NewFanoutService(store, markers, 1, nil)

	id := uuid.NewString()
	svc.ProcessBatch(context.Background(), []*queue.Delivery{delivery(id, "hi @bob", 1)})
	require.Equal(t, 1, store.calls)
	assert.True(t, markers.done[id])

	again := delivery(id, "hi @bob", 2)
	svc.ProcessBatch(context.Background(), []*queue.Delivery{again})
	assert.Equal(t, queue.Acked, again.Outcome())
	assert.Equal(t, 1, store.calls, "marked message is not written again")
}

func TestFanoutService_MarkerLookupFailureStillProcesses(t *testing.T) {
	store := newFakeFanoutStore()
	svc := NewFanoutService(store, &fakeMarkers{lookErr: errors.New("redis down")}, 1, nil)

	d := delivery(uuid.NewString(), "hi @bob", 1)
	svc.ProcessBatch(context.Background(), []*queue.Delivery{d})

	assert.Equal(t, queue.Acked, d.Outcome())
	assert.Equal(t, 1, store.calls)
}

type selectiveFailStore struct {
	*fakeFanoutStore
	failFor string
}

func (s *selectiveFailStore) SaveFanout(ctx context.Context, ns []models.Notification, ev models.AnalyticsEvent) error {
	if ev.PostID == s.failFor {
		return errors.New("insert notifications: deadlock detected")
	}
	return s.fakeFanoutStore.SaveFanout(ctx, ns, ev)
}
