package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tweet_ingestion/internal/models"

	"github.com/google/uuid"
)

type fakePostStore struct {
	mu    sync.Mutex
	posts []*models.Post
	err   error
}

func (f *fakePostStore) Create(_ context.Context, authorID, content string) (*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := &models.Post{ID: uuid.NewString(), Content: content, AuthorID: authorID, CreatedAt: time.Now()}
	f.posts = append(f.posts, p)
	return p, nil
}

type fakeEnqueuer struct {
	mu   sync.Mutex
	msgs []*models.TweetMessage
	err  error
}

func (f *fakeEnqueuer) EnqueueTweet(_ context.Context, msg *models.TweetMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

type fakeOutbox struct {
	mu   sync.Mutex
	msgs []*models.OutboxMessage
	err  error

	due      []*models.OutboxMessage
	sent     []int64
	retried  map[int64]string
	backoffs map[int64]time.Duration
	cutoff   time.Time
}

func (f *fakeOutbox) Add(_ context.Context, msg *models.OutboxMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeOutbox) ClaimDue(_ context.Context, limit int, _ time.Duration) ([]*models.OutboxMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.due) > limit {
		return f.due[:limit], nil
	}
	return f.due, nil
}

func (f *fakeOutbox) MarkSent(_ context.Context, id int64) error {
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeOutbox) MarkRetry(_ context.Context, id int64, cause string, backoff time.Duration) error {
	if f.retried == nil {
		f.retried = map[int64]string{}
		f.backoffs = map[int64]time.Duration{}
	}
	f.retried[id] = cause
	f.backoffs[id] = backoff
	return nil
}

func (f *fakeOutbox) DeleteSentBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 0, nil
}

// fakeFanoutStore writes notifications and analytics separately, like a store without
// transactions would, and keys both by their natural keys.
type fakeFanoutStore struct {
	mu            sync.Mutex
	notifications map[string]models.Notification
	analytics     map[string]models.AnalyticsEvent
	// analyticsFailures makes the next N analytics writes fail after notifications were stored.
	analyticsFailures int
	calls             int
}

func newFakeFanoutStore() *fakeFanoutStore {
	return &fakeFanoutStore{
		notifications: map[string]models.Notification{},
		analytics:     map[string]models.AnalyticsEvent{},
	}
}

func (f *fakeFanoutStore) SaveFanout(_ context.Context, ns []models.Notification, ev models.AnalyticsEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	for _, n := range ns {
		key := fmt.Sprintf("%s|%s|%s", n.PostID, n.Type, n.TargetUsername)
		if _, ok := f.notifications[key]; !ok {
			f.notifications[key] = n
		}
	}

	if f.analyticsFailures > 0 {
		f.analyticsFailures--
		return fmt.Errorf("insert analytics: connection reset")
	}

	key := ev.PostID + "|" + ev.Event
	if _, ok := f.analytics[key]; !ok {
		f.analytics[key] = ev
	}
	return nil
}

func (f *fakeFanoutStore) targets(postID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, n := range f.notifications {
		if n.PostID == postID {
			out = append(out, n.TargetUsername)
		}
	}
	return out
}

type fakeMarkers struct {
	mu      sync.Mutex
	done    map[string]bool
	lookErr error
}

func (f *fakeMarkers) IsProcessed(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookErr != nil {
		return false, f.lookErr
	}
	return f.done[id], nil
}

func (f *fakeMarkers) MarkProcessed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done == nil {
		f.done = map[string]bool{}
	}
	f.done[id] = true
	return nil
}

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) SendRaw(topic, key string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, key)
	return nil
}
