package repository

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"testing"
	"time"

	"tweet_ingestion/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("tweets"),
		postgres.WithUsername("tweets"),
		postgres.WithPassword("tweets"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Printf("postgres container unavailable, repository tests will be skipped: %v", err)
		os.Exit(m.Run())
	}

	code := func() int {
		defer func() {
			if err := container.Terminate(ctx); err != nil {
				log.Printf("failed to terminate container: %v", err)
			}
		}()

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			log.Printf("connection string: %v", err)
			return 1
		}

		pool, err := NewPool(ctx, dsn)
		if err != nil {
			log.Printf("connect: %v", err)
			return 1
		}
		defer pool.Close()

		schema, err := os.ReadFile("../../migrations/001_init.sql")
		if err != nil {
			log.Printf("read migration: %v", err)
			return 1
		}
		if _, err := pool.Exec(ctx, string(schema)); err != nil {
			log.Printf("apply migration: %v", err)
			return 1
		}

		testPool = pool
		return m.Run()
	}()

	os.Exit(code)
}

func requireDB(t *testing.T) {
	t.Helper()
	if testPool == nil {
		t.Skip("postgres not available")
	}
}

func TestPostRepository_CreateAndGet(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := NewPostRepository(testPool)

	p, err := repo.Create(ctx, "author-1", "Hello @alice")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Hello @alice", p.Content)
	assert.Equal(t, "author-1", p.AuthorID)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := getPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.Content, got.Content)

	_, err = getPost(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostRepository_CreateRejectsEmpty(t *testing.T) {
	requireDB(t)
	repo := NewPostRepository(testPool)

	_, err := repo.Create(context.Background(), "author-1", "")
	assert.Error(t, err)
}

func TestFanoutRepository_SaveFanoutIsIdempotent(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := NewFanoutRepository(testPool)

	msg := &models.TweetMessage{TweetID: uuid.NewString(), UserID: "author-1", Content: "hi @bob @carol"}
	notifications := models.NewMentionNotifications(msg, []string{"bob", "carol"})
	event := models.AnalyticsEvent{PostID: msg.TweetID, Event: models.AnalyticsEventCreated, Timestamp: msg.EnqueuedAt()}

	require.NoError(t, repo.SaveFanout(ctx, notifications, event))
	require.NoError(t, repo.SaveFanout(ctx, notifications, event))

	n, err := countRows(ctx, "notifications", msg.TweetID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	a, err := countRows(ctx, "analytics", msg.TweetID)
	require.NoError(t, err)
	assert.Equal(t, 1, a)
}

func TestFanoutRepository_SaveFanoutWithoutMentions(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := NewFanoutRepository(testPool)

	postID := uuid.NewString()
	event := models.AnalyticsEvent{PostID: postID, Event: models.AnalyticsEventCreated}

	require.NoError(t, repo.SaveFanout(ctx, nil, event))

	n, err := countRows(ctx, "notifications", postID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFanoutRepository_SaveFanoutRollsBackOnAnalyticsError(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := NewFanoutRepository(testPool)

	postID := uuid.NewString()
	notifications := []models.Notification{{
		Type: models.NotificationTypeMention, ActorID: "a", TargetUsername: "bob", PostID: postID,
	}}

	err := repo.SaveFanout(ctx, notifications, models.AnalyticsEvent{PostID: postID})
	require.Error(t, err)

	n, err := countRows(ctx, "notifications", postID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxRepository_Lifecycle(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := NewOutboxRepository(testPool, 2)

	post, err := NewPostRepository(testPool).Create(ctx, "user-1", "hi @bob")
	require.NoError(t, err)
	payload, err := json.Marshal(models.TweetMessage{TweetID: post.ID, UserID: post.AuthorID, Content: post.Content})
	require.NoError(t, err)

	msg := &models.OutboxMessage{TweetID: post.ID, Topic: "tweet_created", Payload: payload}
	require.NoError(t, repo.Add(ctx, msg))
	assert.NotZero(t, msg.ID)
	assert.Equal(t, models.OutboxStatusPending, msg.Status)

	again := &models.OutboxMessage{TweetID: post.ID, Topic: "tweet_created", Payload: payload}
	require.NoError(t, repo.Add(ctx, again))
	assert.Equal(t, msg.ID, again.ID, "one outbox row per tweet")

	claimed, err := repo.ClaimDue(ctx, 100, time.Minute)
	require.NoError(t, err)
	assert.True(t, containsMessage(claimed, msg.ID))

	claimed, err = repo.ClaimDue(ctx, 100, time.Minute)
	require.NoError(t, err)
	assert.False(t, containsMessage(claimed, msg.ID), "leased rows are not claimed twice")

	require.NoError(t, repo.MarkRetry(ctx, msg.ID, "broker down", 0))
	claimed, err = repo.ClaimDue(ctx, 100, time.Minute)
	require.NoError(t, err)
	assert.True(t, containsMessage(claimed, msg.ID), "still pending below the attempt cap")

	require.NoError(t, repo.MarkRetry(ctx, msg.ID, "broker down", 0))
	claimed, err = repo.ClaimDue(ctx, 100, time.Minute)
	require.NoError(t, err)
	assert.False(t, containsMessage(claimed, msg.ID), "failed once the cap is reached")

	assert.ErrorIs(t, repo.MarkSent(ctx, -1), ErrNotFound)
}

func TestOutboxRepository_SentRowsAreCleanedUp(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := NewOutboxRepository(testPool, 0)

	post, err := NewPostRepository(testPool).Create(ctx, "user-2", "hello")
	require.NoError(t, err)
	msg := &models.OutboxMessage{TweetID: post.ID, Topic: "tweet_created", Payload: []byte(`{"tweetId":"` + post.ID + `"}`)}
	require.NoError(t, repo.Add(ctx, msg))
	require.NoError(t, repo.MarkSent(ctx, msg.ID))

	n, err := repo.DeleteSentBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	assert.ErrorIs(t, repo.MarkSent(ctx, msg.ID), ErrNotFound)
}

func TestOutboxRepository_RejectsInvalidPayload(t *testing.T) {
	requireDB(t)
	repo := NewOutboxRepository(testPool, 0)

	err := repo.Add(context.Background(), &models.OutboxMessage{TweetID: uuid.NewString(), Topic: "t", Payload: []byte("{")})
	assert.Error(t, err)
}

func TestDeadLetterRepository_Save(t *testing.T) {
	requireDB(t)
	repo := NewDeadLetterRepository(testPool)

	dl := &models.DeadLetter{
		Topic:     "tweet_created",
		Partition: 1,
		Offset:    42,
		Key:       "k",
		Payload:   []byte("not json"),
		Attempts:  5,
		LastError: "boom",
	}
	require.NoError(t, repo.SaveDeadLetter(context.Background(), dl))
	assert.NotZero(t, dl.ID)
	assert.False(t, dl.CreatedAt.IsZero())
}

func TestDeadLetterRepository_SameOffsetStoredOnce(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := NewDeadLetterRepository(testPool)

	first := &models.DeadLetter{Topic: "tweet_created", Partition: 2, Offset: 7, Payload: []byte("{"), Attempts: 1, LastError: "poison"}
	require.NoError(t, repo.SaveDeadLetter(ctx, first))

	// the same batch redelivered after a failed commit
	again := &models.DeadLetter{Topic: "tweet_created", Partition: 2, Offset: 7, Payload: []byte("{"), Attempts: 1, LastError: "poison"}
	require.NoError(t, repo.SaveDeadLetter(ctx, again))
	assert.Equal(t, first.ID, again.ID)

	n, err := countDeadLetters(ctx, "tweet_created", 2, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOutboxRepository_AddReturnsStoredRow(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := NewOutboxRepository(testPool, 0)

	post, err := NewPostRepository(testPool).Create(ctx, "user-3", "hello")
	require.NoError(t, err)
	payload := []byte(`{"tweetId":"` + post.ID + `"}`)

	msg := &models.OutboxMessage{TweetID: post.ID, Topic: "tweet_created", Payload: payload}
	require.NoError(t, repo.Add(ctx, msg))
	require.NoError(t, repo.MarkSent(ctx, msg.ID))

	again := &models.OutboxMessage{TweetID: post.ID, Topic: "tweet_created", Payload: payload}
	require.NoError(t, repo.Add(ctx, again))
	assert.Equal(t, msg.ID, again.ID)
	assert.Equal(t, models.OutboxStatusSent, again.Status, "existing row is returned unchanged")
	require.NotNil(t, again.SentAt)
}

func containsMessage(msgs []*models.OutboxMessage, id int64) bool {
	for _, m := range msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}
