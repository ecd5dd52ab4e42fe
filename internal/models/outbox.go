package models

import (
	"encoding/json"
	"time"
)

const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
	OutboxStatusFailed  = "failed"
)

// OutboxMessage is a tweet message that could not be enqueued during the request.
// There is at most one per tweet.
type OutboxMessage struct {
	ID      int64           `db:"id"`
	TweetID string          `db:"tweet_id"`
	Topic   string          `db:"topic"`
	Payload json.RawMessage `db:"payload"`

	Status        string     `db:"status"`
	Attempts      int        `db:"attempts"`
	NextAttemptAt time.Time  `db:"next_attempt_at"`
	CreatedAt     time.Time  `db:"created_at"`
	SentAt        *time.Time `db:"sent_at"`
	LastError     string     `db:"last_error"`
}
