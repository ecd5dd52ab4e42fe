package models

import "time"

// TweetMessage is the queue payload emitted once per persisted Post.
// Field names follow the /tweet worker contract; Timestamp is unix milliseconds.
type TweetMessage struct {
	TweetID   string `json:"tweetId"`
	UserID    string `json:"userId"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

func NewTweetMessage(p *Post, enqueuedAt time.Time) *TweetMessage {
	return &TweetMessage{
		TweetID:   p.ID,
		UserID:    p.AuthorID,
		Content:   p.Content,
		Timestamp: enqueuedAt.UnixMilli(),
	}
}

func (m *TweetMessage) EnqueuedAt() time.Time {
	return time.UnixMilli(m.Timestamp)
}
