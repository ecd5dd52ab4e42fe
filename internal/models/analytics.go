package models

import "time"

const AnalyticsEventCreated = "created"

// AnalyticsEvent is unique on (post_id, event).
type AnalyticsEvent struct {
	ID        int64     `db:"id"`
	PostID    string    `db:"post_id"`
	Event     string    `db:"event"`
	Timestamp time.Time `db:"timestamp"`
}
