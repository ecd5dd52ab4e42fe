package models

import "time"

const NotificationTypeMention = "mention"

// Notification is unique on (post_id, type, target_username), so replays are no-ops.
type Notification struct {
	ID             int64     `db:"id"`
	Type           string    `db:"type"`
	ActorID        string    `db:"actor_id"`
	TargetUsername string    `db:"target_username"`
	PostID         string    `db:"post_id"`
	CreatedAt      time.Time `db:"created_at"`
}

func NewMentionNotifications(msg *TweetMessage, usernames []string) []Notification {
	out := make([]Notification, 0, len(usernames))
	for _, u := range usernames {
		out = append(out, Notification{
			Type:           NotificationTypeMention,
			ActorID:        msg.UserID,
			TargetUsername: u,
			PostID:         msg.TweetID,
		})
	}
	return out
}
