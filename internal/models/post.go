package models

import "time"

// Post is a row of the tweets table. ID and CreatedAt are assigned by the database.
type Post struct {
	ID        string    `json:"id" db:"id"`
	Content   string    `json:"content" db:"content"`
	AuthorID  string    `json:"author_id" db:"author_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
