package repository

import (
	"context"
	"errors"
	"fmt"

	"tweet_ingestion/internal/models"

	"github.com/jackc/pgx/v5"
)

func getPost(ctx context.Context, id string) (*models.Post, error) {
	var p models.Post
	err := testPool.QueryRow(ctx,
		`SELECT id::text, content, author_id, created_at FROM tweets WHERE id = $1`, id,
	).Scan(&p.ID, &p.Content, &p.AuthorID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// countRows counts rows of table that belong to postID.
func countRows(ctx context.Context, table, postID string) (int, error) {
	var n int
	err := testPool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE post_id = $1`, table), postID).Scan(&n)
	return n, err
}

func countDeadLetters(ctx context.Context, topic string, partition int32, offset int64) (int, error) {
	var n int
	err := testPool.QueryRow(ctx,
		`SELECT COUNT(*) FROM dead_letters WHERE topic = $1 AND partition = $2 AND kafka_offset = $3`,
		topic, partition, offset,
	).Scan(&n)
	return n, err
}
