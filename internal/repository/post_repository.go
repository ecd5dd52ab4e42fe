package repository

import (
	"context"
	"fmt"

	"tweet_ingestion/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostRepository struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewPostRepository(db *pgxpool.Pool) *PostRepository {
	return &PostRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Create inserts a tweet in a single statement; id and created_at come back from the database.
func (r *PostRepository) Create(ctx context.Context, authorID, content string) (*models.Post, error) {
	if authorID == "" {
		return nil, fmt.Errorf("author_id is empty")
	}
	if content == "" {
		return nil, fmt.Errorf("content is empty")
	}

	q := r.sb.
		Insert("tweets").
		Columns("content", "author_id").
		Values(content, authorID).
		Suffix("RETURNING id::text, content, author_id, created_at")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build tweet insert: %w", err)
	}

	var p models.Post
	if err := r.db.QueryRow(ctx, sqlStr, args...).Scan(&p.ID, &p.Content, &p.AuthorID, &p.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert tweet: %w", err)
	}
	return &p, nil
}
