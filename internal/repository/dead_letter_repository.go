package repository

import (
	"context"
	"fmt"

	"tweet_ingestion/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DeadLetterRepository struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewDeadLetterRepository(db *pgxpool.Pool) *DeadLetterRepository {
	return &DeadLetterRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// SaveDeadLetter stores dl once per topic, partition and offset.
func (r *DeadLetterRepository) SaveDeadLetter(ctx context.Context, dl *models.DeadLetter) error {
	if dl == nil {
		return fmt.Errorf("dead letter is nil")
	}
	if dl.Topic == "" {
		return fmt.Errorf("topic is empty")
	}
	if dl.Payload == nil {
		dl.Payload = []byte{}
	}

	q := r.sb.
		Insert("dead_letters").
		Columns("topic", "partition", "kafka_offset", "message_key", "payload", "attempts", "last_error").
		Values(dl.Topic, dl.Partition, dl.Offset, dl.Key, dl.Payload, dl.Attempts, dl.LastError).
		// a redelivered batch dead-letters the same offset again; keep the first row
		Suffix("ON CONFLICT (topic, partition, kafka_offset) DO UPDATE SET " +
			"attempts = GREATEST(dead_letters.attempts, EXCLUDED.attempts) " +
			"RETURNING id, created_at")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build dead letter insert: %w", err)
	}

	if err := r.db.QueryRow(ctx, sqlStr, args...).Scan(&dl.ID, &dl.CreatedAt); err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}
