package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tweet_ingestion/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const outboxTable = "tweet_outbox"

var outboxColumns = []string{
	"id", "tweet_id::text", "topic", "payload", "status",
	"attempts", "next_attempt_at", "created_at", "sent_at", "last_error",
}

// OutboxRepository stores tweet messages the request path could not enqueue.
type OutboxRepository struct {
	db          *pgxpool.Pool
	sb          sq.StatementBuilderType
	maxAttempts int
}

func NewOutboxRepository(db *pgxpool.Pool, maxAttempts int) *OutboxRepository {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &OutboxRepository{
		db:          db,
		sb:          sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		maxAttempts: maxAttempts,
	}
}

// Add records msg for the relay. A second message for the same tweet keeps the stored row,
// and msg is filled from it in the same statement.
func (r *OutboxRepository) Add(ctx context.Context, msg *models.OutboxMessage) error {
	switch {
	case msg == nil:
		return errors.New("outbox message is nil")
	case msg.TweetID == "":
		return errors.New("tweet id is empty")
	case msg.Topic == "":
		return errors.New("topic is empty")
	case !json.Valid(msg.Payload):
		return errors.New("payload is not valid json")
	}

	// DO UPDATE rather than DO NOTHING so RETURNING yields the existing row too
	sqlStr, args, err := r.sb.
		Insert(outboxTable).
		Columns("tweet_id", "topic", "payload").
		Values(msg.TweetID, msg.Topic, []byte(msg.Payload)).
		Suffix("ON CONFLICT (tweet_id) DO UPDATE SET tweet_id = EXCLUDED.tweet_id RETURNING " +
			strings.Join(outboxColumns, ", ")).
		ToSql()
	if err != nil {
		return fmt.Errorf("build outbox insert: %w", err)
	}

	stored, err := scanOutbox(r.db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		return fmt.Errorf("insert outbox tweet %s: %w", msg.TweetID, err)
	}
	*msg = *stored
	return nil
}

// ClaimDue returns up to limit pending messages whose next attempt is due and pushes
// their next attempt lease into the future, so concurrent relays never pick the same row.
func (r *OutboxRepository) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*models.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}

	due := sq.Select("id").
		From(outboxTable).
		Where(sq.Eq{"status": models.OutboxStatusPending}).
		Where("next_attempt_at <= NOW()").
		OrderBy("id").
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED")

	sqlStr, args, err := r.sb.
		Update(outboxTable).
		Set("next_attempt_at", sq.Expr("NOW() + make_interval(secs => ?)", lease.Seconds())).
		Where(sq.Expr("id IN (?)", due)).
		Suffix("RETURNING " + strings.Join(outboxColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build outbox claim: %w", err)
	}

	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	defer rows.Close()

	var res []*models.OutboxMessage
	for rows.Next() {
		m, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return res, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	return r.update(ctx, id, r.sb.
		Update(outboxTable).
		Set("status", models.OutboxStatusSent).
		Set("sent_at", sq.Expr("NOW()")).
		Set("last_error", ""))
}

// MarkRetry records a failed send. The message is retried after backoff until
// maxAttempts sends have failed, then it stays failed.
func (r *OutboxRepository) MarkRetry(ctx context.Context, id int64, cause string, backoff time.Duration) error {
	if cause == "" {
		cause = "unknown error"
	}
	return r.update(ctx, id, r.sb.
		Update(outboxTable).
		Set("attempts", sq.Expr("attempts + 1")).
		Set("last_error", cause).
		Set("next_attempt_at", sq.Expr("NOW() + make_interval(secs => ?)", backoff.Seconds())).
		Set("status", sq.Expr(
			"CASE WHEN attempts + 1 >= ? THEN ? ELSE ? END",
			r.maxAttempts, models.OutboxStatusFailed, models.OutboxStatusPending,
		)))
}

// DeleteSentBefore removes sent messages older than the cutoff.
func (r *OutboxRepository) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	sqlStr, args, err := r.sb.
		Delete(outboxTable).
		Where(sq.Eq{"status": models.OutboxStatusSent}).
		Where(sq.Lt{"sent_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build outbox cleanup: %w", err)
	}

	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup outbox: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *OutboxRepository) update(ctx context.Context, id int64, q sq.UpdateBuilder) error {
	sqlStr, args, err := q.Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build outbox update: %w", err)
	}

	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update outbox %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOutbox(row pgx.Row) (*models.OutboxMessage, error) {
	var (
		m       models.OutboxMessage
		payload []byte
		sentAt  pgtype.Timestamptz
	)
	err := row.Scan(
		&m.ID,
		&m.TweetID,
		&m.Topic,
		&payload,
		&m.Status,
		&m.Attempts,
		&m.NextAttemptAt,
		&m.CreatedAt,
		&sentAt,
		&m.LastError,
	)
	if err != nil {
		return nil, fmt.Errorf("scan outbox row: %w", err)
	}

	m.Payload = payload
	if sentAt.Valid {
		t := sentAt.Time
		m.SentAt = &t
	}
	return &m, nil
}
