package repository

import (
	"context"
	"fmt"

	"tweet_ingestion/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FanoutRepository stores the side effects of a processed queue message.
// Every insert is keyed by its natural key and ignores conflicts, so a redelivered
// message writes nothing new.
type FanoutRepository struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewFanoutRepository(db *pgxpool.Pool) *FanoutRepository {
	return &FanoutRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// SaveFanout writes notifications and the analytics event in one transaction.
func (r *FanoutRepository) SaveFanout(ctx context.Context, notifications []models.Notification, event models.AnalyticsEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.insertNotificationsTx(ctx, tx, notifications); err != nil {
		return err
	}
	if err := r.insertAnalyticsTx(ctx, tx, event); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *FanoutRepository) insertNotificationsTx(ctx context.Context, tx pgx.Tx, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	q := r.sb.
		Insert("notifications").
		Columns("type", "actor_id", "target_username", "post_id")
	for _, n := range notifications {
		q = q.Values(n.Type, n.ActorID, n.TargetUsername, n.PostID)
	}
	q = q.Suffix("ON CONFLICT (post_id, type, target_username) DO NOTHING")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build notifications insert: %w", err)
	}
	if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert notifications: %w", err)
	}
	return nil
}

func (r *FanoutRepository) insertAnalyticsTx(ctx context.Context, tx pgx.Tx, ev models.AnalyticsEvent) error {
	if ev.PostID == "" || ev.Event == "" {
		return fmt.Errorf("analytics event is incomplete")
	}

	q := r.sb.
		Insert("analytics").
		Columns("post_id", "event", "timestamp").
		Values(ev.PostID, ev.Event, ev.Timestamp).
		Suffix("ON CONFLICT (post_id, event) DO NOTHING")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build analytics insert: %w", err)
	}
	if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert analytics: %w", err)
	}
	return nil
}
