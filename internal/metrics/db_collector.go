package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// StartDBCollectors refreshes the outbox and dead-letter gauges every interval until ctx is done.
func StartDBCollectors(ctx context.Context, db *pgxpool.Pool, interval time.Duration, logger *slog.Logger) {
	if db == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		updateDBGauges(ctx, db, logger)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				updateDBGauges(ctx, db, logger)
			}
		}
	}()
}

func updateDBGauges(ctx context.Context, db *pgxpool.Pool, logger *slog.Logger) {
	updateOutboxGauges(ctx, db, logger)

	var dead int64
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letters`).Scan(&dead); err != nil {
		logger.Warn("metrics db query dead_letters", "err", err)
		return
	}
	SetDeadLetterCount(dead)
}

func updateOutboxGauges(ctx context.Context, db *pgxpool.Pool, logger *slog.Logger) {
	rows, err := db.Query(ctx, `SELECT status, COUNT(*) FROM tweet_outbox GROUP BY status`)
	if err != nil {
		logger.Warn("metrics db query tweet_outbox", "err", err)
		return
	}
	defer rows.Close()

	// statuses with no rows must read zero, not their last value
	counts := map[string]int64{"pending": 0, "sent": 0, "failed": 0}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			logger.Warn("metrics db scan tweet_outbox", "err", err)
			return
		}
		counts[status] = n
	}
	for status, n := range counts {
		SetOutboxRows(status, n)
	}
}
