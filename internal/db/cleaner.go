package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// StartRetentionCleaner removes snapshots not updated within retention,
// then accounts left without snapshots, every interval until ctx is done.
func StartRetentionCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-retention)
				res, err := db.ExecContext(ctx, `
                    DELETE FROM sync_data
                     WHERE updated_at < $1
                `, cutoff)
				if err != nil {
					log.Error("failed to clean stale snapshots", zap.Error(err))
					continue
				}
				rows, _ := res.RowsAffected()
				if rows == 0 {
					continue
				}
				log.Info("cleaned stale snapshots", zap.Int64("removed", rows))

				if _, err := db.ExecContext(ctx, `
                    DELETE FROM accounts a
                     WHERE NOT EXISTS (SELECT 1 FROM sync_data s WHERE s.user_hash = a.user_hash)
                       AND a.created_at < $1
                `, cutoff); err != nil {
					log.Error("failed to clean empty accounts", zap.Error(err))
				}
			}
		}
	}()
}
