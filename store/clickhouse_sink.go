// api/store/clickhouse_sink.go
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"postviews/api/database"
	"postviews/api/models"
)

// ClickHouseSink mirrors committed view events into ClickHouse for long
// term analysis. The relational store stays the source of truth.
type ClickHouseSink struct {
	DB  *database.ClickHouseClient
	log *zap.Logger
}

func NewClickHouseSink(ch *database.ClickHouseClient, log *zap.Logger) *ClickHouseSink {
	return &ClickHouseSink{DB: ch, log: log}
}

// EnsureSchema creates the mirror table if it does not exist.
func (s *ClickHouseSink) EnsureSchema(ctx context.Context) error {
	err := s.DB.Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS view_events (
			id         String,
			content_id String,
			viewer_id  Nullable(String),
			ip_address String,
			user_agent String,
			referrer   String,
			viewed_at  DateTime64(3, 'UTC')
		) ENGINE = MergeTree
		ORDER BY (content_id, viewed_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse view_events table: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) MirrorViews(ctx context.Context, views []models.ViewEvent) error {
	if len(views) == 0 {
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO view_events (
			id, content_id, viewer_id, ip_address, user_agent, referrer, viewed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, v := range views {
		if err := batch.Append(
			v.ID,
			v.ContentID,
			v.ViewerID,
			v.IPAddress,
			v.UserAgent,
			v.Referrer,
			v.ViewedAt,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append view %s to batch: %w", v.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	s.log.Debug("mirrored view events to ClickHouse", zap.Int("count", len(views)))
	return nil
}
