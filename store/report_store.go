// api/store/report_store.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"postviews/api/analytics"
	"postviews/api/database"
	"postviews/api/models"
)

// ReportStore answers reporting queries over view_events and maintains the
// daily_stats roll-up.
type ReportStore struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewReportStore(c *database.DBClient) *ReportStore {
	return &ReportStore{db: c.DB, dialect: c.Dialect}
}

// viewMetrics is shared by the period report and the daily roll-up so both
// count views the same way. An anonymous viewer is identified by ip and
// user agent.
const viewMetrics = `
	COUNT(*),
	COUNT(DISTINCT COALESCE(viewer_id, ip_address || '|' || user_agent)),
	COUNT(DISTINCT viewer_id),
	SUM(CASE WHEN viewer_id IS NULL THEN 1 ELSE 0 END)`

// CountViewsByPeriod groups view events in [from, to) by period label.
// Periods without events are absent from the result.
func (s *ReportStore) CountViewsByPeriod(ctx context.Context, from, to time.Time, g analytics.Granularity, contentID string) (map[string]models.AggregatedPeriod, error) {
	bucket, err := s.dialect.Bucket(string(g), "viewed_at")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", analytics.ErrInvalidGranularity, err)
	}

	where := "WHERE viewed_at >= ? AND viewed_at < ?"
	args := []any{from.UTC(), to.UTC()}
	if contentID != "" {
		where += " AND content_id = ?"
		args = append(args, contentID)
	}

	query := fmt.Sprintf(`
		SELECT %s AS bucket, %s
		FROM view_events
		%s
		GROUP BY bucket
		ORDER BY bucket ASC
	`, bucket, viewMetrics, where)

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query views by period: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.AggregatedPeriod)
	for rows.Next() {
		var p models.AggregatedPeriod
		if err := rows.Scan(&p.Period, &p.TotalViews, &p.UniqueViews, &p.RegisteredUserViews, &p.AnonymousViews); err != nil {
			return nil, fmt.Errorf("failed to scan period row: %w", err)
		}
		out[p.Period] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating period rows: %w", err)
	}

	return out, nil
}

// RebuildDailyStats recomputes daily_stats for the UTC day containing day.
// Existing rows are overwritten, so running it twice gives the same result.
// It returns the number of content ids written.
func (s *ReportStore) RebuildDailyStats(ctx context.Context, day time.Time) (int, error) {
	start := analytics.Daily.PeriodStart(day)
	end := analytics.Daily.Next(start)
	label := start.Format(analytics.LabelLayout)
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin daily stats rebuild: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, s.dialect.Rebind(fmt.Sprintf(`
		SELECT content_id, %s
		FROM view_events
		WHERE viewed_at >= ? AND viewed_at < ?
		GROUP BY content_id
	`, viewMetrics)), start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate daily views: %w", err)
	}

	var stats []models.DailyStat
	for rows.Next() {
		st := models.DailyStat{Date: label, UpdatedAt: now}
		if err := rows.Scan(&st.ContentID, &st.TotalViews, &st.UniqueViews, &st.RegisteredViews, &st.AnonymousViews); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan daily views: %w", err)
		}
		stats = append(stats, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating daily views: %w", err)
	}

	upsert := s.dialect.Rebind(`
		INSERT INTO daily_stats (content_id, date, total_views, unique_views, registered_views, anonymous_views, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (content_id, date) DO UPDATE SET
			total_views      = excluded.total_views,
			unique_views     = excluded.unique_views,
			registered_views = excluded.registered_views,
			anonymous_views  = excluded.anonymous_views,
			updated_at       = excluded.updated_at
	`)
	for _, st := range stats {
		if _, err := tx.ExecContext(ctx, upsert,
			st.ContentID, st.Date, st.TotalViews, st.UniqueViews, st.RegisteredViews, st.AnonymousViews, st.UpdatedAt,
		); err != nil {
			return 0, fmt.Errorf("failed to upsert daily stat for %s: %w", st.ContentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit daily stats rebuild: %w", err)
	}
	return len(stats), nil
}

// ListDailyStats returns persisted roll-ups between the two YYYY-MM-DD
// labels inclusive, ordered by date then content id.
func (s *ReportStore) ListDailyStats(ctx context.Context, contentID, startLabel, endLabel string) ([]models.DailyStat, error) {
	query := `
		SELECT content_id, date, total_views, unique_views, registered_views, anonymous_views, updated_at
		FROM daily_stats
		WHERE date >= ? AND date <= ?`
	args := []any{startLabel, endLabel}
	if contentID != "" {
		query += " AND content_id = ?"
		args = append(args, contentID)
	}
	query += " ORDER BY date ASC, content_id ASC"

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	stats := []models.DailyStat{}
	for rows.Next() {
		var st models.DailyStat
		if err := rows.Scan(&st.ContentID, &st.Date, &st.TotalViews, &st.UniqueViews,
			&st.RegisteredViews, &st.AnonymousViews, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily stats: %w", err)
	}
	return stats, nil
}
