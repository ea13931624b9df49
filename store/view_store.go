// api/store/view_store.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"postviews/api/analytics"
	"postviews/api/database"
	"postviews/api/models"
)

// DefaultDedupWindow is the rolling window within which repeated views of
// the same content collapse into one view event.
const DefaultDedupWindow = 5 * time.Minute

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ViewStore owns view_events, session_engagements and active_viewers.
type ViewStore struct {
	db      *sql.DB
	dialect database.Dialect
	window  time.Duration
}

func NewViewStore(c *database.DBClient, window time.Duration) *ViewStore {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &ViewStore{db: c.DB, dialect: c.Dialect, window: window}
}

// TrackView runs the dedup gate, the engagement ratchet and the presence
// upsert for one incoming event inside a single transaction. Either all
// three take effect or none do.
func (s *ViewStore) TrackView(ctx context.Context, req models.ViewTrackRequest, now time.Time) (models.TrackResult, error) {
	now = now.UTC()
	result := models.TrackResult{SessionID: req.SessionID}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, &analytics.TransactionError{Op: "begin", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	if s.dialect.LockContent != "" {
		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(s.dialect.LockContent), req.ContentID); err != nil {
			return result, &analytics.TransactionError{Op: "lock content", Err: err}
		}
	}

	record, err := s.shouldRecordView(ctx, tx, req.ContentID, now)
	if err != nil {
		return result, &analytics.TransactionError{Op: "dedup check", Err: err}
	}

	if record {
		view := models.ViewEvent{
			ID:        uuid.NewString(),
			ContentID: req.ContentID,
			ViewerID:  req.ViewerID,
			IPAddress: req.IPAddress,
			UserAgent: req.UserAgent,
			Referrer:  req.Referrer,
			ViewedAt:  now,
		}
		if err := s.insertViewEvent(ctx, tx, view); err != nil {
			return result, &analytics.TransactionError{Op: "insert view", Err: err}
		}
		result.Recorded = true
		result.ViewID = view.ID
		result.View = &view
	}

	if err := s.recordEngagement(ctx, tx, req, now); err != nil {
		return result, &analytics.TransactionError{Op: "record engagement", Err: err}
	}

	if err := s.touchPresence(ctx, tx, req.ContentID, req.SessionID, req.ViewerID, now); err != nil {
		return result, &analytics.TransactionError{Op: "touch presence", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return models.TrackResult{SessionID: req.SessionID}, &analytics.TransactionError{Op: "commit", Err: err}
	}

	return result, nil
}

// ShouldRecordView is the dedup gate on its own: it reports whether no view
// of contentID exists within the dedup window ending at now. TrackView runs
// the same check inside its transaction.
func (s *ViewStore) ShouldRecordView(ctx context.Context, contentID string, now time.Time) (bool, error) {
	return s.shouldRecordView(ctx, s.db, contentID, now.UTC())
}

func (s *ViewStore) shouldRecordView(ctx context.Context, q queryer, contentID string, now time.Time) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT 1 FROM view_events
		WHERE content_id = ? AND viewed_at >= ?
		LIMIT 1
	`), contentID, now.Add(-s.window)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

func (s *ViewStore) insertViewEvent(ctx context.Context, q queryer, v models.ViewEvent) error {
	_, err := q.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO view_events (id, content_id, viewer_id, ip_address, user_agent, referrer, viewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), v.ID, v.ContentID, nullString(v.ViewerID), v.IPAddress, v.UserAgent, v.Referrer, v.ViewedAt.UTC())
	return err
}

// RecordEngagement applies one engagement sample with the same ratchet
// TrackView uses, for callers that report engagement without a view.
func (s *ViewStore) RecordEngagement(ctx context.Context, req models.ViewTrackRequest, now time.Time) error {
	return s.recordEngagement(ctx, s.db, req, now.UTC())
}

// recordEngagement inserts the session row on first sight. Later samples
// only ratchet scroll_depth and time_spent upwards; device, location and
// entry point keep their first values.
func (s *ViewStore) recordEngagement(ctx context.Context, q queryer, req models.ViewTrackRequest, now time.Time) error {
	query := fmt.Sprintf(`
		INSERT INTO session_engagements (
			content_id, session_id, user_id, scroll_depth, time_spent,
			device_type, browser, os, country, region, city, entry_point,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (content_id, session_id) DO UPDATE SET
			scroll_depth = %[1]s(session_engagements.scroll_depth, excluded.scroll_depth),
			time_spent   = %[1]s(session_engagements.time_spent, excluded.time_spent),
			user_id      = COALESCE(session_engagements.user_id, excluded.user_id),
			updated_at   = excluded.updated_at
	`, s.dialect.Greatest)

	_, err := q.ExecContext(ctx, s.dialect.Rebind(query),
		req.ContentID, req.SessionID, nullString(req.ViewerID), req.ScrollDepth, req.TimeSpent,
		req.DeviceInfo.Type, req.DeviceInfo.Browser, req.DeviceInfo.OS,
		req.Location.Country, req.Location.Region, req.Location.City, nullString(req.EntryPoint),
		now, now,
	)
	return err
}

// TouchPresence upserts a presence heartbeat without recording a view.
func (s *ViewStore) TouchPresence(ctx context.Context, contentID, sessionID string, userID *string, now time.Time) error {
	return s.touchPresence(ctx, s.db, contentID, sessionID, userID, now.UTC())
}

// touchPresence overwrites last_active with now; the most recent call wins.
func (s *ViewStore) touchPresence(ctx context.Context, q queryer, contentID, sessionID string, userID *string, now time.Time) error {
	_, err := q.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO active_viewers (content_id, session_id, user_id, last_active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (content_id, session_id) DO UPDATE SET
			last_active = excluded.last_active,
			user_id     = COALESCE(excluded.user_id, active_viewers.user_id)
	`), contentID, sessionID, nullString(userID), now)
	return err
}

// GetEngagement returns the engagement row for one session, or nil.
func (s *ViewStore) GetEngagement(ctx context.Context, contentID, sessionID string) (*models.SessionEngagement, error) {
	var (
		e          models.SessionEngagement
		userID     sql.NullString
		entryPoint sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT content_id, session_id, user_id, scroll_depth, time_spent,
		       device_type, browser, os, country, region, city, entry_point,
		       created_at, updated_at
		FROM session_engagements
		WHERE content_id = ? AND session_id = ?
	`), contentID, sessionID).Scan(
		&e.ContentID, &e.SessionID, &userID, &e.ScrollDepth, &e.TimeSpent,
		&e.DeviceInfo.Type, &e.DeviceInfo.Browser, &e.DeviceInfo.OS,
		&e.Location.Country, &e.Location.Region, &e.Location.City, &entryPoint,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get engagement: %w", err)
	}
	e.UserID = stringPtr(userID)
	e.EntryPoint = stringPtr(entryPoint)
	return &e, nil
}

// CountActiveViewers counts sessions seen since the given time. An empty
// contentID counts across all content.
func (s *ViewStore) CountActiveViewers(ctx context.Context, contentID string, since time.Time) (int64, error) {
	query := "SELECT COUNT(*) FROM active_viewers WHERE last_active >= ?"
	args := []any{since.UTC()}
	if contentID != "" {
		query += " AND content_id = ?"
		args = append(args, contentID)
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, s.dialect.Rebind(query), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count active viewers: %w", err)
	}
	return n, nil
}

// PruneActiveViewers deletes presence rows idle since before olderThan.
// It is meant for an external sweeper and is never called while tracking.
func (s *ViewStore) PruneActiveViewers(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(
		"DELETE FROM active_viewers WHERE last_active < ?",
	), olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune active viewers: %w", err)
	}
	return res.RowsAffected()
}

// nullString maps nil and blank values to NULL.
func nullString(s *string) sql.NullString {
	if s == nil || strings.TrimSpace(*s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
