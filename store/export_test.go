package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"postviews/api/models"
)

// GetActiveViewer returns the presence row for one session, or nil.
func (s *ViewStore) GetActiveViewer(ctx context.Context, contentID, sessionID string) (*models.ActiveViewer, error) {
	var (
		v      models.ActiveViewer
		userID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT content_id, session_id, user_id, last_active
		FROM active_viewers
		WHERE content_id = ? AND session_id = ?
	`), contentID, sessionID).Scan(&v.ContentID, &v.SessionID, &userID, &v.LastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active viewer: %w", err)
	}
	v.UserID = stringPtr(userID)
	return &v, nil
}

// CountViewEvents counts canonical view rows for one content id.
func (s *ViewStore) CountViewEvents(ctx context.Context, contentID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		"SELECT COUNT(*) FROM view_events WHERE content_id = ?",
	), contentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count view events: %w", err)
	}
	return n, nil
}
