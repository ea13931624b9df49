// api/models/view.go
package models

import "time"

// ViewEvent is one canonical view of a piece of content. Rows are written
// at most once per content per dedup window and never updated.
type ViewEvent struct {
	ID        string    `json:"id"`
	ContentID string    `json:"content_id"`
	ViewerID  *string   `json:"viewer_id,omitempty"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	Referrer  string    `json:"referrer"`
	ViewedAt  time.Time `json:"viewed_at"`
}

// DeviceInfo is resolved by the caller; this service never parses user agents.
type DeviceInfo struct {
	Type    string `json:"type"`
	Browser string `json:"browser"`
	OS      string `json:"os"`
}

// Location is resolved by the caller; this service never geolocates IPs.
type Location struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
}

// ViewTrackRequest is the payload accepted by the ingress endpoint.
// ScrollDepth is a percentage in [0, 100]; TimeSpent is in seconds.
type ViewTrackRequest struct {
	ContentID   string     `json:"content_id"`
	ViewerID    *string    `json:"viewer_id,omitempty"`
	SessionID   string     `json:"session_id"`
	IPAddress   string     `json:"ip_address"`
	UserAgent   string     `json:"user_agent"`
	Referrer    string     `json:"referrer"`
	DeviceInfo  DeviceInfo `json:"device_info"`
	Location    Location   `json:"location"`
	ScrollDepth float64    `json:"scroll_depth"`
	TimeSpent   int64      `json:"time_spent"`
	EntryPoint  *string    `json:"entry_point,omitempty"`
}

// TrackResult reports what a single tracking call did.
type TrackResult struct {
	Recorded   bool   `json:"recorded"`
	ViewID     string `json:"view_id,omitempty"`
	SessionID  string `json:"session_id"`
	NewSession bool   `json:"new_session,omitempty"`

	View *ViewEvent `json:"-"`
}

// SessionEngagement holds the running maximum of engagement metrics for one
// session on one piece of content.
type SessionEngagement struct {
	ContentID   string     `json:"content_id"`
	SessionID   string     `json:"session_id"`
	UserID      *string    `json:"user_id,omitempty"`
	ScrollDepth float64    `json:"scroll_depth"`
	TimeSpent   int64      `json:"time_spent"`
	DeviceInfo  DeviceInfo `json:"device_info"`
	Location    Location   `json:"location"`
	EntryPoint  *string    `json:"entry_point,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ActiveViewer is a presence heartbeat.
type ActiveViewer struct {
	ContentID  string    `json:"content_id"`
	SessionID  string    `json:"session_id"`
	UserID     *string   `json:"user_id,omitempty"`
	LastActive time.Time `json:"last_active"`
}

// DailyStat is the persisted per-day roll-up of view events.
type DailyStat struct {
	ContentID       string    `json:"content_id"`
	Date            string    `json:"date"`
	TotalViews      int64     `json:"total_views"`
	UniqueViews     int64     `json:"unique_views"`
	RegisteredViews int64     `json:"registered_views"`
	AnonymousViews  int64     `json:"anonymous_views"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AggregatedPeriod is one bucket of a view report. It is never persisted.
type AggregatedPeriod struct {
	Period              string `json:"period"`
	TotalViews          int64  `json:"total_views"`
	UniqueViews         int64  `json:"unique_views"`
	RegisteredUserViews int64  `json:"registered_user_views"`
	AnonymousViews      int64  `json:"anonymous_views"`
}
