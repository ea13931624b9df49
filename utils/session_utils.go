package utils

import "github.com/google/uuid"

// SessionCookieName holds the anonymous viewing session id.
const SessionCookieName = "pv_session"

// NewSessionID mints an opaque viewing session identifier.
func NewSessionID() string {
	return uuid.NewString()
}
