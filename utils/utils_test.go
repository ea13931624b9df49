package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postviews/api/analytics"
	"postviews/api/models"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("s3cret", time.Hour)
	token, err := m.GenerateJWT(&models.User{ID: 7, Email: "editor@example.com"})
	require.NoError(t, err)

	claims, err := m.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, 7, claims.UserID)
	assert.Equal(t, "editor@example.com", claims.Email)
	assert.Equal(t, "7", claims.Subject)
}

func TestJWTManager_RejectsForeignSecret(t *testing.T) {
	token, err := NewJWTManager("one", time.Hour).GenerateJWT(&models.User{ID: 1})
	require.NoError(t, err)

	_, err = NewJWTManager("two", time.Hour).ValidateJWT(token)
	assert.Error(t, err)
}

func TestJWTManager_RejectsExpired(t *testing.T) {
	m := NewJWTManager("s3cret", time.Nanosecond)
	token, err := m.GenerateJWT(&models.User{ID: 1})
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)
	_, err = m.ValidateJWT(token)
	assert.Error(t, err)
}

func TestNewSessionID_Unique(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestParseDateRange(t *testing.T) {
	now := time.Date(2024, 5, 20, 15, 4, 5, 0, time.UTC)

	start, end, err := ParseDateRange("", "", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), end)
	assert.Equal(t, time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC), start)

	start, end, err = ParseDateRange("2024-01-01", "2024-01-03", now)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", start.Format(DateLayout))
	assert.Equal(t, "2024-01-03", end.Format(DateLayout))

	_, _, err = ParseDateRange("01/02/2024", "", now)
	assert.ErrorIs(t, err, analytics.ErrInvalidRange)
	_, _, err = ParseDateRange("", "tomorrow", now)
	assert.Error(t, err)
}
