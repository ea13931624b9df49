// api/handlers/view_handlers.go
package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"postviews/api/analytics"
	"postviews/api/middleware"
	"postviews/api/models"
	"postviews/api/utils"
)

const dashboardViewerPrefix = "dash:"

type ViewHandlers struct {
	Tracker       *analytics.Tracker
	SessionTTL    time.Duration
	SecureCookies bool
	log           *zap.Logger
}

func NewViewHandlers(t *analytics.Tracker, sessionTTL time.Duration, secureCookies bool, log *zap.Logger) *ViewHandlers {
	return &ViewHandlers{Tracker: t, SessionTTL: sessionTTL, SecureCookies: secureCookies, log: log}
}

// TrackView is the ingress endpoint for page view and engagement events.
// Pages call it fire-and-forget; failures are still reported honestly.
func (h *ViewHandlers) TrackView(c *gin.Context) {
	var req models.ViewTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	newSession := false
	if req.SessionID == "" {
		if cookie, err := c.Cookie(utils.SessionCookieName); err == nil && cookie != "" {
			req.SessionID = cookie
		} else {
			req.SessionID = utils.NewSessionID()
			newSession = true
		}
	}

	// Reader ids from the blog win. Dashboard accounts live in their own
	// id space and are prefixed so they never collide with readers.
	if req.ViewerID == nil || strings.TrimSpace(*req.ViewerID) == "" {
		if uid, ok := c.Get(middleware.ContextUserID); ok {
			if id, ok := uid.(int); ok {
				viewer := dashboardViewerPrefix + strconv.Itoa(id)
				req.ViewerID = &viewer
			}
		}
	}
	if req.IPAddress == "" {
		req.IPAddress = c.ClientIP()
	}
	if req.UserAgent == "" {
		req.UserAgent = c.Request.UserAgent()
	}
	if req.Referrer == "" {
		req.Referrer = c.Request.Referer()
	}

	res, err := h.Tracker.Track(c.Request.Context(), req)
	if err != nil {
		if analytics.IsValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Warn("failed to track view",
			zap.String("content_id", req.ContentID),
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record view"})
		return
	}

	if newSession {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(utils.SessionCookieName, res.SessionID, int(h.SessionTTL.Seconds()), "/", "", h.SecureCookies, true)
		res.NewSession = true
	}

	c.JSON(http.StatusOK, res)
}
