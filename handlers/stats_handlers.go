// api/handlers/stats_handlers.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"postviews/api/analytics"
	"postviews/api/metrics"
	"postviews/api/models"
	"postviews/api/utils"
)

// DailyStatsStore maintains and serves the daily roll-up.
type DailyStatsStore interface {
	RebuildDailyStats(ctx context.Context, day time.Time) (int, error)
	ListDailyStats(ctx context.Context, contentID, startLabel, endLabel string) ([]models.DailyStat, error)
}

// ViewReader reads presence and per-session engagement.
type ViewReader interface {
	CountActiveViewers(ctx context.Context, contentID string, since time.Time) (int64, error)
	GetEngagement(ctx context.Context, contentID, sessionID string) (*models.SessionEngagement, error)
}

type StatsHandlers struct {
	Reporter *analytics.Reporter
	Daily    DailyStatsStore
	Views    ViewReader
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewStatsHandlers(r *analytics.Reporter, daily DailyStatsStore, views ViewReader, m *metrics.Metrics, log *zap.Logger) *StatsHandlers {
	return &StatsHandlers{Reporter: r, Daily: daily, Views: views, metrics: m, log: log, now: time.Now}
}

// GetViewStats returns one entry per period between start and end,
// zero-filled where nothing was viewed.
func (h *StatsHandlers) GetViewStats(c *gin.Context) {
	g, err := analytics.ParseGranularity(c.DefaultQuery("granularity", string(analytics.Daily)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "granularity must be one of daily, monthly, yearly"})
		return
	}

	start, end, err := utils.ParseDateRange(c.Query("start"), c.Query("end"), h.now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	periods, err := h.Reporter.Report(ctx, start, end, g, c.Query("content_id"))
	if err != nil {
		if errors.Is(err, analytics.ErrInvalidGranularity) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("failed to build view report", zap.String("granularity", string(g)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve view statistics"})
		return
	}

	c.JSON(http.StatusOK, periods)
}

// RebuildDailyStats is the entry point for the external scheduler. It
// defaults to yesterday (UTC) and is safe to call repeatedly.
func (h *StatsHandlers) RebuildDailyStats(c *gin.Context) {
	yesterday := analytics.Daily.PeriodStart(h.now()).AddDate(0, 0, -1)
	day, err := utils.ParseDate(c.Query("date"), yesterday)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Minute)
	defer cancel()

	n, err := h.Daily.RebuildDailyStats(ctx, day)
	if err != nil {
		h.metrics.DailyRebuilds.WithLabelValues("error").Inc()
		h.log.Error("daily stats rebuild failed", zap.String("date", day.Format(utils.DateLayout)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rebuild daily statistics"})
		return
	}
	h.metrics.DailyRebuilds.WithLabelValues("ok").Inc()

	c.JSON(http.StatusOK, gin.H{
		"date":          day.Format(utils.DateLayout),
		"content_count": n,
	})
}

func (h *StatsHandlers) GetDailyStats(c *gin.Context) {
	start, end, err := utils.ParseDateRange(c.Query("start"), c.Query("end"), h.now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	stats, err := h.Daily.ListDailyStats(ctx, c.Query("content_id"),
		start.Format(utils.DateLayout), end.Format(utils.DateLayout))
	if err != nil {
		h.log.Error("failed to list daily stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve daily statistics"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *StatsHandlers) GetActiveViewers(c *gin.Context) {
	within := 5 * time.Minute
	if v := c.Query("within"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "within must be a positive duration such as 5m"})
			return
		}
		within = d
	}

	contentID := c.Query("content_id")
	n, err := h.Views.CountActiveViewers(c.Request.Context(), contentID, h.now().Add(-within))
	if err != nil {
		h.log.Error("failed to count active viewers", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count active viewers"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"content_id":     contentID,
		"within":         within.String(),
		"active_viewers": n,
	})
}

// GetSessionEngagement returns the ratcheted engagement of one session on
// one piece of content.
func (h *StatsHandlers) GetSessionEngagement(c *gin.Context) {
	contentID, sessionID := c.Query("content_id"), c.Query("session_id")
	if contentID == "" || sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content_id and session_id are required"})
		return
	}

	eng, err := h.Views.GetEngagement(c.Request.Context(), contentID, sessionID)
	if err != nil {
		h.log.Error("failed to load session engagement", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve engagement"})
		return
	}
	if eng == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No engagement recorded for this session"})
		return
	}

	c.JSON(http.StatusOK, eng)
}
