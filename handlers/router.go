// api/handlers/router.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"postviews/api/middleware"
	"postviews/api/utils"
)

// Pinger reports whether the primary database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps is everything the HTTP surface needs.
type RouterDeps struct {
	Auth     *AuthHandlers
	Views    *ViewHandlers
	Stats    *StatsHandlers
	JWT      *utils.JWTManager
	APIKey   string
	FEOrigin string
	DB       Pinger
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(d.Log))
	r.Use(middleware.CORSMiddleware(d.FEOrigin))

	r.GET("/healthz", health(d.DB))
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	{
		api.POST("/signup", d.Auth.Signup)
		api.POST("/login", d.Auth.Login)
		api.POST("/logout", d.Auth.Logout)

		api.POST("/views", middleware.OptionalAuth(d.JWT), d.Views.TrackView)

		stats := api.Group("/stats")
		stats.Use(middleware.AuthRequired(d.JWT, d.APIKey, d.Log))
		{
			stats.GET("/views", d.Stats.GetViewStats)
			stats.GET("/daily", d.Stats.GetDailyStats)
			stats.POST("/daily/rebuild", d.Stats.RebuildDailyStats)
			stats.GET("/active", d.Stats.GetActiveViewers)
			stats.GET("/engagement", d.Stats.GetSessionEngagement)
		}
	}

	return r
}

func health(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
