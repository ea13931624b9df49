// api/commands.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"postviews/api/analytics"
	"postviews/api/config"
	"postviews/api/database"
	"postviews/api/handlers"
	"postviews/api/logger"
	"postviews/api/metrics"
	"postviews/api/store"
	"postviews/api/utils"
)

const (
	tokenTTL        = 24 * time.Hour
	shutdownTimeout = 5 * time.Second
	devJWTSecret    = "postviews-dev-secret"
)

// env is the state every command starts from.
type env struct {
	cfg *config.Config
	log *zap.Logger
	db  *database.DBClient
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return nil, err
	}

	log, err := logger.New(cfg.LogLevel, cfg.ReleaseMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return nil, err
	}

	db, err := database.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("failed to open database", zap.Error(err))
		_ = log.Sync()
		return nil, err
	}

	return &env{cfg: cfg, log: log, db: db}, nil
}

func (e *env) close() {
	e.db.Close()
	_ = e.log.Sync()
}

func (e *env) migrate(ctx context.Context) error {
	if err := database.NewMigrationRunner(e.db).Run(ctx); err != nil {
		e.log.Error("migrations failed", zap.Error(err))
		return err
	}
	return nil
}

type MigrateCommand struct{}

func (c *MigrateCommand) Execute(args []string) error {
	ctx := context.Background()
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.migrate(ctx); err != nil {
		return err
	}
	e.log.Info("migrations applied")
	return nil
}

type RebuildDailyCommand struct {
	Date string `long:"date" description:"UTC day to rebuild as YYYY-MM-DD (default: yesterday)"`
}

func (c *RebuildDailyCommand) Execute(args []string) error {
	yesterday := analytics.Daily.PeriodStart(time.Now()).AddDate(0, 0, -1)
	day, err := utils.ParseDate(c.Date, yesterday)
	if err != nil {
		return err
	}

	ctx := context.Background()
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	n, err := store.NewReportStore(e.db).RebuildDailyStats(ctx, day)
	if err != nil {
		e.log.Error("daily stats rebuild failed", zap.Error(err))
		return err
	}
	e.log.Info("daily stats rebuilt",
		zap.String("date", day.Format(utils.DateLayout)),
		zap.Int("content_count", n))
	return nil
}

type PrunePresenceCommand struct {
	OlderThan time.Duration `long:"older-than" default:"15m" description:"delete presence rows idle for longer than this"`
}

func (c *PrunePresenceCommand) Execute(args []string) error {
	if c.OlderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	ctx := context.Background()
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	cutoff := time.Now().UTC().Add(-c.OlderThan)
	n, err := store.NewViewStore(e.db, e.cfg.DedupWindow).PruneActiveViewers(ctx, cutoff)
	if err != nil {
		e.log.Error("presence prune failed", zap.Error(err))
		return err
	}
	e.log.Info("presence pruned", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	return nil
}

type ServeCommand struct{}

func (c *ServeCommand) Execute(args []string) error {
	ctx := context.Background()
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.migrate(ctx); err != nil {
		return err
	}

	if e.cfg.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	cache, err := analytics.NewReportCache(e.cfg.ReportCacheCost)
	if err != nil {
		e.log.Error("failed to create report cache", zap.Error(err))
		return err
	}
	defer cache.Close()

	viewStore := store.NewViewStore(e.db, e.cfg.DedupWindow)
	reportStore := store.NewReportStore(e.db)
	userStore := store.NewUserStore(e.db)

	var trackerOpts []analytics.TrackerOption
	if e.cfg.ClickHouse.Enabled() {
		ch, err := database.NewClickHouseDB(ctx, e.cfg.ClickHouse, e.log)
		if err != nil {
			e.log.Error("failed to connect to ClickHouse", zap.Error(err))
			return err
		}
		defer ch.Close()

		sink := store.NewClickHouseSink(ch, e.log)
		if err := sink.EnsureSchema(ctx); err != nil {
			e.log.Error("failed to prepare ClickHouse mirror", zap.Error(err))
			return err
		}
		trackerOpts = append(trackerOpts, analytics.WithSink(sink))
	}

	secret := e.cfg.JWTSecret
	if secret == "" {
		e.log.Warn("JWT_SECRET_KEY is not set, using the development secret")
		secret = devJWTSecret
	}
	jwtManager := utils.NewJWTManager(secret, tokenTTL)

	tracker := analytics.NewTracker(viewStore, cache, m, e.log, trackerOpts...)
	reporter := analytics.NewReporter(reportStore, cache, m)

	router := handlers.NewRouter(handlers.RouterDeps{
		Auth:     handlers.NewAuthHandlers(userStore, jwtManager, e.cfg.ReleaseMode, e.log),
		Views:    handlers.NewViewHandlers(tracker, e.cfg.SessionCookieTTL, e.cfg.ReleaseMode, e.log),
		Stats:    handlers.NewStatsHandlers(reporter, reportStore, viewStore, m, e.log),
		JWT:      jwtManager,
		APIKey:   e.cfg.AuthDefault,
		FEOrigin: e.cfg.FEOrigin,
		DB:       e.db,
		Gatherer: reg,
		Log:      e.log,
	})

	srv := &http.Server{
		Addr:              ":" + e.cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		e.log.Info("API server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		if err != nil {
			e.log.Error("API server failed", zap.Error(err))
			return err
		}
	case sig := <-quit:
		e.log.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		e.log.Error("server forced to shutdown", zap.Error(err))
		return err
	}

	e.log.Info("server exiting")
	return nil
}
