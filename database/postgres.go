package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// DBClient is an open relational store together with its SQL dialect.
type DBClient struct {
	DB      *sql.DB
	Dialect Dialect
	log     *zap.Logger
}

// Open connects to the store named by url. URLs starting with sqlite://
// or file: open an embedded SQLite database, everything else goes to
// PostgreSQL.
func Open(ctx context.Context, url string, log *zap.Logger) (*DBClient, error) {
	switch {
	case strings.HasPrefix(url, "sqlite://"):
		return NewSQLiteDB(ctx, strings.TrimPrefix(url, "sqlite://"), log)
	case strings.HasPrefix(url, "file:"), url == ":memory:":
		return NewSQLiteDB(ctx, url, log)
	default:
		return NewPostgresDB(ctx, url, log)
	}
}

func NewPostgresDB(ctx context.Context, dbURL string, log *zap.Logger) (*DBClient, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database (ping failed): %w", err)
	}

	log.Info("connected to PostgreSQL")
	return &DBClient{DB: db, Dialect: Postgres, log: log}, nil
}

func (c *DBClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *DBClient) Close() {
	if c.DB == nil {
		return
	}
	if err := c.DB.Close(); err != nil {
		c.log.Error("error closing database connection", zap.Error(err))
		return
	}
	c.log.Info("database connection closed", zap.String("dialect", c.Dialect.Name))
}
