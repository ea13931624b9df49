package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// NewSQLiteDB opens an embedded database. A single connection is used so
// writers serialize and in-memory databases stay shared.
func NewSQLiteDB(ctx context.Context, dsn string, log *zap.Logger) (*DBClient, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to sqlite database: %w", err)
	}

	log.Info("opened SQLite database", zap.String("dsn", dsn))
	return &DBClient{DB: db, Dialect: SQLite, log: log}, nil
}

func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000&_foreign_keys=on"
}
