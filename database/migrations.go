package database

import (
	"context"
	"database/sql"
	"fmt"
)

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	Apply   func(ctx context.Context, tx *sql.Tx, d Dialect) error
}

// MigrationRunner applies pending migrations to the primary store.
type MigrationRunner struct {
	db         *sql.DB
	dialect    Dialect
	migrations []migration
}

// NewMigrationRunner creates a MigrationRunner with all registered migrations.
func NewMigrationRunner(c *DBClient) *MigrationRunner {
	return &MigrationRunner{
		db:      c.DB,
		dialect: c.Dialect,
		migrations: []migration{
			{Version: 1, Name: "view_tracking", Apply: migrateV001},
			{Version: 2, Name: "dashboard_users", Apply: migrateV002},
		},
	}
}

// Run creates the schema_migrations tracking table and applies every
// migration that hasn't been recorded yet, each in its own transaction.
func (r *MigrationRunner) Run(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at %s NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`, r.dialect.TimestampType)); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range r.migrations {
		applied, err := r.isApplied(ctx, m.Version)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if applied {
			continue
		}

		if err := r.apply(ctx, m); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
	}

	return nil
}

func (r *MigrationRunner) isApplied(ctx context.Context, version int) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		r.dialect.Rebind("SELECT COUNT(*) FROM schema_migrations WHERE version = ?"), version,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *MigrationRunner) apply(ctx context.Context, m migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := m.Apply(ctx, tx, r.dialect); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		r.dialect.Rebind("INSERT INTO schema_migrations (version, name) VALUES (?, ?)"),
		m.Version, m.Name,
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return tx.Commit()
}

func execAll(ctx context.Context, tx *sql.Tx, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrateV001 creates the view tracking tables.
func migrateV001(ctx context.Context, tx *sql.Tx, d Dialect) error {
	return execAll(ctx, tx, []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS view_events (
			id         TEXT PRIMARY KEY,
			content_id TEXT NOT NULL,
			viewer_id  TEXT,
			ip_address TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			referrer   TEXT NOT NULL DEFAULT '',
			viewed_at  %s NOT NULL
		)`, d.TimestampType),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS session_engagements (
			content_id   TEXT NOT NULL,
			session_id   TEXT NOT NULL,
			user_id      TEXT,
			scroll_depth %[2]s NOT NULL DEFAULT 0,
			time_spent   %[3]s NOT NULL DEFAULT 0,
			device_type  TEXT NOT NULL DEFAULT '',
			browser      TEXT NOT NULL DEFAULT '',
			os           TEXT NOT NULL DEFAULT '',
			country      TEXT NOT NULL DEFAULT '',
			region       TEXT NOT NULL DEFAULT '',
			city         TEXT NOT NULL DEFAULT '',
			entry_point  TEXT,
			created_at   %[1]s NOT NULL,
			updated_at   %[1]s NOT NULL,
			PRIMARY KEY (content_id, session_id)
		)`, d.TimestampType, d.FloatType, d.IntType),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS active_viewers (
			content_id  TEXT NOT NULL,
			session_id  TEXT NOT NULL,
			user_id     TEXT,
			last_active %s NOT NULL,
			PRIMARY KEY (content_id, session_id)
		)`, d.TimestampType),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS daily_stats (
			content_id       TEXT NOT NULL,
			date             TEXT NOT NULL,
			total_views      %[2]s NOT NULL DEFAULT 0,
			unique_views     %[2]s NOT NULL DEFAULT 0,
			registered_views %[2]s NOT NULL DEFAULT 0,
			anonymous_views  %[2]s NOT NULL DEFAULT 0,
			updated_at       %[1]s NOT NULL,
			PRIMARY KEY (content_id, date)
		)`, d.TimestampType, d.IntType),

		`CREATE INDEX IF NOT EXISTS idx_view_events_content_viewed ON view_events(content_id, viewed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_view_events_viewed         ON view_events(viewed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_active_viewers_last_active ON active_viewers(last_active)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_stats_date           ON daily_stats(date)`,
	})
}

// migrateV002 creates the dashboard account table.
func migrateV002(ctx context.Context, tx *sql.Tx, d Dialect) error {
	return execAll(ctx, tx, []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
			id              %[1]s,
			email           TEXT NOT NULL UNIQUE,
			hashed_password %[2]s NOT NULL,
			created_at      %[3]s NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at      %[3]s NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, d.AutoIDType, d.BlobType, d.TimestampType),
	})
}
