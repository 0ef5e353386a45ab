// Package postgres manages the PostgreSQL connection for the access
// control stores.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// Connect opens a connection pool, applies pool limits, and verifies
// the database is reachable before returning.
func Connect(cfg ConnectionConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migration represents a versioned SQL migration owned by one package
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// RunMigrations applies migrations in version order, tracking applied
// versions per component in the schema_migrations table. Safe to call
// repeatedly; already-applied versions are skipped.
func RunMigrations(ctx context.Context, db *sql.DB, component string, migrations []Migration) error {
	ensure := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			component VARCHAR(100) NOT NULL,
			version INTEGER NOT NULL,
			description TEXT,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			PRIMARY KEY (component, version)
		)
	`
	if _, err := db.ExecContext(ctx, ensure); err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE component = $1 AND version = $2)`,
			component, m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration %s/%d: %w", component, m.Version, err)
		}
		if exists {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %s/%d: %w", component, m.Version, err)
		}

		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %s/%d (%s) failed: %w", component, m.Version, m.Description, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (component, version, description) VALUES ($1, $2, $3)`,
			component, m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s/%d: %w", component, m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s/%d: %w", component, m.Version, err)
		}
	}

	return nil
}
