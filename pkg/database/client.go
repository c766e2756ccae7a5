// Package database provides the PostgreSQL connection pool and embedded
// schema migrations. There is no generated ORM client here; pkg/store
// issues hand-written SQL against the *pgxpool.Pool this package exposes.
package database

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver, used only for migrations
)

//go:embed migrations
var migrationsFS embed.FS

// Client wraps a pgx connection pool used by every repository in pkg/store.
type Client struct {
	Pool *pgxpool.Pool
}

// NewClient opens a connection pool against dsn, applies all pending
// embedded migrations, and returns a ready Client. Migrations run through
// database/sql (golang-migrate requires it); application queries use the
// pgx-native pool for its lower overhead and typed row scanning.
func NewClient(ctx context.Context, dsn string, maxConns int32) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	poolCfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Client{Pool: pool}, nil
}

// Close releases the connection pool.
func (c *Client) Close() {
	c.Pool.Close()
}

// Ping reports whether the database is currently reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.Pool.Ping(ctx)
}

// runMigrations applies all embedded SQL migrations via database/sql,
// since golang-migrate's postgres driver only accepts a *sql.DB.
//
// Migration workflow: schema changes land as new pkg/database/migrations/*.sql
// files (never generated or edited at runtime); the binary embeds them and
// applies any pending ones on every boot.
func runMigrations(dsn string) error {
	m, closeDB, err := Migrator(dsn)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Migrator opens a standalone migrate.Migrate instance against the embedded
// migration files, for use by the labtrace migrate CLI (status/up/down
// outside of the normal boot path, which applies pending migrations via
// NewClient automatically). The caller must invoke the returned closer once
// done with the *migrate.Migrate instance.
func Migrator(dsn string) (m *migrate.Migrate, closer func(), err error) {
	hasMigrations, err := hasEmbeddedMigrations()
	if err != nil {
		return nil, nil, fmt.Errorf("check embedded migrations: %w", err)
	}
	if !hasMigrations {
		return nil, nil, fmt.Errorf("no embedded migration files found, binary built without pkg/database/migrations")
	}

	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open migration connection: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create postgres migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create migration source: %w", err)
	}

	m, err = migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		sourceDriver.Close()
		db.Close()
		return nil, nil, fmt.Errorf("create migrate instance: %w", err)
	}

	return m, func() { sourceDriver.Close(); db.Close() }, nil
}

func hasEmbeddedMigrations() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read embedded migrations: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && len(entry.Name()) > 4 && entry.Name()[len(entry.Name())-4:] == ".sql" {
			return true, nil
		}
	}
	return false, nil
}
