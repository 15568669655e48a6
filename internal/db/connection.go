// Package db owns the wallet schema migrations and the connection pool.
package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

type PoolConfig struct {
	// postgres://... connection string
	DSN string

	// Reported in pg_stat_activity, "venuewallet" if not set
	ApplicationName string

	// Session lock_timeout for every pooled connection, server default if zero
	// Mutations narrow it further per transaction
	LockTimeout time.Duration
}

const defaultApplicationName = "venuewallet"

// Bring the wallet schema to the latest version
func Migrate(dsn string) error {
	url, err := migrateURL(dsn)
	if err != nil {
		return err
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("wallet schema: read migrations: %w", err)
	}

	migrator, err := migrate.NewWithSourceInstance("iofs", source, url)
	if err != nil {
		return fmt.Errorf("wallet schema: prepare migrator: %w", err)
	}
	defer migrator.Close() // nolint:errcheck

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("wallet schema: apply migrations: %w", err)
	}

	return nil
}

// migrate resolves drivers by scheme, the pgx/v5 driver is registered as pgx5
func migrateURL(dsn string) (string, error) {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return "", errors.New("wallet schema: migrations need a postgres:// connection url")
	}

	switch scheme {
	case "postgres", "postgresql", "pgx5":
		return "pgx5://" + rest, nil
	default:
		return "", fmt.Errorf("wallet schema: unsupported url scheme %q", scheme)
	}
}

func poolConfig(cfg PoolConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	params := pc.ConnConfig.RuntimeParams
	params["application_name"] = cfg.ApplicationName
	if cfg.ApplicationName == "" {
		params["application_name"] = defaultApplicationName
	}
	if cfg.LockTimeout > 0 {
		params["lock_timeout"] = fmt.Sprintf("%dms", cfg.LockTimeout.Milliseconds())
	}

	return pc, nil
}

// Open the pool and make sure the server answers
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

func ConnectAndMigrate(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if err := Migrate(cfg.DSN); err != nil {
		return nil, err
	}

	return Connect(ctx, cfg)
}
