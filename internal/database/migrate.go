package database

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/rickgao/ercot-data/internal/schema"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// Migrate applies pending goose migrations and then the registry DDL.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("goose version: %w", err)
	}
	logger.Info("migrations applied", "version", version)

	if err := EnsureTables(ctx, pool); err != nil {
		return err
	}
	logger.Info("registry tables ensured", "tables", len(schema.FactTables())+1)
	return nil
}

// Execer runs a statement.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureTables creates every fact table and FINAL if missing.
func EnsureTables(ctx context.Context, db Execer) error {
	tables := append(schema.FactTables(), schema.MustLookup(schema.Final))
	for _, t := range tables {
		for _, stmt := range t.CreateTableSQL() {
			if _, err := db.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("create %s: %w", t.SQLName, err)
			}
		}
	}
	return nil
}
