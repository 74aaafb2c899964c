package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/guxdde/base-auth-service/internal/adapters/config"
	"github.com/guxdde/base-auth-service/internal/domain"
)

// NewDB opens the durable relational store described by the database
// configuration section. Postgres is the production target; sqlite exists
// for local development and tests.
func NewDB(cfgProvider config.Provider, logger domain.Logger) (*bun.DB, func(), error) {
	cfg := cfgProvider.Get().Database

	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)
	switch cfg.Driver {
	case "postgres":
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			db = bun.NewDB(sqldb, pgdialect.New())
		}
	case "sqlite3", "sqlite":
		sqldb, err = sql.Open("sqlite3", cfg.DSN)
		if err == nil {
			db = bun.NewDB(sqldb, sqlitedialect.New())
		}
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("opening database (%s) failed: %w", cfg.Driver, err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("database ping failed: %w", err)
	}

	logger.Info(context.Background(), "Database connection established", "driver", cfg.Driver)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Warn(context.Background(), "Failed to close database", "error", err.Error())
		}
	}
	return db, cleanup, nil
}
