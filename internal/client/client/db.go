// Package client owns the device-local infrastructure: the SQLite database
// with its migrations and repositories, and the HTTP client for the sync
// backend.
package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/worldloom/internal/client/migrations"
	"github.com/dmitrijs2005/worldloom/internal/client/repositories/idmap"
	"github.com/dmitrijs2005/worldloom/internal/client/repositories/journal"
	"github.com/dmitrijs2005/worldloom/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/worldloom/internal/client/repositories/store"
	"github.com/dmitrijs2005/worldloom/internal/client/repositories/syncmeta"

	_ "modernc.org/sqlite"
)

// Repositories bundles every repository bound to the local database, plus
// the handle itself for transactional flows.
type Repositories struct {
	DB       *sql.DB
	Store    store.Repository
	Journal  journal.Repository
	IDMap    idmap.Repository
	SyncMeta syncmeta.Repository
	Metadata metadata.Repository
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens (creating if needed) the SQLite database at dsn, runs
// migrations and returns the repository bundle.
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return &Repositories{
		DB:       db,
		Store:    store.NewSQLiteRepository(db),
		Journal:  journal.NewSQLiteRepository(db),
		IDMap:    idmap.NewSQLiteRepository(db),
		SyncMeta: syncmeta.NewSQLiteRepository(db),
		Metadata: metadata.NewSQLiteRepository(db),
	}, nil
}
