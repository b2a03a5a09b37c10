package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

// Schema migrations are append-only: a new version may add tables, columns
// or indexes but must never rewrite existing rows.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

func newMigrator(db *sql.DB) (*goose.Provider, error) {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(goose.DialectSQLite3, db, fsys)
}

// migrate applies every pending schema version in order.
func migrate(ctx context.Context, db *sql.DB) error {
	p, err := newMigrator(db)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	for _, r := range results {
		log.Debug().
			Int64("version", r.Source.Version).
			Str("file", r.Source.Path).
			Dur("took", r.Duration).
			Msg("schema migration applied")
	}
	return nil
}

// SchemaVersion returns the latest applied schema version.
func (s *Store) SchemaVersion(ctx context.Context) (int64, error) {
	if !s.Available() {
		return 0, ErrUnavailable
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return 0, err
	}
	p, err := newMigrator(sqlDB)
	if err != nil {
		return 0, err
	}
	return p.GetDBVersion(ctx)
}
