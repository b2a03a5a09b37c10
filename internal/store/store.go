// Package store is the transactional object store behind chat history. It
// wraps a SQLite database (pure Go driver) behind GORM, owns the versioned
// schema, and exposes typed tables that are only reachable from inside a
// View or Update transaction.
//
// Open never panics and never leaves a half-initialized handle behind: any
// failure to obtain persistent storage is reported as ErrUnavailable so the
// caller can continue with persistence disabled.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Store is an open object store. The zero value is not usable; obtain one
// with Open.
type Store struct {
	db *gorm.DB
}

type options struct {
	logLevel logger.LogLevel
	tracing  bool
}

// Option customizes Open.
type Option func(*options)

// WithLogLevel sets the GORM logger level. The default is silent.
func WithLogLevel(l logger.LogLevel) Option {
	return func(o *options) { o.logLevel = l }
}

// WithTracing installs the GORM OpenTelemetry plugin so every statement is
// recorded as a span under the caller's trace.
func WithTracing() Option {
	return func(o *options) { o.tracing = true }
}

// Open opens (or creates) the database at path, applies PRAGMAs and brings
// the schema up to the latest version. Re-opening an existing database only
// applies migrations it has not seen yet; rows are never dropped.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	o := options{logLevel: logger.Silent}
	for _, fn := range opts {
		fn(&o)
	}

	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty database path", ErrUnavailable)
	}
	// Fail early if the parent directory is missing instead of surfacing an
	// opaque driver error on first use.
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(o.logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrUnavailable, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// SQLite allows a single writer; one pooled connection serializes every
	// transaction and keeps per-connection PRAGMAs in effect.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	} {
		if err := db.WithContext(ctx).Exec(pragma).Error; err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, pragma, err)
		}
	}

	if err := migrate(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if o.tracing {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("%w: tracing plugin: %v", ErrUnavailable, err)
		}
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Available reports whether s is backed by an open database. A nil *Store
// is valid and reports false.
func (s *Store) Available() bool {
	return s != nil && s.db != nil
}
