package store

import (
	"context"

	"gorm.io/gorm"
)

// Tx is a scoped transaction handle passed to View and Update callbacks. It
// must not escape the callback.
type Tx struct {
	db       *gorm.DB
	writable bool
}

// DB exposes the transaction-bound GORM handle for queries the typed tables
// do not cover (ordering, pagination, aggregates).
func (tx *Tx) DB() *gorm.DB { return tx.db }

// Writable reports whether the transaction was opened by Update.
func (tx *Tx) Writable() bool { return tx.writable }

// View runs fn inside a read-only transaction. Writes attempted through the
// typed tables fail with ErrReadOnly.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	return s.run(ctx, false, fn)
}

// Update runs fn inside a read-write transaction. The transaction commits
// when fn returns nil and rolls back when fn returns an error or panics.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *Store) run(ctx context.Context, writable bool, fn func(tx *Tx) error) error {
	if !s.Available() {
		return ErrUnavailable
	}
	return s.db.WithContext(ctx).Transaction(func(g *gorm.DB) error {
		return fn(&Tx{db: g, writable: writable})
	})
}
