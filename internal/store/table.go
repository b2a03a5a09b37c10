package store

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Index describes a secondary index of a table.
type Index struct {
	Column string
	Unique bool
}

// Table is a typed view over one table keyed by a single string column.
// Operations take the *Tx they run in; there is no way to touch a table
// outside a transaction.
type Table[T any] struct {
	Name    string
	Key     string
	Indexes map[string]Index
}

func eq(column string, value any) clause.Expression {
	return clause.Eq{Column: clause.Column{Name: column}, Value: value}
}

func (t Table[T]) column(index string) (string, error) {
	ix, ok := t.Indexes[index]
	if !ok {
		return "", errors.Join(ErrUnknownIndex, errors.New(t.Name+"."+index))
	}
	return ix.Column, nil
}

// Get returns the record with the given primary key or ErrNotFound.
func (t Table[T]) Get(tx *Tx, key string) (*T, error) {
	var rec T
	err := tx.db.Where(eq(t.Key, key)).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr(t.Name, "get", err)
	}
	return &rec, nil
}

// GetByIndex returns the first record whose index column equals value, or
// ErrNotFound. It is meant for unique indexes.
func (t Table[T]) GetByIndex(tx *Tx, index string, value any) (*T, error) {
	col, err := t.column(index)
	if err != nil {
		return nil, err
	}
	var rec T
	err = tx.db.Where(eq(col, value)).Order(t.Key).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr(t.Name, "get by "+index, err)
	}
	return &rec, nil
}

// GetAll returns every record ordered by primary key.
func (t Table[T]) GetAll(tx *Tx) ([]T, error) {
	out := []T{}
	if err := tx.db.Order(t.Key).Find(&out).Error; err != nil {
		return nil, wrapErr(t.Name, "get all", err)
	}
	return out, nil
}

// GetAllByIndex returns every record whose index column equals value. A nil
// value matches records where the column is NULL.
func (t Table[T]) GetAllByIndex(tx *Tx, index string, value any) ([]T, error) {
	col, err := t.column(index)
	if err != nil {
		return nil, err
	}
	out := []T{}
	if err := tx.db.Where(eq(col, value)).Order(t.Key).Find(&out).Error; err != nil {
		return nil, wrapErr(t.Name, "get all by "+index, err)
	}
	return out, nil
}

// GetAllKeys returns every primary key in ascending key order.
func (t Table[T]) GetAllKeys(tx *Tx) ([]string, error) {
	keys := []string{}
	if err := tx.db.Model(new(T)).Order(t.Key).Pluck(t.Key, &keys).Error; err != nil {
		return nil, wrapErr(t.Name, "get all keys", err)
	}
	return keys, nil
}

// IndexValues returns the non-null values of an index column.
func (t Table[T]) IndexValues(tx *Tx, index string) ([]string, error) {
	col, err := t.column(index)
	if err != nil {
		return nil, err
	}
	vals := []string{}
	err = tx.db.Model(new(T)).
		Where(clause.Expr{SQL: "? IS NOT NULL", Vars: []any{clause.Column{Name: col}}}).
		Pluck(col, &vals).Error
	if err != nil {
		return nil, wrapErr(t.Name, "index values "+index, err)
	}
	return vals, nil
}

// Put inserts rec or replaces the record with the same primary key. A
// collision on a unique index returns ErrConstraint.
func (t Table[T]) Put(tx *Tx, rec *T) error {
	if !tx.writable {
		return ErrReadOnly
	}
	err := tx.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: t.Key}},
		UpdateAll: true,
	}).Create(rec).Error
	return wrapErr(t.Name, "put", err)
}

// Add inserts rec and fails with ErrConstraint if the primary key or any
// unique index value already exists.
func (t Table[T]) Add(tx *Tx, rec *T) error {
	if !tx.writable {
		return ErrReadOnly
	}
	return wrapErr(t.Name, "add", tx.db.Create(rec).Error)
}

// Delete removes the record with the given key. Deleting a missing key is
// not an error.
func (t Table[T]) Delete(tx *Tx, key string) error {
	if !tx.writable {
		return ErrReadOnly
	}
	var zero T
	return wrapErr(t.Name, "delete", tx.db.Where(eq(t.Key, key)).Delete(&zero).Error)
}
