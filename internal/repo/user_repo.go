package repo

import (
	"errors"
	"time"

	"github.com/tbourn/go-chat-history/internal/domain"
	"github.com/tbourn/go-chat-history/internal/store"
)

// GetUser fetches a user by id.
func GetUser(tx *store.Tx, id string) (*domain.User, error) {
	return store.Users.Get(tx, id)
}

// EnsureUser returns the user with the given id, creating it when absent.
// created reports whether a row was inserted.
func EnsureUser(tx *store.Tx, id string, now time.Time) (u *domain.User, created bool, err error) {
	u, err = store.Users.Get(tx, id)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	u = &domain.User{ID: id, CreatedAt: now, UpdatedAt: now}
	if err := store.Users.Add(tx, u); err != nil {
		return nil, false, err
	}
	return u, true, nil
}
