package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tbourn/go-chat-history/internal/domain"
	"github.com/tbourn/go-chat-history/internal/repo"
	"github.com/tbourn/go-chat-history/internal/store"
)

// UserService registers caller identities on first sight.
type UserService struct {
	Store *store.Store
	Now   func() time.Time
}

// NewUserService constructs a UserService over st. st may be nil.
func NewUserService(st *store.Store) *UserService {
	return &UserService{Store: st, Now: time.Now}
}

// Ensure creates the user id if it does not exist yet. created reports
// whether this call inserted it. Known users are answered from a read
// transaction, so the per-request call only writes on first sight.
func (s *UserService) Ensure(ctx context.Context, id string) (u *domain.User, created bool, err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false, ErrMissingUser
	}
	if !s.Store.Available() {
		return nil, false, ErrStorageUnavailable
	}
	err = s.Store.View(ctx, func(tx *store.Tx) error {
		var err error
		u, err = repo.GetUser(tx, id)
		return err
	})
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, false, err
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	err = s.Store.Update(ctx, func(tx *store.Tx) error {
		var err error
		u, created, err = repo.EnsureUser(tx, id, now().UTC())
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return u, created, nil
}

// Get returns the user id or ErrUserNotFound.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	if !s.Store.Available() {
		return nil, ErrUserNotFound
	}
	var u *domain.User
	err := s.Store.View(ctx, func(tx *store.Tx) error {
		var err error
		u, err = repo.GetUser(tx, id)
		return err
	})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}
