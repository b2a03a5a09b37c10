package services

import (
	"context"
	"errors"
	"time"

	"github.com/tbourn/go-chat-history/internal/repo"
	"github.com/tbourn/go-chat-history/internal/store"
)

// DefaultIdempotencyTTL bounds how long a stored result can be replayed.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyService remembers the outcome of chat-creating requests so a
// retried fork or duplicate returns the first chat instead of a new one.
type IdempotencyService struct {
	Store *store.Store
	TTL   time.Duration
	Now   func() time.Time
}

// NewIdempotencyService constructs an IdempotencyService over st.
func NewIdempotencyService(st *store.Store, ttl time.Duration) *IdempotencyService {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &IdempotencyService{Store: st, TTL: ttl, Now: time.Now}
}

// Lookup returns the result recorded for (caller, scope, key), if it has not
// expired. A disabled store always misses.
func (s *IdempotencyService) Lookup(ctx context.Context, caller, scope, key string) (string, bool, error) {
	if !s.Store.Available() {
		return "", false, nil
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	var result string
	err := s.Store.View(ctx, func(tx *store.Tx) error {
		rec, err := repo.GetIdempotency(tx, caller, scope, key, now())
		if err != nil {
			return err
		}
		result = rec.Result
		return nil
	})
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return result, true, nil
}

// Remember records result for (caller, scope, key). A concurrent request that
// already recorded the same key wins; ErrConstraint is returned to the loser.
func (s *IdempotencyService) Remember(ctx context.Context, caller, scope, key, result string, status int) error {
	if !s.Store.Available() {
		return ErrStorageUnavailable
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	at := now()
	return s.Store.Update(ctx, func(tx *store.Tx) error {
		if err := repo.DeleteExpiredIdempotency(tx, caller, scope, key, at); err != nil {
			return err
		}
		_, err := repo.CreateIdempotency(tx, caller, scope, key, result, status, at, s.TTL)
		return err
	})
}
