package repo

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-history/internal/domain"
	"github.com/tbourn/go-chat-history/internal/store"
)

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(tx *store.Tx, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(scope) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := tx.DB().
		Where(map[string]any{"user_id": userID, "scope": scope, "key": key}).
		Where("expires_at > ?", now.UTC()).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency records result for (userID, scope, key), created at now
// and expiring ttl later. A second record for the same tuple fails with
// store.ErrConstraint.
func CreateIdempotency(tx *store.Tx, userID, scope, key, result string, status int, now time.Time, ttl time.Duration) (*domain.Idempotency, error) {
	now = now.UTC()
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		UserID:    userID,
		Scope:     scope,
		Key:       key,
		Result:    result,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := store.Idempotency.Add(tx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteExpiredIdempotency removes an expired record for the tuple so the key
// can be recorded again. It needs a read-write transaction.
func DeleteExpiredIdempotency(tx *store.Tx, userID, scope, key string, now time.Time) error {
	if !tx.Writable() {
		return store.ErrReadOnly
	}
	return tx.DB().
		Where(map[string]any{"user_id": userID, "scope": scope, "key": key}).
		Where("expires_at <= ?", now.UTC()).
		Delete(&domain.Idempotency{}).Error
}
