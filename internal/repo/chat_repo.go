// Package repo implements the thin persistence layer over the object store.
// Every function runs inside a caller-supplied *store.Tx, so services decide
// transaction boundaries and repo functions only compose queries.
//
// Error semantics:
//   - Missing records return ErrNotFound (an alias of store.ErrNotFound).
//   - Unique violations return errors wrapping store.ErrConstraint.
//   - Any other driver error is wrapped and propagated.
package repo

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-history/internal/domain"
	"github.com/tbourn/go-chat-history/internal/store"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = store.ErrNotFound

// GetChat fetches a chat by primary key.
func GetChat(tx *store.Tx, id string) (*domain.Chat, error) {
	return store.Chats.Get(tx, id)
}

// GetChatByURLID fetches a chat by its public slug.
func GetChatByURLID(tx *store.Tx, urlID string) (*domain.Chat, error) {
	return store.Chats.GetByIndex(tx, store.IndexURLID, urlID)
}

// FindChat resolves idOrURLID as a primary key first and as a slug second.
func FindChat(tx *store.Tx, idOrURLID string) (*domain.Chat, error) {
	c, err := GetChat(tx, idOrURLID)
	if errors.Is(err, ErrNotFound) {
		return GetChatByURLID(tx, idOrURLID)
	}
	return c, err
}

// visibleTo scopes a chat query to rows userID may see: ownerless rows and,
// for a non-empty userID, rows owned by userID.
func visibleTo(db *gorm.DB, userID string) *gorm.DB {
	q := db.Model(&domain.Chat{})
	if userID == "" {
		return q.Where("user_id IS NULL")
	}
	return q.Where("user_id IS NULL OR user_id = ?", userID)
}

// ListVisibleChats returns every chat visible to userID, newest first.
func ListVisibleChats(tx *store.Tx, userID string) ([]domain.Chat, error) {
	out := []domain.Chat{}
	err := visibleTo(tx.DB(), userID).
		Order("timestamp desc").
		Order("id desc").
		Find(&out).Error
	return out, err
}

// CountVisibleChats returns the number of chats visible to userID.
func CountVisibleChats(tx *store.Tx, userID string) (int64, error) {
	var total int64
	err := visibleTo(tx.DB(), userID).Count(&total).Error
	return total, err
}

// ListVisibleChatsPage returns one page of chats visible to userID, newest
// first. The caller computes offset and limit.
func ListVisibleChatsPage(tx *store.Tx, userID string, offset, limit int) ([]domain.Chat, error) {
	out := []domain.Chat{}
	err := visibleTo(tx.DB(), userID).
		Order("timestamp desc").
		Order("id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// PutChat inserts or fully replaces a chat and stamps UpdatedAt.
func PutChat(tx *store.Tx, c *domain.Chat) error {
	if c.Messages == nil {
		c.Messages = []domain.Message{}
	}
	now := time.Now().UTC()
	c.UpdatedAt = &now
	return store.Chats.Put(tx, c)
}

// DeleteChat removes a chat by primary key. Missing ids are not an error.
func DeleteChat(tx *store.Tx, id string) error {
	return store.Chats.Delete(tx, id)
}
