package repo

import (
	"time"

	"github.com/tbourn/go-chat-history/internal/store"
)

// ChatsStats returns the number of chats visible to userID and the greatest
// UpdatedAt among them, for ETag generation. Every write stamps UpdatedAt, so
// a rename or a replace with an older timestamp still moves it. maxUpdatedAt
// is nil when no visible row carries the column.
func ChatsStats(tx *store.Tx, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	if count, err = CountVisibleChats(tx, userID); err != nil || count == 0 {
		return count, nil, err
	}

	// Ordered scan instead of MAX(), which SQLite returns as TEXT.
	var row struct {
		UpdatedAt *time.Time
	}
	err = visibleTo(tx.DB(), userID).
		Select("updated_at").
		Where("updated_at IS NOT NULL").
		Order("updated_at desc").
		Limit(1).
		Scan(&row).Error
	return count, row.UpdatedAt, err
}
