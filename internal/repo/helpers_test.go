package repo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tbourn/go-chat-history/internal/domain"
	"github.com/tbourn/go-chat-history/internal/store"
)

func newRepoStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "repo_test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func update(t *testing.T, st *store.Store, fn func(tx *store.Tx) error) {
	t.Helper()
	if err := st.Update(context.Background(), fn); err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func seedChat(t *testing.T, st *store.Store, id, urlID string, owner *string, ts string) {
	t.Helper()
	update(t, st, func(tx *store.Tx) error {
		return PutChat(tx, &domain.Chat{ID: id, URLID: urlID, UserID: owner, Timestamp: ts})
	})
}

func ptr(s string) *string { return &s }
