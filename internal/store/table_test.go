package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-chat-history/internal/domain"
)

func ptr(s string) *string { return &s }

func putChats(t *testing.T, st *Store, chats ...domain.Chat) {
	t.Helper()
	err := st.Update(context.Background(), func(tx *Tx) error {
		for i := range chats {
			if err := Chats.Put(tx, &chats[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("put chats: %v", err)
	}
}

func TestTable_PutGetReplace(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	putChats(t, st, domain.Chat{
		ID: "1", URLID: "1", Description: ptr("first"),
		Messages:  []domain.Message{{ID: "m1", Role: "user", Content: "hi"}},
		Timestamp: "2024-01-01T00:00:00.000Z",
	})
	putChats(t, st, domain.Chat{
		ID: "1", URLID: "1",
		Messages:  []domain.Message{{ID: "m2", Role: "assistant", Content: "hello"}},
		Timestamp: "2024-01-02T00:00:00.000Z",
	})

	err := st.View(ctx, func(tx *Tx) error {
		c, err := Chats.Get(tx, "1")
		if err != nil {
			return err
		}
		if c.Description != nil {
			t.Fatalf("put must replace, description survived: %q", *c.Description)
		}
		if len(c.Messages) != 1 || c.Messages[0].ID != "m2" {
			t.Fatalf("messages = %+v", c.Messages)
		}
		if _, err := Chats.Get(tx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get missing: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestTable_UniqueIndexViolation(t *testing.T) {
	st := newTestStore(t)
	putChats(t, st, domain.Chat{ID: "1", URLID: "abc", Messages: []domain.Message{}, Timestamp: "t"})

	err := st.Update(context.Background(), func(tx *Tx) error {
		return Chats.Put(tx, &domain.Chat{ID: "2", URLID: "abc", Messages: []domain.Message{}, Timestamp: "t"})
	})
	if !errors.Is(err, ErrConstraint) {
		t.Fatalf("expected ErrConstraint, got %v", err)
	}
}

func TestTable_AddRejectsDuplicates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	add := func(p domain.UserProject) error {
		return st.Update(ctx, func(tx *Tx) error { return UserProjects.Add(tx, &p) })
	}
	first := domain.UserProject{ID: "u1_p1", UserID: "u1", ProjectID: "p1", Name: "one", CreatedAt: now, UpdatedAt: now}
	if err := add(first); err != nil {
		t.Fatalf("first add: %v", err)
	}

	dupKey := first
	dupKey.Name = "two"
	if err := add(dupKey); !errors.Is(err, ErrConstraint) {
		t.Fatalf("duplicate key: expected ErrConstraint, got %v", err)
	}

	dupProject := domain.UserProject{ID: "u2_p1", UserID: "u2", ProjectID: "p1", Name: "three", CreatedAt: now, UpdatedAt: now}
	if err := add(dupProject); !errors.Is(err, ErrConstraint) {
		t.Fatalf("duplicate projectId: expected ErrConstraint, got %v", err)
	}

	_ = st.View(ctx, func(tx *Tx) error {
		p, err := UserProjects.Get(tx, "u1_p1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if p.Name != "one" {
			t.Fatalf("first record changed: %+v", p)
		}
		return nil
	})
}

func TestTable_IndexLookups(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	putChats(t, st,
		domain.Chat{ID: "1", URLID: "a", UserID: ptr("u1"), Messages: []domain.Message{}, Timestamp: "t"},
		domain.Chat{ID: "2", URLID: "b", UserID: ptr("u2"), Messages: []domain.Message{}, Timestamp: "t"},
		domain.Chat{ID: "3", URLID: "c", Messages: []domain.Message{}, Timestamp: "t"},
	)

	err := st.View(ctx, func(tx *Tx) error {
		c, err := Chats.GetByIndex(tx, IndexURLID, "b")
		if err != nil || c.ID != "2" {
			t.Fatalf("GetByIndex(urlId=b) = %+v, %v", c, err)
		}
		owned, err := Chats.GetAllByIndex(tx, IndexUserID, "u1")
		if err != nil || len(owned) != 1 || owned[0].ID != "1" {
			t.Fatalf("GetAllByIndex(userId=u1) = %+v, %v", owned, err)
		}
		ownerless, err := Chats.GetAllByIndex(tx, IndexUserID, nil)
		if err != nil || len(ownerless) != 1 || ownerless[0].ID != "3" {
			t.Fatalf("GetAllByIndex(userId=nil) = %+v, %v", ownerless, err)
		}
		keys, err := Chats.GetAllKeys(tx)
		if err != nil || len(keys) != 3 {
			t.Fatalf("GetAllKeys = %v, %v", keys, err)
		}
		slugs, err := Chats.IndexValues(tx, IndexURLID)
		if err != nil || len(slugs) != 3 {
			t.Fatalf("IndexValues = %v, %v", slugs, err)
		}
		if _, err := Chats.GetAllByIndex(tx, "nope", "x"); !errors.Is(err, ErrUnknownIndex) {
			t.Fatalf("unknown index: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestTable_DeleteMissingIsNoop(t *testing.T) {
	st := newTestStore(t)
	putChats(t, st, domain.Chat{ID: "1", URLID: "1", Messages: []domain.Message{}, Timestamp: "t"})

	err := st.Update(context.Background(), func(tx *Tx) error {
		if err := Chats.Delete(tx, "1"); err != nil {
			return err
		}
		return Chats.Delete(tx, "1")
	})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestView_RejectsWrites(t *testing.T) {
	st := newTestStore(t)
	err := st.View(context.Background(), func(tx *Tx) error {
		return Chats.Put(tx, &domain.Chat{ID: "1", URLID: "1", Timestamp: "t"})
	})
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.Update(ctx, func(tx *Tx) error {
		if err := Chats.Put(tx, &domain.Chat{ID: "1", URLID: "1", Messages: []domain.Message{}, Timestamp: "t"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	func() {
		defer func() { _ = recover() }()
		_ = st.Update(ctx, func(tx *Tx) error {
			_ = Chats.Put(tx, &domain.Chat{ID: "2", URLID: "2", Messages: []domain.Message{}, Timestamp: "t"})
			panic("abort")
		})
	}()

	_ = st.View(ctx, func(tx *Tx) error {
		keys, err := Chats.GetAllKeys(tx)
		if err != nil {
			t.Fatalf("GetAllKeys: %v", err)
		}
		if len(keys) != 0 {
			t.Fatalf("rolled back writes are visible: %v", keys)
		}
		return nil
	})
}
