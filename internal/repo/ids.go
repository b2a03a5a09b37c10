package repo

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/tbourn/go-chat-history/internal/store"
)

// NextChatID returns the next numeric chat id in its own read transaction.
// Use NextChatIDTx when the id must be allocated and written atomically.
func NextChatID(ctx context.Context, st *store.Store) (string, error) {
	var id string
	err := st.View(ctx, func(tx *store.Tx) error {
		var err error
		id, err = NextChatIDTx(tx)
		return err
	})
	return id, err
}

// NextChatIDTx scans every chat key and returns max+1 as a decimal string.
// The max starts at 0 and keys that are not integers count as 0, so an empty
// table or one holding only negative or non-numeric keys yields "1". Keys of
// any length compare numerically.
func NextChatIDTx(tx *store.Tx) (string, error) {
	keys, err := store.Chats.GetAllKeys(tx)
	if err != nil {
		return "", err
	}
	max := new(big.Int)
	for _, k := range keys {
		if n, ok := numericKey(k); ok && n.Cmp(max) > 0 {
			max = n
		}
	}
	return max.Add(max, big.NewInt(1)).String(), nil
}

func numericKey(k string) (*big.Int, bool) {
	return new(big.Int).SetString(strings.TrimSpace(k), 10)
}

// AllocateURLSlug returns candidate if no chat uses it as url id, otherwise
// candidate-2, candidate-3, ... whichever is free first.
func AllocateURLSlug(ctx context.Context, st *store.Store, candidate string) (string, error) {
	var slug string
	err := st.View(ctx, func(tx *store.Tx) error {
		var err error
		slug, err = AllocateURLSlugTx(tx, candidate)
		return err
	})
	return slug, err
}

// AllocateURLSlugTx is AllocateURLSlug inside an existing transaction. It
// reads the url id index once.
func AllocateURLSlugTx(tx *store.Tx, candidate string) (string, error) {
	taken, err := store.Chats.IndexValues(tx, store.IndexURLID)
	if err != nil {
		return "", err
	}
	used := make(map[string]struct{}, len(taken))
	for _, s := range taken {
		used[s] = struct{}{}
	}
	if _, ok := used[candidate]; !ok {
		return candidate, nil
	}
	for i := 2; ; i++ {
		next := fmt.Sprintf("%s-%d", candidate, i)
		if _, ok := used[next]; !ok {
			return next, nil
		}
	}
}
