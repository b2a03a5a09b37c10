// Package services – ChatService
//
// This file implements ChatService, which owns the lifecycle of chat history
// items: listing and reading with ownership filtering, full-replace saves,
// deletion, and the derived operations fork, duplicate and description
// update. Every method receives the caller identity explicitly; an empty
// caller is anonymous and only sees ownerless chats.
//
// Transactions: reads run in one View, mutations in one Update. Fork and
// duplicate read the source chat in a View and allocate id, slug and write
// the new chat in a single Update, so allocation and insert cannot interleave
// with another writer.
//
// Disabled persistence: with a nil or unavailable store, reads return empty
// results or ErrChatNotFound and writes return ErrStorageUnavailable.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-chat-history/internal/domain"
	"github.com/tbourn/go-chat-history/internal/repo"
	"github.com/tbourn/go-chat-history/internal/store"
)

// TimestampLayout is the ISO-8601 layout used for stored chat timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

const (
	defaultForkDescription = "Forked chat"
	defaultCopyDescription = "Chat"
)

// ChatService provides chat history operations scoped to a caller.
type ChatService struct {
	Store *store.Store

	// InheritOwner stores the caller as owner of forked and duplicated chats.
	// When false they are stored ownerless.
	InheritOwner bool

	// Now is the clock used for default timestamps.
	Now func() time.Time
}

// NewChatService constructs a ChatService over st. st may be nil.
func NewChatService(st *store.Store) *ChatService {
	return &ChatService{Store: st, Now: time.Now}
}

// SaveChatInput is the full replacement record accepted by Save.
type SaveChatInput struct {
	ID          string
	Messages    []domain.Message
	UserID      *string
	URLID       string
	Description *string
	// Timestamp is optional; when set it must parse as a date.
	Timestamp string
}

func (s *ChatService) now() string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return now().UTC().Format(TimestampLayout)
}

// ListAll returns every chat visible to caller, newest first.
func (s *ChatService) ListAll(ctx context.Context, caller string) ([]domain.Chat, error) {
	if !s.Store.Available() {
		return []domain.Chat{}, nil
	}
	var out []domain.Chat
	err := s.Store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = repo.ListVisibleChats(tx, caller)
		return err
	})
	return out, err
}

// ListPage returns one page of chats visible to caller and the total count.
// Invalid page or pageSize values fall back to 1 and 20.
func (s *ChatService) ListPage(ctx context.Context, caller string, page, pageSize int) ([]domain.Chat, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if !s.Store.Available() {
		return []domain.Chat{}, 0, nil
	}

	var (
		items []domain.Chat
		total int64
	)
	err := s.Store.View(ctx, func(tx *store.Tx) error {
		var err error
		if total, err = repo.CountVisibleChats(tx, caller); err != nil || total == 0 {
			items = []domain.Chat{}
			return err
		}
		items, err = repo.ListVisibleChatsPage(tx, caller, (page-1)*pageSize, pageSize)
		return err
	})
	return items, total, err
}

// Stats returns the number of chats visible to caller and the time of the
// latest write among them (nil when there is none).
func (s *ChatService) Stats(ctx context.Context, caller string) (int64, *time.Time, error) {
	if !s.Store.Available() {
		return 0, nil, nil
	}
	var (
		count  int64
		latest *time.Time
	)
	err := s.Store.View(ctx, func(tx *store.Tx) error {
		var err error
		count, latest, err = repo.ChatsStats(tx, caller)
		return err
	})
	return count, latest, err
}

// Get resolves idOrURLID as a primary key first and as a url slug second.
// Chats owned by someone other than caller are reported as ErrChatNotFound.
func (s *ChatService) Get(ctx context.Context, caller, idOrURLID string) (*domain.Chat, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(
			attribute.String("chat.ref", idOrURLID),
			attribute.String("user.id", caller),
		),
	)
	defer span.End()

	if !s.Store.Available() {
		return nil, ErrChatNotFound
	}
	var c *domain.Chat
	err := s.Store.View(ctx, func(tx *store.Tx) error {
		var err error
		c, err = repo.FindChat(tx, idOrURLID)
		return err
	})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	if !c.VisibleTo(caller) {
		return nil, ErrChatNotFound
	}
	return c, nil
}

// Save validates the input and replaces the chat with id in.ID. An empty ID
// allocates the next numeric id; an empty URLID keeps the stored slug or
// allocates one derived from the id. A chat that exists but is owned by
// another user is reported as ErrChatNotFound and left untouched.
func (s *ChatService) Save(ctx context.Context, caller string, in SaveChatInput) (*domain.Chat, error) {
	ts := s.now()
	if strings.TrimSpace(in.Timestamp) != "" {
		t, err := ParseTimestamp(in.Timestamp)
		if err != nil {
			return nil, err
		}
		ts = t.UTC().Format(TimestampLayout)
	}
	if !s.Store.Available() {
		return nil, ErrStorageUnavailable
	}

	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Save",
		trace.WithAttributes(
			attribute.String("chat.id", in.ID),
			attribute.Int("messages", len(in.Messages)),
		),
	)
	defer span.End()

	var saved *domain.Chat
	err := s.Store.Update(ctx, func(tx *store.Tx) error {
		id := strings.TrimSpace(in.ID)
		urlID := strings.TrimSpace(in.URLID)

		if id == "" {
			var err error
			if id, err = repo.NextChatIDTx(tx); err != nil {
				return err
			}
		} else {
			existing, err := repo.GetChat(tx, id)
			switch {
			case err == nil:
				if !existing.VisibleTo(caller) {
					return ErrChatNotFound
				}
				if urlID == "" {
					urlID = existing.URLID
				}
			case !errors.Is(err, repo.ErrNotFound):
				return err
			}
		}
		if urlID == "" {
			var err error
			if urlID, err = repo.AllocateURLSlugTx(tx, id); err != nil {
				return err
			}
		}

		c := &domain.Chat{
			ID:          id,
			URLID:       urlID,
			UserID:      in.UserID,
			Description: in.Description,
			Messages:    in.Messages,
			Timestamp:   ts,
		}
		if err := repo.PutChat(tx, c); err != nil {
			if errors.Is(err, store.ErrConstraint) {
				return ErrURLIDTaken
			}
			return err
		}
		saved = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Remove deletes the chat with the given primary key. The delete is issued
// even when the id is absent.
func (s *ChatService) Remove(ctx context.Context, caller, id string) error {
	if !s.Store.Available() {
		return ErrStorageUnavailable
	}
	return s.Store.Update(ctx, func(tx *store.Tx) error {
		c, err := repo.GetChat(tx, id)
		switch {
		case err == nil && !c.VisibleTo(caller):
			return ErrChatNotFound
		case err != nil && !errors.Is(err, repo.ErrNotFound):
			return err
		}
		return repo.DeleteChat(tx, id)
	})
}

// Fork creates a new chat holding the messages of chatID up to and including
// messageID and returns the new chat's url slug.
func (s *ChatService) Fork(ctx context.Context, caller, chatID, messageID string) (string, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Fork",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.String("message.id", messageID),
		),
	)
	defer span.End()

	src, err := s.Get(ctx, caller, chatID)
	if err != nil {
		return "", err
	}
	idx := -1
	for i, m := range src.Messages {
		if m.ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", ErrMessageNotFound
	}

	desc := defaultForkDescription
	if d := src.DescriptionOr(""); d != "" {
		desc = d + " (fork)"
	}
	return s.create(ctx, s.derivedOwner(caller), desc, domain.CloneMessages(src.Messages[:idx+1]))
}

// Duplicate creates a full copy of chatID and returns the new url slug.
func (s *ChatService) Duplicate(ctx context.Context, caller, chatID string) (string, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Duplicate",
		trace.WithAttributes(attribute.String("chat.id", chatID)),
	)
	defer span.End()

	src, err := s.Get(ctx, caller, chatID)
	if err != nil {
		return "", err
	}
	desc := src.DescriptionOr(defaultCopyDescription) + " (copy)"
	return s.create(ctx, s.derivedOwner(caller), desc, domain.CloneMessages(src.Messages))
}

// CreateFromMessages stores a new ownerless chat and returns its url slug.
func (s *ChatService) CreateFromMessages(ctx context.Context, description string, msgs []domain.Message) (string, error) {
	return s.create(ctx, nil, description, domain.CloneMessages(msgs))
}

func (s *ChatService) derivedOwner(caller string) *string {
	if !s.InheritOwner || caller == "" {
		return nil
	}
	return &caller
}

func (s *ChatService) create(ctx context.Context, owner *string, description string, msgs []domain.Message) (string, error) {
	if !s.Store.Available() {
		return "", ErrStorageUnavailable
	}
	var slug string
	err := s.Store.Update(ctx, func(tx *store.Tx) error {
		id, err := repo.NextChatIDTx(tx)
		if err != nil {
			return err
		}
		if slug, err = repo.AllocateURLSlugTx(tx, id); err != nil {
			return err
		}
		c := &domain.Chat{
			ID:        id,
			URLID:     slug,
			UserID:    owner,
			Messages:  msgs,
			Timestamp: s.now(),
		}
		if description != "" {
			c.Description = &description
		}
		return repo.PutChat(tx, c)
	})
	if err != nil {
		return "", err
	}
	return slug, nil
}

// UpdateDescription replaces the description of a chat with text, stored as
// given, and keeps every other field. Blank text fails with
// ErrEmptyDescription before any write.
func (s *ChatService) UpdateDescription(ctx context.Context, caller, idOrURLID, text string) (*domain.Chat, error) {
	if IsBlankDescription(text) {
		return nil, ErrEmptyDescription
	}
	desc := text
	if !s.Store.Available() {
		return nil, ErrStorageUnavailable
	}

	var out *domain.Chat
	err := s.Store.Update(ctx, func(tx *store.Tx) error {
		c, err := repo.FindChat(tx, idOrURLID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrChatNotFound
		}
		if err != nil {
			return err
		}
		if !c.VisibleTo(caller) {
			return ErrChatNotFound
		}
		c.Description = &desc
		if err := repo.PutChat(tx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// timestampLayouts are the ISO-8601 forms accepted by ParseTimestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 date or date-time. Failures wrap
// ErrInvalidTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidTimestamp
}

// IsBlankDescription reports whether s is empty after compatibility
// folding (NFKC) and trimming whitespace and byte order marks.
func IsBlankDescription(s string) bool {
	return strings.TrimFunc(norm.NFKC.String(s), isTrimmable) == ""
}

func isTrimmable(r rune) bool { return unicode.IsSpace(r) || r == '\uFEFF' }
