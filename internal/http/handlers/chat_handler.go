// Chat HTTP handlers.
//
// This file exposes the chat history endpoints:
//   - GET    /chats                   (list visible chats, paginated, weak ETag)
//   - POST   /chats                   (save a new chat under the next free id)
//   - GET    /chats/{id}              (by id or url slug)
//   - PUT    /chats/{id}              (full replace)
//   - DELETE /chats/{id}
//   - PUT    /chats/{id}/description
//   - POST   /chats/{id}/fork         (Idempotency-Key aware)
//   - POST   /chats/{id}/duplicate    (Idempotency-Key aware)
//
// Handlers stay transport-thin: bind, call the service with the caller
// resolved by middleware.Identity, map errors with failErr.
package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-history/internal/domain"
	"github.com/tbourn/go-chat-history/internal/http/middleware"
	"github.com/tbourn/go-chat-history/internal/llm"
	"github.com/tbourn/go-chat-history/internal/services"
	"github.com/tbourn/go-chat-history/internal/utils"
)

//
// Service contracts (context-aware)
//

// ChatService is the chat history surface used by the handlers.
type ChatService interface {
	ListPage(ctx context.Context, caller string, page, pageSize int) ([]domain.Chat, int64, error)
	Stats(ctx context.Context, caller string) (int64, *time.Time, error)
	Get(ctx context.Context, caller, idOrURLID string) (*domain.Chat, error)
	Save(ctx context.Context, caller string, in services.SaveChatInput) (*domain.Chat, error)
	Remove(ctx context.Context, caller, id string) error
	Fork(ctx context.Context, caller, chatID, messageID string) (string, error)
	Duplicate(ctx context.Context, caller, chatID string) (string, error)
	UpdateDescription(ctx context.Context, caller, idOrURLID, text string) (*domain.Chat, error)
}

// ProjectService manages the caller's projects.
type ProjectService interface {
	Create(ctx context.Context, userID, projectID, name string) (*domain.UserProject, error)
	ListByUser(ctx context.Context, userID string) ([]domain.UserProject, error)
	Get(ctx context.Context, userID, projectID string) (*domain.UserProject, error)
	VerifyAccess(ctx context.Context, userID, projectID string) error
	Rename(ctx context.Context, userID, projectID, name string) (*domain.UserProject, error)
	Remove(ctx context.Context, userID, projectID string) error
}

// UserService registers and reads user identities.
type UserService interface {
	Ensure(ctx context.Context, id string) (*domain.User, bool, error)
	Get(ctx context.Context, id string) (*domain.User, error)
}

// CompletionService streams a model response, continuing truncated output.
type CompletionService interface {
	Stream(ctx context.Context, msgs []llm.Message) (io.ReadCloser, error)
}

// IdempotencyRecorder stores the result of a chat-creating request.
type IdempotencyRecorder interface {
	Remember(ctx context.Context, caller, scope, key, result string, status int) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints. Nil services disable their routes'
// behavior only; the router always wires all of them.
type Handlers struct {
	chats       ChatService
	projects    ProjectService
	users       UserService
	completions CompletionService
	idem        IdempotencyRecorder
}

// New binds the handlers to their services. idem may be nil.
func New(chats ChatService, projects ProjectService, users UserService, completions CompletionService, idem IdempotencyRecorder) *Handlers {
	return &Handlers{chats: chats, projects: projects, users: users, completions: completions, idem: idem}
}

// caller returns the identity resolved by middleware.Identity, "" when
// anonymous.
func caller(c *gin.Context) string { return middleware.CallerFrom(c) }

// requireCaller writes 401 and returns false for anonymous requests.
func requireCaller(c *gin.Context) (string, bool) {
	id := caller(c)
	if id == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing user identity")
		return "", false
	}
	return id, true
}

//
// DTOs
//

// SaveChatRequest is the full replacement payload for a chat.
type SaveChatRequest struct {
	Messages    []domain.Message `json:"messages"`
	URLID       string           `json:"url_id,omitempty" example:"my-chat"`
	Description *string          `json:"description,omitempty" example:"Trip planning"`
	// Timestamp is ISO-8601; defaults to now.
	Timestamp string `json:"timestamp,omitempty" example:"2024-05-01T10:00:00.000Z"`
}

// DescriptionRequest carries a new chat description.
type DescriptionRequest struct {
	Description string `json:"description" binding:"required" example:"Trip planning"`
}

// ForkRequest selects the last message kept by a fork.
type ForkRequest struct {
	MessageID string `json:"message_id" binding:"required" example:"m3"`
}

// DerivedChatResponse names the chat created by fork or duplicate.
type DerivedChatResponse struct {
	URLID string `json:"url_id" example:"7"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListChatsResponse wraps a page of chats.
type ListChatsResponse struct {
	Chats      []domain.Chat `json:"chats"`
	Pagination Pagination    `json:"pagination"`
}

//
// Helpers
//

// clampPagination reads page and page_size with defaults 1 and 20 and caps
// page_size at 100.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = max(utils.AtoiDefault(c.Query("page"), defaultPage), 1)
	pageSize = min(max(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1), maxPageSize)
	return page, pageSize
}

// chatsETag is a weak validator over what the caller can see: the visible
// count and the latest write.
func chatsETag(caller string, count int64, latest *time.Time) string {
	var ts int64
	if latest != nil {
		ts = latest.UnixNano()
	}
	return fmt.Sprintf(`W/"chats:%s:%d:%d"`, caller, count, ts)
}

//
// Handlers
//

// ListChats godoc
// @ID          listChats
// @Summary     List chats (paginated)
// @Description Returns the chats visible to the caller, newest first. Supports If-None-Match.
// @Tags        Chats
// @Produce     json
// @Param       X-User-ID      header  string  false "Caller id"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"    minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page" minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListChatsResponse
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse
// @Router      /chats [get]
func (h *Handlers) ListChats(c *gin.Context) {
	ctx := c.Request.Context()
	uid := caller(c)
	page, pageSize := clampPagination(c)

	if count, latest, err := h.chats.Stats(ctx, uid); err == nil {
		etag := chatsETag(uid, count, latest)
		c.Header("ETag", etag)
		if c.GetHeader("If-None-Match") == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.chats.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListChatsResponse{
		Chats: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetChat godoc
// @ID          getChat
// @Summary     Get a chat
// @Description Resolves the path value as a chat id first and as a url slug second.
// @Tags        Chats
// @Produce     json
// @Param       id  path  string  true  "Chat id or url slug"
// @Success     200 {object} domain.Chat
// @Failure     404 {object} handlers.ErrorResponse
// @Router      /chats/{id} [get]
func (h *Handlers) GetChat(c *gin.Context) {
	ch, err := h.chats.Get(c.Request.Context(), caller(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ch)
}

// CreateChat godoc
// @ID          createChat
// @Summary     Save a new chat
// @Description Stores the chat under the next free numeric id. The caller, when known, owns it.
// @Tags        Chats
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.SaveChatRequest  true  "Chat"
// @Success     201 {object} domain.Chat
// @Failure     400 {object} handlers.ErrorResponse
// @Failure     409 {object} handlers.ErrorResponse "url_id already taken"
// @Router      /chats [post]
func (h *Handlers) CreateChat(c *gin.Context) {
	h.saveChat(c, "", http.StatusCreated)
}

// SaveChat godoc
// @ID          saveChat
// @Summary     Replace a chat
// @Description Full replace of the chat with this id. An empty url_id keeps the stored slug.
// @Tags        Chats
// @Accept      json
// @Produce     json
// @Param       id    path  string                    true  "Chat id"
// @Param       body  body  handlers.SaveChatRequest  true  "Chat"
// @Success     200 {object} domain.Chat
// @Failure     400 {object} handlers.ErrorResponse
// @Failure     404 {object} handlers.ErrorResponse "Owned by another user"
// @Failure     409 {object} handlers.ErrorResponse "url_id already taken"
// @Router      /chats/{id} [put]
func (h *Handlers) SaveChat(c *gin.Context) {
	h.saveChat(c, c.Param("id"), http.StatusOK)
}

func (h *Handlers) saveChat(c *gin.Context, id string, status int) {
	var req SaveChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	uid := caller(c)
	in := services.SaveChatInput{
		ID:          id,
		Messages:    req.Messages,
		URLID:       req.URLID,
		Description: req.Description,
		Timestamp:   req.Timestamp,
	}
	if uid != "" {
		in.UserID = &uid
	}
	ch, err := h.chats.Save(c.Request.Context(), uid, in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, status, ch)
}

// DeleteChat godoc
// @ID          deleteChat
// @Summary     Delete a chat
// @Tags        Chats
// @Param       id  path  string  true  "Chat id"
// @Success     204 {string} string "No Content"
// @Failure     404 {object} handlers.ErrorResponse "Owned by another user"
// @Router      /chats/{id} [delete]
func (h *Handlers) DeleteChat(c *gin.Context) {
	if err := h.chats.Remove(c.Request.Context(), caller(c), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// UpdateDescription godoc
// @ID          updateChatDescription
// @Summary     Rename a chat
// @Tags        Chats
// @Accept      json
// @Produce     json
// @Param       id    path  string                       true  "Chat id or url slug"
// @Param       body  body  handlers.DescriptionRequest  true  "New description"
// @Success     200 {object} domain.Chat
// @Failure     400 {object} handlers.ErrorResponse
// @Failure     404 {object} handlers.ErrorResponse
// @Router      /chats/{id}/description [put]
func (h *Handlers) UpdateDescription(c *gin.Context) {
	var req DescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "description required")
		return
	}
	ch, err := h.chats.UpdateDescription(c.Request.Context(), caller(c), c.Param("id"), req.Description)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ch)
}

// ForkChat godoc
// @ID          forkChat
// @Summary     Fork a chat at a message
// @Description Creates a chat holding the messages up to and including message_id.
// @Description A repeated Idempotency-Key returns the first fork.
// @Tags        Chats
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string  false "Retry key"
// @Param       id    path  string               true  "Chat id or url slug"
// @Param       body  body  handlers.ForkRequest true  "Fork point"
// @Success     201 {object} handlers.DerivedChatResponse
// @Failure     404 {object} handlers.ErrorResponse "Chat or message not found"
// @Router      /chats/{id}/fork [post]
func (h *Handlers) ForkChat(c *gin.Context) {
	if h.replay(c) {
		return
	}
	var req ForkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message_id required")
		return
	}
	slug, err := h.chats.Fork(c.Request.Context(), caller(c), c.Param("id"), strings.TrimSpace(req.MessageID))
	h.derived(c, slug, err)
}

// DuplicateChat godoc
// @ID          duplicateChat
// @Summary     Duplicate a chat
// @Description A repeated Idempotency-Key returns the first copy.
// @Tags        Chats
// @Produce     json
// @Param       Idempotency-Key  header  string  false "Retry key"
// @Param       id  path  string  true  "Chat id or url slug"
// @Success     201 {object} handlers.DerivedChatResponse
// @Failure     404 {object} handlers.ErrorResponse
// @Router      /chats/{id}/duplicate [post]
func (h *Handlers) DuplicateChat(c *gin.Context) {
	if h.replay(c) {
		return
	}
	slug, err := h.chats.Duplicate(c.Request.Context(), caller(c), c.Param("id"))
	h.derived(c, slug, err)
}

// replay serves a stored fork or duplicate result.
func (h *Handlers) replay(c *gin.Context) bool {
	slug, found := middleware.ReplayResult(c)
	if !found {
		return false
	}
	c.Header("Idempotency-Replayed", "true")
	ok(c, http.StatusCreated, DerivedChatResponse{URLID: slug})
	return true
}

// derived writes the fork/duplicate outcome and records it under the
// request's Idempotency-Key.
func (h *Handlers) derived(c *gin.Context, slug string, err error) {
	if err != nil {
		failErr(c, err)
		return
	}
	if key, has := middleware.GetIdempotencyKey(c); has && h.idem != nil {
		if err := h.idem.Remember(c.Request.Context(), caller(c), middleware.IdempotencyScope(c), key, slug, http.StatusCreated); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not stored")
		}
	}
	ok(c, http.StatusCreated, DerivedChatResponse{URLID: slug})
}
