package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-history/internal/http/middleware"
	"github.com/tbourn/go-chat-history/internal/llm"
	"github.com/tbourn/go-chat-history/internal/services"
	"github.com/tbourn/go-chat-history/internal/store"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// testEnv wires real services over a temporary SQLite database.
type testEnv struct {
	store    *store.Store
	chats    *services.ChatService
	projects *services.ProjectService
	users    *services.UserService
	idem     *services.IdempotencyService
	router   *gin.Engine
}

func newTestEnv(t *testing.T, completions CompletionService) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "handlers_test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	env := &testEnv{
		store:    st,
		chats:    services.NewChatService(st),
		projects: services.NewProjectService(st),
		users:    services.NewUserService(st),
		idem:     services.NewIdempotencyService(st, time.Hour),
	}
	env.chats.Now = func() time.Time { return fixedNow }

	h := New(env.chats, env.projects, env.users, completions, env.idem)

	r := gin.New()
	ensure := func(ctx context.Context, id string) error {
		_, _, err := env.users.Ensure(ctx, id)
		return err
	}
	r.Use(middleware.RequestID(), middleware.Identity(middleware.IdentityOptions{Ensure: ensure}))
	idem := middleware.Idempotency(middleware.IdempotencyOptions{}, env.idem.Lookup)

	r.GET("/chats", h.ListChats)
	r.POST("/chats", h.CreateChat)
	r.GET("/chats/:id", h.GetChat)
	r.PUT("/chats/:id", h.SaveChat)
	r.DELETE("/chats/:id", h.DeleteChat)
	r.PUT("/chats/:id/description", h.UpdateDescription)
	r.POST("/chats/:id/fork", idem, h.ForkChat)
	r.POST("/chats/:id/duplicate", idem, h.DuplicateChat)

	r.GET("/projects", h.ListProjects)
	r.POST("/projects", h.CreateProject)
	r.GET("/projects/:projectId", h.GetProject)
	r.PUT("/projects/:projectId", h.RenameProject)
	r.DELETE("/projects/:projectId", h.DeleteProject)

	r.POST("/users", h.RegisterUser)
	r.GET("/users/:id", h.GetUser)

	r.POST("/chat", h.Chat)

	env.router = r
	return env
}

// do sends a request as user (empty for anonymous) with an optional JSON body.
func (e *testEnv) do(method, path, user string, body any, headers ...string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

// fakeCompletions streams a fixed body, or fails before streaming.
type fakeCompletions struct {
	body    string
	readErr error
	err     error
	got     []llm.Message
}

func (f *fakeCompletions) Stream(_ context.Context, msgs []llm.Message) (io.ReadCloser, error) {
	f.got = msgs
	if f.err != nil {
		return nil, f.err
	}
	var r io.Reader = bytes.NewBufferString(f.body)
	if f.readErr != nil {
		r = io.MultiReader(r, errReader{f.readErr})
	}
	return io.NopCloser(r), nil
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }
