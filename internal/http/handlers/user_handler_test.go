package handlers

import (
	"net/http"
	"testing"

	"github.com/tbourn/go-chat-history/internal/domain"
)

func TestRegisterUser(t *testing.T) {
	env := newTestEnv(t, nil)

	if w := env.do(http.MethodPost, "/users", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("no id -> %d", w.Code)
	}

	w := env.do(http.MethodPost, "/users", "", RegisterUserRequest{ID: "alice"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register -> %d body=%s", w.Code, w.Body.String())
	}
	if u := decode[domain.User](t, w); u.ID != "alice" || u.CreatedAt.IsZero() {
		t.Fatalf("user = %+v", u)
	}
	if w := env.do(http.MethodPost, "/users", "", RegisterUserRequest{ID: "alice"}); w.Code != http.StatusOK {
		t.Fatalf("re-register -> %d", w.Code)
	}

	// The caller is registered on sight, so registering itself is a no-op.
	if w := env.do(http.MethodPost, "/users", "bob", nil); w.Code != http.StatusOK {
		t.Fatalf("self register -> %d", w.Code)
	}
}

func TestGetUser(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(http.MethodPost, "/users", "", RegisterUserRequest{ID: "alice"})

	if w := env.do(http.MethodGet, "/users/alice", "", nil); w.Code != http.StatusOK {
		t.Fatalf("get -> %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/users/ghost", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("get missing -> %d", w.Code)
	}
}
