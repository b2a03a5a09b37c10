package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RegisterUserRequest registers a user id. Empty means the caller.
type RegisterUserRequest struct {
	ID string `json:"id,omitempty" example:"u-123"`
}

// RegisterUser godoc
// @ID          registerUser
// @Summary     Register a user id
// @Description Creates the user if it does not exist. 201 when created, 200 when it already existed.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.RegisterUserRequest  false  "User"
// @Success     200 {object} domain.User
// @Success     201 {object} domain.User
// @Failure     400 {object} handlers.ErrorResponse
// @Router      /users [post]
func (h *Handlers) RegisterUser(c *gin.Context) {
	var req RegisterUserRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = caller(c)
	}
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id required")
		return
	}
	u, created, err := h.users.Ensure(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ok(c, status, u)
}

// GetUser godoc
// @ID          getUser
// @Summary     Get a user
// @Tags        Users
// @Produce     json
// @Param       id  path  string  true  "User id"
// @Success     200 {object} domain.User
// @Failure     404 {object} handlers.ErrorResponse
// @Router      /users/{id} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}
