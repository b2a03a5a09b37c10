package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-history/internal/domain"
)

// CreateProjectRequest creates a project. An empty project_id is generated.
type CreateProjectRequest struct {
	ProjectID string `json:"project_id,omitempty" example:"3f1c2a9e-0b7d-4a51-9d0e-2c3b4a5d6e7f"`
	Name      string `json:"name" binding:"required" example:"Research"`
}

// RenameProjectRequest renames a project.
type RenameProjectRequest struct {
	Name string `json:"name" binding:"required" example:"Research (old)"`
}

// ProjectResponse is the public view of a project. Times are epoch seconds.
type ProjectResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UserID    string `json:"user_id"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

func toProjectResponse(p *domain.UserProject) ProjectResponse {
	return ProjectResponse{
		ID:        p.ProjectID,
		Name:      p.Name,
		UserID:    p.UserID,
		CreatedAt: epoch(p.CreatedAt),
		UpdatedAt: epoch(p.UpdatedAt),
	}
}

func epoch(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// ListProjects godoc
// @ID          listProjects
// @Summary     List the caller's projects
// @Tags        Projects
// @Produce     json
// @Success     200 {array}  handlers.ProjectResponse
// @Failure     401 {object} handlers.ErrorResponse
// @Router      /projects [get]
func (h *Handlers) ListProjects(c *gin.Context) {
	uid, found := requireCaller(c)
	if !found {
		return
	}
	items, err := h.projects.ListByUser(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	out := make([]ProjectResponse, 0, len(items))
	for i := range items {
		out = append(out, toProjectResponse(&items[i]))
	}
	ok(c, http.StatusOK, out)
}

// CreateProject godoc
// @ID          createProject
// @Summary     Create a project
// @Tags        Projects
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.CreateProjectRequest  true  "Project"
// @Success     201 {object} handlers.ProjectResponse
// @Failure     400 {object} handlers.ErrorResponse
// @Failure     401 {object} handlers.ErrorResponse
// @Failure     409 {object} handlers.ErrorResponse "project_id already taken"
// @Router      /projects [post]
func (h *Handlers) CreateProject(c *gin.Context) {
	uid, found := requireCaller(c)
	if !found {
		return
	}
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}
	p, err := h.projects.Create(c.Request.Context(), uid, req.ProjectID, req.Name)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, toProjectResponse(p))
}

// GetProject godoc
// @ID          getProject
// @Summary     Get a project
// @Tags        Projects
// @Produce     json
// @Param       projectId  path  string  true  "Project id"
// @Success     200 {object} handlers.ProjectResponse
// @Failure     401 {object} handlers.ErrorResponse
// @Failure     404 {object} handlers.ErrorResponse
// @Router      /projects/{projectId} [get]
func (h *Handlers) GetProject(c *gin.Context) {
	uid, found := requireCaller(c)
	if !found {
		return
	}
	p, err := h.projects.Get(c.Request.Context(), uid, c.Param("projectId"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, toProjectResponse(p))
}

// RenameProject godoc
// @ID          renameProject
// @Summary     Rename a project
// @Tags        Projects
// @Accept      json
// @Produce     json
// @Param       projectId  path  string                          true  "Project id"
// @Param       body       body  handlers.RenameProjectRequest   true  "New name"
// @Success     200 {object} handlers.ProjectResponse
// @Failure     400 {object} handlers.ErrorResponse
// @Failure     404 {object} handlers.ErrorResponse
// @Router      /projects/{projectId} [put]
func (h *Handlers) RenameProject(c *gin.Context) {
	uid, found := requireCaller(c)
	if !found {
		return
	}
	var req RenameProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}
	p, err := h.projects.Rename(c.Request.Context(), uid, c.Param("projectId"), req.Name)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, toProjectResponse(p))
}

// DeleteProject godoc
// @ID          deleteProject
// @Summary     Delete a project
// @Tags        Projects
// @Param       projectId  path  string  true  "Project id"
// @Success     204 {string} string "No Content"
// @Failure     401 {object} handlers.ErrorResponse
// @Router      /projects/{projectId} [delete]
func (h *Handlers) DeleteProject(c *gin.Context) {
	uid, found := requireCaller(c)
	if !found {
		return
	}
	if err := h.projects.Remove(c.Request.Context(), uid, c.Param("projectId")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
