package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-history/internal/http/middleware"
	"github.com/tbourn/go-chat-history/internal/llm"
)

// HeaderStreamError is the trailer set when a streamed answer ends early.
const HeaderStreamError = "X-Stream-Error"

// ChatRequest asks for a streamed answer to a conversation.
type ChatRequest struct {
	Messages  []llm.Message `json:"messages" binding:"required"`
	ProjectID string        `json:"project_id,omitempty"`
}

// Chat godoc
// @ID          chat
// @Summary     Stream an answer
// @Description Streams the model answer as plain text. Truncated answers are continued transparently.
// @Description If generation fails mid-stream the body ends early and the X-Stream-Error trailer names the cause.
// @Tags        Chat
// @Accept      json
// @Produce     plain
// @Param       body  body  handlers.ChatRequest  true  "Conversation"
// @Success     200 {string} string "Answer text"
// @Failure     400 {object} handlers.ErrorResponse
// @Failure     401 {object} handlers.ErrorResponse
// @Failure     404 {object} handlers.ErrorResponse "Project not found"
// @Router      /chat [post]
func (h *Handlers) Chat(c *gin.Context) {
	uid, found := requireCaller(c)
	if !found {
		return
	}
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "messages required")
		return
	}
	ctx := c.Request.Context()
	if p := strings.TrimSpace(req.ProjectID); p != "" {
		if err := h.projects.VerifyAccess(ctx, uid, p); err != nil {
			failErr(c, err)
			return
		}
	}

	rc, err := h.completions.Stream(ctx, req.Messages)
	if err != nil {
		failErr(c, err)
		return
	}
	defer rc.Close()

	hdr := c.Writer.Header()
	hdr.Set("Content-Type", "text/plain; charset=utf-8")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("X-Accel-Buffering", "no")
	hdr.Set("Trailer", HeaderStreamError)
	c.Status(http.StatusOK)

	written, err := pipe(c, rc)
	if err == nil {
		return
	}
	log := middleware.LoggerFrom(c)
	if ctx.Err() != nil {
		log.Info().Int64("bytes", written).Msg("client left during stream")
		return
	}
	log.Warn().Err(err).Int64("bytes", written).Msg("stream ended early")
	hdr.Set(HeaderStreamError, streamErrorText(err))
}

// pipe copies r to the response, flushing after every read. It returns nil
// on a clean EOF.
func pipe(c *gin.Context, r io.Reader) (int64, error) {
	buf := make([]byte, 4096)
	var total int64
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			w, werr := c.Writer.Write(buf[:n])
			total += int64(w)
			if werr != nil {
				return total, werr
			}
			c.Writer.Flush()
		}
		if errors.Is(rerr, io.EOF) {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

// streamErrorText keeps trailer values on one line.
func streamErrorText(err error) string {
	s := strings.Join(strings.Fields(err.Error()), " ")
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
