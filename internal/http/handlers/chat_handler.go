// README: Chat and session handlers for the travel assistant.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wayfarer/internal/modules/dialogue"
	"wayfarer/internal/types"
)

// Conversations is the part of the orchestrator the handlers need.
type Conversations interface {
	Handle(ctx context.Context, sessionID, utterance string) (*dialogue.Reply, error)
	Session(ctx context.Context, sessionID string) (*dialogue.Snapshot, error)
	Reset(ctx context.Context, sessionID string) error
}

type ChatHandler struct {
	conv Conversations
}

func NewChatHandler(conv Conversations) *ChatHandler {
	return &ChatHandler{conv: conv}
}

type chatReq struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Chat handles POST /api/chat. A missing session_id starts a new session.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		req.SessionID = string(types.NewID())
	}

	reply, err := h.conv.Handle(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, reply)
}

// GetSession handles GET /api/sessions/:id.
func (h *ChatHandler) GetSession(c *gin.Context) {
	snap, err := h.conv.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snap)
}

// DeleteSession handles DELETE /api/sessions/:id.
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	if err := h.conv.Reset(c.Request.Context(), c.Param("id")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
