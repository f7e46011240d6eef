package api

import (
	"errors"
	"fmt"
	"net/http"

	"peakform/coach-app/internal/agent"

	"github.com/gin-gonic/gin"
)

// ChatHandler bridges the web channel into the assistant loop.
type ChatHandler struct {
	loop *agent.Loop
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(loop *agent.Loop) *ChatHandler {
	return &ChatHandler{loop: loop}
}

type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

type ChatResponse struct {
	Reply      string   `json:"reply"`
	Operations []string `json:"operations,omitempty"` // tool operations executed this turn
}

// Chat runs one assistant turn for the authenticated user. Turns for the same
// user are serialized; a concurrent request gets 409.
func (h *ChatHandler) Chat(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	result, err := h.loop.RunTurn(c.Request.Context(), userID, req.Message)
	if err != nil {
		if errors.Is(err, agent.ErrTurnInProgress) {
			abortWithError(c, http.StatusConflict, "A previous message is still being processed")
		} else {
			abortWithError(c, http.StatusInternalServerError, "Assistant turn failed")
		}
		return
	}

	resp := ChatResponse{Reply: result.Reply}
	for _, r := range result.Results {
		resp.Operations = append(resp.Operations, r.Operation)
	}
	c.JSON(http.StatusOK, resp)
}
