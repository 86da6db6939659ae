package handlers

import (
	"net/http"
	"time"

	"github.com/clientcomm/core/internal/services"
	"github.com/gin-gonic/gin"
)

// MessageHandler edits messages that have not gone out yet
type MessageHandler struct {
	messages *services.MessageService
}

// NewMessageHandler creates a new MessageHandler instance
func NewMessageHandler(messages *services.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// RescheduleRequest is the new body and send time of a scheduled message
type RescheduleRequest struct {
	Body   string    `json:"body" binding:"required"`
	SendAt time.Time `json:"send_at" binding:"required"`
}

// Reschedule edits a scheduled message
// PUT /api/messages/:id
func (h *MessageHandler) Reschedule(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	msg, err := h.messages.Reschedule(c.Request.Context(), userID, id, req.Body, req.SendAt)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, messageView{Message: *msg, Kind: msg.Kind(time.Now())})
}

// Delete removes a scheduled message
// DELETE /api/messages/:id
func (h *MessageHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.messages.DeleteScheduled(c.Request.Context(), userID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
