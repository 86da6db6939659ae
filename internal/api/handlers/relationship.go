package handlers

import (
	"net/http"
	"time"

	"github.com/clientcomm/core/internal/database/models"
	"github.com/clientcomm/core/internal/services"
	"github.com/gin-gonic/gin"
)

// RelationshipHandler serves a caseworker's conversations
type RelationshipHandler struct {
	relationships *services.RelationshipService
	messages      *services.MessageService
}

// NewRelationshipHandler creates a new RelationshipHandler instance
func NewRelationshipHandler(relationships *services.RelationshipService, messages *services.MessageService) *RelationshipHandler {
	return &RelationshipHandler{
		relationships: relationships,
		messages:      messages,
	}
}

// messageView is a timeline entry with its derived kind
type messageView struct {
	models.Message
	Kind models.MessageKind `json:"kind"`
}

func toMessageViews(messages []models.Message, now time.Time) []messageView {
	views := make([]messageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, messageView{Message: m, Kind: m.Kind(now)})
	}
	return views
}

// SendMessageRequest is a new outbound message; SendAt schedules it
type SendMessageRequest struct {
	Body     string     `json:"body"`
	MediaURL string     `json:"media_url"`
	SendAt   *time.Time `json:"send_at"`
}

// TransferRequest hands the client to another caseworker
type TransferRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Note   string `json:"note"`
}

// MergeRequest folds this conversation into another of the caseworker's
type MergeRequest struct {
	IntoID   uint `json:"into_id" binding:"required"`
	CopyName bool `json:"copy_name"`
}

// ListRelationships returns the caseworker's active conversations
// GET /api/relationships
func (h *RelationshipHandler) ListRelationships(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	rrs, err := h.relationships.ListActive(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, rrs)
}

// ListFollowUps returns conversations overdue for contact
// GET /api/relationships/followups
func (h *RelationshipHandler) ListFollowUps(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	rrs, err := h.relationships.DueForFollowUp(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, rrs)
}

// ListMessages returns the timeline, or only pending messages with ?scheduled=true
// GET /api/relationships/:id/messages
func (h *RelationshipHandler) ListMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	rrID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var messages []models.Message
	var err error
	if c.Query("scheduled") == "true" {
		messages, err = h.messages.ListScheduled(c.Request.Context(), userID, rrID)
	} else {
		messages, err = h.messages.List(c.Request.Context(), userID, rrID)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, toMessageViews(messages, time.Now()))
}

// SendMessage sends now or schedules a message to the client
// POST /api/relationships/:id/messages
func (h *RelationshipHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	rrID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	msg, err := h.messages.Send(c.Request.Context(), userID, rrID, services.SendMessageInput{
		Body:     req.Body,
		MediaURL: req.MediaURL,
		SendAt:   req.SendAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, messageView{Message: *msg, Kind: msg.Kind(time.Now())})
}

// MarkRead clears the conversation's unread state
// PUT /api/relationships/:id/read
func (h *RelationshipHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	rrID, ok := idParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.relationships.Get(c.Request.Context(), userID, rrID); err != nil {
		respondError(c, err)
		return
	}
	if err := h.relationships.MarkMessagesRead(c.Request.Context(), rrID, true); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Transfer hands the client to another caseworker in the department
// POST /api/relationships/:id/transfer
func (h *RelationshipHandler) Transfer(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	rrID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	if _, err := h.relationships.Get(c.Request.Context(), userID, rrID); err != nil {
		respondError(c, err)
		return
	}

	result, err := h.relationships.Transfer(c.Request.Context(), services.TransferRequest{
		RelationshipID: rrID,
		ToUserID:       req.UserID,
		Note:           req.Note,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"from":           result.From,
		"to":             result.To,
		"moved_messages": result.MovedMessages,
	})
}

// Merge folds this conversation into another one in the caseworker's department
// POST /api/relationships/:id/merge
func (h *RelationshipHandler) Merge(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	rrID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	if _, err := h.relationships.Get(c.Request.Context(), userID, rrID); err != nil {
		respondError(c, err)
		return
	}
	if _, err := h.relationships.GetInDepartment(c.Request.Context(), userID, req.IntoID); err != nil {
		respondError(c, err)
		return
	}

	result, err := h.relationships.Merge(c.Request.Context(), services.MergeRequest{
		FromID:   rrID,
		ToID:     req.IntoID,
		CopyName: req.CopyName,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"from":           result.From,
		"to":             result.To,
		"moved_messages": result.MovedMessages,
	})
}

// Deactivate closes the conversation and drops its pending messages
// POST /api/relationships/:id/deactivate
func (h *RelationshipHandler) Deactivate(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	rrID, ok := idParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.relationships.Get(c.Request.Context(), userID, rrID); err != nil {
		respondError(c, err)
		return
	}

	result, err := h.relationships.Deactivate(c.Request.Context(), rrID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"relationship":      result.Relationship,
		"marked_read":       result.MarkedRead,
		"deleted_scheduled": result.DeletedScheduled,
	})
}
