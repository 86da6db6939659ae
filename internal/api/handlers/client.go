package handlers

import (
	"net/http"
	"time"

	"github.com/clientcomm/core/internal/services"
	"github.com/gin-gonic/gin"
)

// ClientHandler adds clients to caseloads and edits their records
type ClientHandler struct {
	clients *services.ClientService
}

// NewClientHandler creates a new ClientHandler instance
func NewClientHandler(clients *services.ClientService) *ClientHandler {
	return &ClientHandler{clients: clients}
}

// CreateClientRequest is the new client form
type CreateClientRequest struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	PhoneNumber    string `json:"phone_number" binding:"required"`
	IDNumber       string `json:"id_number"`
	Notes          string `json:"notes"`
	ClientStatusID *uint  `json:"client_status_id"`
}

// UpdateDetailsRequest edits caseworker-owned fields; omitted fields are kept
type UpdateDetailsRequest struct {
	Category       *string `json:"category"`
	Notes          *string `json:"notes"`
	ClientStatusID *uint   `json:"client_status_id"`
}

// CourtDateRequest sets or clears a client's next court date
type CourtDateRequest struct {
	NextCourtDateAt *time.Time `json:"next_court_date_at"`
}

// Create adds a client to the caseworker's caseload
// POST /api/clients
func (h *ClientHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	result, err := h.clients.CreateClient(c.Request.Context(), userID, services.CreateClientInput{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		PhoneNumber:    req.PhoneNumber,
		IDNumber:       req.IDNumber,
		Notes:          req.Notes,
		ClientStatusID: req.ClientStatusID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Outcome != services.OutcomeCreated {
		status = http.StatusOK
	}
	respondOK(c, status, gin.H{
		"relationship": result.Relationship,
		"outcome":      result.Outcome,
	})
}

// UpdateDetails edits category, notes and status of a conversation
// PUT /api/relationships/:id
func (h *ClientHandler) UpdateDetails(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	rrID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req UpdateDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	rr, err := h.clients.UpdateDetails(c.Request.Context(), userID, rrID, services.UpdateDetailsInput{
		Category:       req.Category,
		Notes:          req.Notes,
		ClientStatusID: req.ClientStatusID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, rr)
}

// SetCourtDate records a caseworker-entered court date
// PUT /api/clients/:id/court_date
func (h *ClientHandler) SetCourtDate(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	clientID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req CourtDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	if err := h.clients.SetCourtDate(c.Request.Context(), userID, clientID, req.NextCourtDateAt); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
