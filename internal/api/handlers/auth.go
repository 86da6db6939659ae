package handlers

import (
	"net/http"

	"github.com/clientcomm/core/internal/api/middleware"
	"github.com/clientcomm/core/internal/database/models"
	"github.com/clientcomm/core/internal/services"
	"github.com/gin-gonic/gin"
)

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// AuthHandler signs caseworkers in
type AuthHandler struct {
	userService *services.UserService
	jwtManager  *middleware.JWTManager
	logService  *services.LogService
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(userService *services.UserService, jwtManager *middleware.JWTManager, logService *services.LogService) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		jwtManager:  jwtManager,
		logService:  logService,
	}
}

// Login handles caseworker login requests
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	user, err := h.userService.VerifyPassword(req.Email, req.Password)
	if err != nil {
		_ = h.logService.LogLogin(0, req.Email, c.ClientIP(), false, err)
		respondFail(c, http.StatusUnauthorized, "AUTH_FAILED", "Invalid email or password")
		return
	}

	token, expiresAt, err := h.jwtManager.GenerateToken(user.ID, user.Email)
	if err != nil {
		respondFail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate token")
		return
	}

	_ = h.logService.LogLogin(user.ID, user.Email, c.ClientIP(), true, nil)

	respondOK(c, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// RefreshToken issues a fresh token for the signed-in caseworker
// POST /api/auth/refresh
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	email, _ := middleware.GetEmailFromContext(c)

	token, expiresAt, err := h.jwtManager.GenerateToken(userID, email)
	if err != nil {
		respondFail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate token")
		return
	}
	respondOK(c, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// GetCurrentUser returns the signed-in caseworker
// GET /api/auth/me
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	user, err := h.userService.GetUserByID(userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, ToProfileResponse(user))
}

// UserProfileResponse represents the caseworker profile response
type UserProfileResponse struct {
	ID                uint   `json:"id"`
	Email             string `json:"email"`
	FullName          string `json:"full_name"`
	PhoneNumber       string `json:"phone_number"`
	DepartmentID      *uint  `json:"department_id"`
	DepartmentName    string `json:"department_name,omitempty"`
	HasUnreadMessages bool   `json:"has_unread_messages"`
	EmailSubscribe    bool   `json:"email_subscribe"`
	CreatedAt         int64  `json:"created_at"`
}

// ToProfileResponse converts a User model to UserProfileResponse
func ToProfileResponse(user *models.User) UserProfileResponse {
	resp := UserProfileResponse{
		ID:                user.ID,
		Email:             user.Email,
		FullName:          user.FullName,
		PhoneNumber:       user.PhoneNumber,
		DepartmentID:      user.DepartmentID,
		HasUnreadMessages: user.HasUnreadMessages,
		EmailSubscribe:    user.EmailSubscribe,
		CreatedAt:         user.CreatedAt.Unix(),
	}
	if user.Department != nil {
		resp.DepartmentName = user.Department.Name
	}
	return resp
}
