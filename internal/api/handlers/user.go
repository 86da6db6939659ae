package handlers

import (
	"errors"
	"net/http"

	"github.com/clientcomm/core/internal/database/models"
	"github.com/clientcomm/core/internal/services"
	"github.com/gin-gonic/gin"
)

// UserHandler handles the signed-in caseworker's own settings
type UserHandler struct {
	userService *services.UserService
	logService  *services.LogService
}

// NewUserHandler creates a new UserHandler instance
func NewUserHandler(userService *services.UserService, logService *services.LogService) *UserHandler {
	return &UserHandler{
		userService: userService,
		logService:  logService,
	}
}

// UpdateProfileRequest represents the request to update user settings
type UpdateProfileRequest struct {
	EmailSubscribe *bool `json:"email_subscribe" binding:"required"`
}

// ChangePasswordRequest represents the request to change password
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

// UpdateProfile toggles email notifications
// PUT /api/user/profile
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	user, err := h.userService.SetEmailSubscribe(userID, *req.EmailSubscribe)
	if err != nil {
		respondError(c, err)
		return
	}

	_ = h.logService.LogInfo(userID, models.LogModuleUser, "profile_update", "User settings updated", map[string]interface{}{
		"email_subscribe": *req.EmailSubscribe,
	})
	respondOK(c, http.StatusOK, ToProfileResponse(user))
}

// ChangePassword changes the current user's password
// PUT /api/user/password
func (h *UserHandler) ChangePassword(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	err := h.userService.ChangePassword(userID, req.OldPassword, req.NewPassword)
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		respondFail(c, http.StatusUnauthorized, "AUTH_FAILED", "Current password is incorrect")
		return
	case errors.Is(err, services.ErrPasswordTooShort):
		respondFail(c, http.StatusBadRequest, "VALIDATION_ERROR", "New password must be at least 6 characters")
		return
	case err != nil:
		respondError(c, err)
		return
	}

	_ = h.logService.LogInfo(userID, models.LogModuleAuth, "password_change", "Password changed", nil)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Password changed successfully",
	})
}
