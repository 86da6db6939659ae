package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/clientcomm/core/internal/api/middleware"
	"github.com/clientcomm/core/internal/services"
	"github.com/gin-gonic/gin"
)

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondFail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": "Invalid request body",
			"details": err.Error(),
		},
	})
}

// respondError maps service errors onto the error envelope
func respondError(c *gin.Context, err error) {
	var validation *services.ValidationError
	var importErr *services.ImportValidationError
	var conflictErr *services.ConflictError

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": validation.Message,
				"field":   validation.Field,
			},
		})
	case errors.As(err, &importErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "IMPORT_ERROR",
				"message": importErr.Error(),
				"row":     importErr.Row,
				"field":   importErr.Field,
			},
		})
	case errors.As(err, &conflictErr):
		respondFail(c, http.StatusConflict, "CONFLICT", conflictErr.Error())
	case errors.Is(err, services.ErrNotScheduled):
		respondFail(c, http.StatusConflict, "NOT_SCHEDULED", "Message has already been sent")
	case errors.Is(err, services.ErrRelationshipNotFound),
		errors.Is(err, services.ErrMessageNotFound),
		errors.Is(err, services.ErrClientNotFound),
		errors.Is(err, services.ErrUserNotFound):
		respondFail(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	default:
		_ = c.Error(err)
		respondFail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

// currentUser reads the caseworker ID set by JWTMiddleware, answering 401 when absent
func currentUser(c *gin.Context) (uint, bool) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		respondFail(c, http.StatusUnauthorized, "AUTH_FAILED", "User not authenticated")
		return 0, false
	}
	return userID, true
}

// idParam parses a numeric path parameter, answering 400 when malformed
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		respondFail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}
