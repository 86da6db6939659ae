package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	APIKeyHeader        = "X-API-Key"
	AuthorizationHeader = "Authorization"
	BearerPrefix        = "Bearer "

	ctxUserID = "user_id"
	ctxEmail  = "email"
)

// AuthManager bundles the front-end API key and caseworker sessions
type AuthManager struct {
	APIKeyManager *APIKeyManager
	JWTManager    *JWTManager
}

// NewAuthManager loads (or creates) the API key in dataDir and sets up JWT signing
func NewAuthManager(dataDir, jwtSecret string, tokenExpiry time.Duration) (*AuthManager, error) {
	keys, err := NewAPIKeyManager(dataDir)
	if err != nil {
		return nil, err
	}
	return &AuthManager{APIKeyManager: keys, JWTManager: NewJWTManager(jwtSecret, tokenExpiry)}, nil
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   gin.H{"code": "AUTH_FAILED", "message": message},
	})
}

// APIKeyMiddleware rejects requests without the shared API key
func APIKeyMiddleware(keys *APIKeyManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch key := c.GetHeader(APIKeyHeader); {
		case key == "":
			unauthorized(c, "API key is required")
		case !keys.ValidateKey(key):
			unauthorized(c, "Invalid API key")
		default:
			c.Next()
		}
	}
}

// JWTMiddleware requires a caseworker session and exposes it to handlers
func JWTMiddleware(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(AuthorizationHeader)
		if header == "" {
			unauthorized(c, "Authorization header is required")
			return
		}
		raw, ok := strings.CutPrefix(header, BearerPrefix)
		if !ok {
			unauthorized(c, "Invalid authorization header format")
			return
		}

		claims, err := jwtManager.ValidateToken(raw)
		if errors.Is(err, ErrTokenExpired) {
			unauthorized(c, "Token has expired")
			return
		}
		if err != nil {
			unauthorized(c, "Invalid token")
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxEmail, claims.Email)
		c.Next()
	}
}

// GetUserIDFromContext returns the signed-in caseworker's id
func GetUserIDFromContext(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// GetEmailFromContext returns the signed-in caseworker's email
func GetEmailFromContext(c *gin.Context) (string, bool) {
	email := c.GetString(ctxEmail)
	return email, email != ""
}
