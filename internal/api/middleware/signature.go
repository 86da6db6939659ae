package middleware

import (
	"net/http"
	"strings"

	"github.com/clientcomm/core/internal/transport"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SignatureMiddleware rejects provider webhooks whose signature does not
// match the auth token. The signed URL is baseURL plus the request URI.
func SignatureMiddleware(authToken, baseURL string, logger *zap.Logger) gin.HandlerFunc {
	baseURL = strings.TrimRight(baseURL, "/")
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}

		fullURL := baseURL + c.Request.URL.RequestURI()
		err := transport.ValidateSignature(authToken, fullURL, c.Request.PostForm, c.GetHeader(transport.SignatureHeader))
		if err != nil {
			logger.Warn("Rejected webhook",
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
				zap.Error(err),
			)
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}
