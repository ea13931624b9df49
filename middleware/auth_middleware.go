package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"postviews/api/utils"
)

const (
	TokenCookieName = "jwt_token"
	ContextUserID   = "user_id"
	ContextEmail    = "user_email"
)

// AuthRequired accepts either the static API key (for schedulers and
// tooling) or a valid dashboard JWT from the cookie or Authorization header.
func AuthRequired(jwtManager *utils.JWTManager, apiKey string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey != "" {
			given := c.GetHeader("X-API-KEY")
			if given != "" && subtle.ConstantTimeCompare([]byte(given), []byte(apiKey)) == 1 {
				c.Next()
				return
			}
		}

		tokenString := tokenFromRequest(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: No token provided"})
			return
		}

		claims, err := jwtManager.ValidateJWT(tokenString)
		if err != nil {
			log.Debug("rejected dashboard token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextEmail, claims.Email)
		c.Next()
	}
}

// OptionalAuth attaches the user to the context when a valid token is
// present and otherwise lets the request through anonymously.
func OptionalAuth(jwtManager *utils.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := tokenFromRequest(c); tokenString != "" {
			if claims, err := jwtManager.ValidateJWT(tokenString); err == nil {
				c.Set(ContextUserID, claims.UserID)
				c.Set(ContextEmail, claims.Email)
			}
		}
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context) string {
	if token, err := c.Cookie(TokenCookieName); err == nil && token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	return strings.TrimPrefix(header, "Bearer ")
}
