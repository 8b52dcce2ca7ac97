package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/timelogbot/internal/utils"
	"github.com/huangang/timelogbot/pkg/response"
)

const (
	ContextSubject = "subject"
	ContextTokenID = "token_id"
)

// AuthRequired accepts "Authorization: Bearer <token>" signed with the ops secret.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "authorization header required")
			return
		}

		scheme, tokenString, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
			response.Unauthorized(c, "invalid authorization header format")
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(ContextSubject, claims.Subject)
		c.Set(ContextTokenID, claims.ID)
		c.Next()
	}
}

// GetSubject returns the authenticated operator, or "" outside AuthRequired.
func GetSubject(c *gin.Context) string {
	return c.GetString(ContextSubject)
}
