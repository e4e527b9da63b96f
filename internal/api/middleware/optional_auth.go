package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"elecmate/internal/auth"
)

// OptionalAuthMiddleware injects identity when a valid access token is
// present but lets anonymous requests through. Public listings use it so
// per-viewer fields can be filled in when possible.
func OptionalAuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.Next()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil || claims.TokenType != "access" {
			c.Next()
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("userRole", claims.Role)
		c.Set("mustChangePassword", claims.MustChangePassword)
		c.Next()
	}
}
