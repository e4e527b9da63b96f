package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const passwordChangeRequiredMessage = "password change required"

// RequirePasswordChangeCompletedMiddleware blocks accounts that still owe a
// forced password change. Relies solely on the access-token claim so no DB
// round trip happens per request.
func RequirePasswordChangeCompletedMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, ok := c.Get("mustChangePassword")
		if ok {
			if mustChange, ok := value.(bool); ok && mustChange {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": passwordChangeRequiredMessage})
				return
			}
		}
		c.Next()
	}
}
