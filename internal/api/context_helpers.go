package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"elecmate/internal/api/middleware"
)

func userIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get("userID")
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case uint64:
		return uint(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	default:
		return 0, false
	}
}

func userRoleFromContext(c *gin.Context) (string, bool) {
	value, exists := c.Get("userRole")
	if !exists {
		return "", false
	}
	role, ok := value.(string)
	return role, ok && role != ""
}

func requestLogger(c *gin.Context, fallback *slog.Logger) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}
