package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"elecmate/internal/api/middleware"
	"elecmate/internal/config"
	"elecmate/internal/metrics"
)

// NewRouter builds the gin engine with the ambient middleware stack and
// the health endpoint.
func NewRouter(_ *config.Config, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.CorrelationIDMiddleware(),
		middleware.SlogLoggerMiddleware(logger),
		metrics.GinMiddleware(),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}
