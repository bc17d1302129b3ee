package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bigballadanny/dwschatbot/internal/config"
	"github.com/bigballadanny/dwschatbot/pkg/httpmiddleware"
	"github.com/bigballadanny/dwschatbot/pkg/ratelimiter"
)

// RegisterRoutes registers all the routes for the transcript service.
func RegisterRoutes(router *gin.Engine, api *API, mw config.MiddlewareConfig) error {
	router.Use(httpmiddleware.RequestLogger("transcript_service"))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// All routes under /api/v1 require a user identity.
	v1 := router.Group("/api/v1")
	v1.Use(httpmiddleware.UserScope())
	if mw.RateLimiter.Enabled {
		factory, err := httpmiddleware.LimiterFactory(mw.RateLimiter)
		if err != nil {
			return err
		}
		v1.Use(httpmiddleware.RateLimitPerUser(ratelimiter.NewPerKey(factory)))
	}

	transcripts := v1.Group("/transcripts")
	{
		transcripts.POST("", api.UploadHandler)
		transcripts.GET("", api.ListHandler)
		transcripts.GET("/:id", api.StatusHandler)
		transcripts.POST("/:id/reprocess", api.ReprocessHandler)
		transcripts.GET("/:id/audit", api.AuditHandler)
		transcripts.DELETE("/:id", api.DeleteHandler)
	}

	// Pipeline-wide operations live outside /transcripts because gin cannot
	// mix a static segment with the :id wildcard.
	v1.GET("/processing/stuck", api.StuckHandler)
	v1.POST("/processing/reprocess", api.BulkReprocessHandler)

	// WebSocket route for processing progress.
	ws := router.Group("/ws")
	ws.Use(httpmiddleware.UserScope())
	{
		ws.GET("/progress", api.WebSocketHandler)
	}

	return nil
}
