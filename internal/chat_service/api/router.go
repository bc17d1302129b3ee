package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bigballadanny/dwschatbot/internal/config"
	"github.com/bigballadanny/dwschatbot/pkg/httpmiddleware"
	"github.com/bigballadanny/dwschatbot/pkg/ratelimiter"
)

// RegisterRoutes registers all the routes for the chat service.
func RegisterRoutes(router *gin.Engine, api *API, mw config.MiddlewareConfig) error {
	router.Use(httpmiddleware.RequestLogger("chat_service"))

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

	chat := v1.Group("/chat")
	{
		chat.POST("/ask", api.AskHandler)
		chat.GET("/history/:id", api.HistoryHandler)
		chat.DELETE("/history/:id", api.ResetHandler)
	}

	return nil
}
