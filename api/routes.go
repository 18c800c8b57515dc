package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func SetupRoutes(router *gin.Engine, hub *WebSocketHub, h *Handlers, ws WebSocketHandlers, log zerolog.Logger) {
	// Enable CORS
	router.Use(CORSMiddleware())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "connections": h.Registry.Count()})
	})

	// API routes
	api := router.Group("/api")
	{
		displays := api.Group("/displays")
		{
			displays.GET("", h.GetDisplays)
			displays.POST("/notify", h.NotifyContentUpdate)
			displays.GET("/:id", h.GetDisplay)
			displays.DELETE("/:id", h.DeleteDisplay)
			displays.GET("/:id/content", h.GetDisplayContent)
			displays.POST("/:id/content", h.AssignContent)
			displays.DELETE("/:id/content/:contentId", h.UnassignContent)
			displays.PUT("/:id/schedule", h.ReplaceSchedule)
			displays.POST("/:id/push", h.PushContent)
			displays.POST("/:id/pairing-code", h.IssuePairingCode)
			displays.POST("/:id/maintenance", h.SetMaintenance)
		}

		api.POST("/contents", h.UpsertContent)
	}

	// WebSocket route
	router.GET("/ws", func(c *gin.Context) {
		HandleWebSocket(hub, ws, log, c)
	})
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
