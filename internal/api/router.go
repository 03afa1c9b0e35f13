package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/amos"
	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/api/handlers"
	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/api/middleware"
	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/devices"
)

// APIKeyHeader carries the bridge API key.
const APIKeyHeader = "X-Diffuser-Key"

// RouterConfig holds dependencies for the API router
type RouterConfig struct {
	Registry *devices.Registry
	Session  *amos.Session
	APIKey   string
	Logger   *slog.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(config.Logger))
	router.Use(middleware.Logging(config.Logger))
	router.Use(middleware.ContentType())

	// Health check (no auth)
	healthHandler := handlers.NewHealthHandler()
	router.GET("/health", healthHandler.GetHealth)

	// API v1 routes (with authentication)
	v1 := router.Group("/v1")
	v1.Use(authMiddleware(config.APIKey))
	{
		devicesHandler := handlers.NewDevicesHandler(config.Registry, config.Logger)
		v1.GET("/devices", devicesHandler.ListDevices)
		v1.GET("/devices/:nid", devicesHandler.GetDevice)
		v1.PUT("/devices/:nid/power", devicesHandler.SetPower)
		v1.PUT("/devices/:nid/rotation-speed", devicesHandler.SetRotationSpeed)
		v1.PUT("/devices/:nid/lock", devicesHandler.SetLock)
		v1.POST("/devices/:nid/consumable/reset", devicesHandler.ResetConsumable)

		sessionHandler := handlers.NewSessionHandler(config.Session, config.Logger)
		v1.POST("/session/refresh", sessionHandler.RefreshSession)
	}

	return router
}

// authMiddleware verifies API key authentication
func authMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader(APIKeyHeader)
		if providedKey != apiKey {
			c.JSON(401, gin.H{
				"error": "Unauthorized",
				"code":  "UNAUTHORIZED",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
