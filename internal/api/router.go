package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"inventory-engine/internal/interfaces"
)

// SetupRouter wires all engine routes into a gin engine
func SetupRouter(
	reservations interfaces.ReservationService,
	fulfillment interfaces.FulfillmentService,
	stocks interfaces.StockService,
) *gin.Engine {
	// Set Gin to release mode for production
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())

	r.GET("/health", healthCheck)

	api := r.Group("/api/v1")
	{
		NewCartHandler(reservations).RegisterRoutes(api)
		NewCheckoutHandler(fulfillment).RegisterRoutes(api)
		NewAdminHandler(stocks).RegisterRoutes(api)
	}

	return r
}

// healthCheck handles health check requests
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "inventory-engine",
	})
}
