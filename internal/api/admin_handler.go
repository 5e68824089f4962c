package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"inventory-engine/internal/interfaces"
	"inventory-engine/internal/models"
)

// AdminHandler handles HTTP requests for stock administration
type AdminHandler struct {
	stocks interfaces.StockService
}

// NewAdminHandler creates a new admin API handler
func NewAdminHandler(stocks interfaces.StockService) *AdminHandler {
	return &AdminHandler{stocks: stocks}
}

// RegisterRoutes registers the stock administration routes
func (h *AdminHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/products/:id/restock", h.restock)
	api.POST("/products/:id/adjust", h.adjust)
	api.GET("/products/:id/stock", h.onHand)
}

// restock adds physical stock, creating the product row on first stocking
func (h *AdminHandler) restock(c *gin.Context) {
	productID := c.Param("id")
	if productID == "" {
		Response.ValidationError(c, "id", "Product ID is required")
		return
	}

	var req models.RestockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Failed to bind restock request")
		Response.BindingError(c, err)
		return
	}

	stock, err := h.stocks.Restock(c.Request.Context(), productID, req.Quantity)
	if err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("Failed to restock product")
		Response.DomainError(c, err)
		return
	}

	Response.Success(c, stock)
}

// adjust applies a manual correction, positive or negative
func (h *AdminHandler) adjust(c *gin.Context) {
	productID := c.Param("id")
	if productID == "" {
		Response.ValidationError(c, "id", "Product ID is required")
		return
	}

	var req models.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Failed to bind adjust request")
		Response.BindingError(c, err)
		return
	}

	stock, err := h.stocks.Adjust(c.Request.Context(), productID, req.Delta)
	if err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("Failed to adjust stock")
		Response.DomainError(c, err)
		return
	}

	Response.Success(c, stock)
}

// onHand returns the authoritative physical count
func (h *AdminHandler) onHand(c *gin.Context) {
	productID := c.Param("id")
	if productID == "" {
		Response.ValidationError(c, "id", "Product ID is required")
		return
	}

	onHand, err := h.stocks.GetOnHand(c.Request.Context(), productID)
	if err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("Failed to get on-hand count")
		Response.DomainError(c, err)
		return
	}

	Response.Success(c, gin.H{"product_id": productID, "on_hand": onHand})
}
