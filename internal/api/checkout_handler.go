package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"inventory-engine/internal/interfaces"
	"inventory-engine/internal/models"
)

// CheckoutHandler handles HTTP requests for order fulfillment
type CheckoutHandler struct {
	fulfillment interfaces.FulfillmentService
}

// NewCheckoutHandler creates a new checkout API handler
func NewCheckoutHandler(fulfillment interfaces.FulfillmentService) *CheckoutHandler {
	return &CheckoutHandler{fulfillment: fulfillment}
}

// RegisterRoutes registers the order routes
func (h *CheckoutHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/orders", h.fulfill)
}

// fulfill finalizes the holder's cart into an order, all lines or none
func (h *CheckoutHandler) fulfill(c *gin.Context) {
	var req models.FulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Failed to bind fulfill request")
		Response.BindingError(c, err)
		return
	}

	intent := &models.OrderIntent{
		HolderKey: req.HolderKey,
		Lines:     make([]models.IntentLine, 0, len(req.Lines)),
	}
	for _, line := range req.Lines {
		intent.Lines = append(intent.Lines, models.IntentLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}

	order, err := h.fulfillment.Fulfill(c.Request.Context(), intent)
	if err != nil {
		log.Error().Err(err).Str("holder_key", req.HolderKey).Int("lines", len(req.Lines)).Msg("Failed to fulfill order")
		Response.DomainError(c, err)
		return
	}

	Response.Created(c, &models.OrderResponse{
		OrderID:   order.OrderID,
		HolderKey: order.HolderKey,
		CreatedAt: order.CreatedAt,
		Lines:     order.Lines,
	})
}
