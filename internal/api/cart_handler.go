package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"inventory-engine/internal/interfaces"
	"inventory-engine/internal/models"
)

// CartHandler handles HTTP requests for hold operations and availability reads
type CartHandler struct {
	reservations interfaces.ReservationService
}

// NewCartHandler creates a new cart API handler
func NewCartHandler(reservations interfaces.ReservationService) *CartHandler {
	return &CartHandler{reservations: reservations}
}

// RegisterRoutes registers the cart and availability routes
func (h *CartHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/products/:id/reserve", h.reserve)
	api.PUT("/products/:id/reservation", h.setQuantity)
	api.POST("/products/:id/release", h.release)
	api.GET("/products/:id/availability", h.availability)
	api.POST("/holders/:key/release", h.releaseAll)
}

// reserve adds quantity to the holder's hold (add to cart)
func (h *CartHandler) reserve(c *gin.Context) {
	productID := c.Param("id")
	if productID == "" {
		Response.ValidationError(c, "id", "Product ID is required")
		return
	}

	var req models.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Failed to bind reserve request")
		Response.BindingError(c, err)
		return
	}

	reservation, err := h.reservations.Reserve(c.Request.Context(), req.HolderKey, productID, req.Quantity)
	if err != nil {
		log.Error().Err(err).Str("product_id", productID).Str("holder_key", req.HolderKey).Msg("Failed to reserve stock")
		Response.DomainError(c, err)
		return
	}

	Response.Created(c, toReservationResponse(reservation))
}

// setQuantity replaces the holder's held quantity (cart line edit). A zero
// quantity releases the hold and returns 204.
func (h *CartHandler) setQuantity(c *gin.Context) {
	productID := c.Param("id")
	if productID == "" {
		Response.ValidationError(c, "id", "Product ID is required")
		return
	}

	var req models.SetQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Failed to bind set-quantity request")
		Response.BindingError(c, err)
		return
	}

	reservation, err := h.reservations.SetQuantity(c.Request.Context(), req.HolderKey, productID, req.Quantity)
	if err != nil {
		log.Error().Err(err).Str("product_id", productID).Str("holder_key", req.HolderKey).Msg("Failed to set reservation quantity")
		Response.DomainError(c, err)
		return
	}

	if reservation == nil {
		Response.NoContent(c)
		return
	}
	Response.Success(c, toReservationResponse(reservation))
}

// release gives back part or all of the holder's hold
func (h *CartHandler) release(c *gin.Context) {
	productID := c.Param("id")
	if productID == "" {
		Response.ValidationError(c, "id", "Product ID is required")
		return
	}

	var req models.ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Failed to bind release request")
		Response.BindingError(c, err)
		return
	}

	if err := h.reservations.Release(c.Request.Context(), req.HolderKey, productID, req.Quantity); err != nil {
		log.Error().Err(err).Str("product_id", productID).Str("holder_key", req.HolderKey).Msg("Failed to release stock")
		Response.DomainError(c, err)
		return
	}

	Response.NoContent(c)
}

// releaseAll releases every hold of a holder (cart clear, logout, deactivation)
func (h *CartHandler) releaseAll(c *gin.Context) {
	holderKey := c.Param("key")
	if holderKey == "" {
		Response.ValidationError(c, "key", "Holder key is required")
		return
	}

	if err := h.reservations.ReleaseAll(c.Request.Context(), holderKey); err != nil {
		log.Error().Err(err).Str("holder_key", holderKey).Msg("Failed to release holder reservations")
		Response.DomainError(c, err)
		return
	}

	Response.NoContent(c)
}

// availability returns on_hand minus all active holds
func (h *CartHandler) availability(c *gin.Context) {
	productID := c.Param("id")
	if productID == "" {
		Response.ValidationError(c, "id", "Product ID is required")
		return
	}

	availability, err := h.reservations.GetAvailable(c.Request.Context(), productID)
	if err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("Failed to get availability")
		Response.DomainError(c, err)
		return
	}

	Response.Success(c, availability)
}

func toReservationResponse(r *models.Reservation) *models.ReservationResponse {
	return &models.ReservationResponse{
		ReservationID: r.ReservationID,
		ProductID:     r.ProductID,
		HolderKey:     r.HolderKey,
		Quantity:      r.Quantity,
		State:         r.State,
		ExpiresAt:     r.ExpiresAt,
	}
}
