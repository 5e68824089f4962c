package interfaces

import (
	"context"

	"github.com/google/uuid"

	"inventory-engine/internal/models"
)

// ReservationService is the gatekeeper of availability: the only path through
// which cart quantities affect stock visibility.
type ReservationService interface {
	Reserve(ctx context.Context, holderKey, productID string, quantity int) (*models.Reservation, error)
	SetQuantity(ctx context.Context, holderKey, productID string, newQuantity int) (*models.Reservation, error)
	Release(ctx context.Context, holderKey, productID string, quantity int) error
	ReleaseAll(ctx context.Context, holderKey string) error
	GetAvailable(ctx context.Context, productID string) (*models.AvailabilityResponse, error)
	ReleaseExpired(ctx context.Context, reservationID uuid.UUID) error
}

// FulfillmentService converts active holds into a finalized order within a
// single all-or-nothing transaction
type FulfillmentService interface {
	Fulfill(ctx context.Context, intent *models.OrderIntent) (*models.Order, error)
}

// StockService owns on_hand mutation for admin restocks and corrections
type StockService interface {
	GetOnHand(ctx context.Context, productID string) (int, error)
	Restock(ctx context.Context, productID string, quantity int) (*models.ProductStock, error)
	Adjust(ctx context.Context, productID string, delta int) (*models.ProductStock, error)
}
