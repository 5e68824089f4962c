package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types written to the outbox and published to Kafka
const (
	EventTypeReservationCreated  = "reservation_created"
	EventTypeReservationUpdated  = "reservation_updated"
	EventTypeReservationReleased = "reservation_released"
	EventTypeReservationExpired  = "reservation_expired"
	EventTypeReservationConsumed = "reservation_consumed"
	EventTypeOrderFulfilled      = "order_fulfilled"
	EventTypeStockRestocked      = "stock_restocked"
	EventTypeStockLow            = "stock_low"
	EventTypeStockDepleted       = "stock_depleted"
)

// EngineEvent is the payload of every outbox event emitted by the engine.
// Consumers (notification, invoicing) pick the fields relevant to the type.
type EngineEvent struct {
	EventID       string           `json:"event_id"`
	EventType     string           `json:"event_type"`
	ProductID     string           `json:"product_id,omitempty"`
	HolderKey     string           `json:"holder_key,omitempty"`
	Quantity      int              `json:"quantity,omitempty"`
	OnHand        int              `json:"on_hand,omitempty"`
	ReservationID *uuid.UUID       `json:"reservation_id,omitempty"`
	OrderID       *uuid.UUID       `json:"order_id,omitempty"`
	State         ReservationState `json:"state,omitempty"`
	Lines         []OrderLine      `json:"lines,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// NewEngineEvent builds an event with a fresh id and timestamp
func NewEngineEvent(eventType, productID string) *EngineEvent {
	return &EngineEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		ProductID: productID,
		Timestamp: time.Now().UTC(),
	}
}
