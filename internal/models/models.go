package models

import (
	"time"

	"github.com/google/uuid"
)

// ReservationState represents the lifecycle state of a stock hold
type ReservationState string

const (
	ReservationStateActive   ReservationState = "ACTIVE"
	ReservationStateConsumed ReservationState = "CONSUMED"
	ReservationStateReleased ReservationState = "RELEASED"
)

// IsTerminal reports whether no further transitions are allowed from the state
func (s ReservationState) IsTerminal() bool {
	return s == ReservationStateConsumed || s == ReservationStateReleased
}

// Domain Models

// ProductStock is the authoritative on-hand count for a product.
// Only the stock ledger mutates it, and only inside a product lock.
type ProductStock struct {
	ProductID string    `db:"product_id" json:"product_id"`
	OnHand    int       `db:"on_hand" json:"on_hand"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Reservation is a time-bounded hold against a product's available quantity,
// owned by a single holder (authenticated user or anonymous session).
// At most one ACTIVE row exists per (product_id, holder_key) pair.
type Reservation struct {
	ReservationID uuid.UUID        `db:"reservation_id" json:"reservation_id"`
	ProductID     string           `db:"product_id" json:"product_id"`
	HolderKey     string           `db:"holder_key" json:"holder_key"`
	Quantity      int              `db:"quantity" json:"quantity"`
	State         ReservationState `db:"state" json:"state"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	ExpiresAt     time.Time        `db:"expires_at" json:"expires_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// Expired reports whether the hold is past its expiry at the given instant
func (r *Reservation) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Order is the permanent record created when held stock is sold
type Order struct {
	OrderID   uuid.UUID   `db:"order_id" json:"order_id"`
	HolderKey string      `db:"holder_key" json:"holder_key"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	Lines     []OrderLine `db:"-" json:"lines"`
}

// OrderLine is a single fulfilled (product, quantity) pair of an order
type OrderLine struct {
	OrderID   uuid.UUID `db:"order_id" json:"order_id"`
	ProductID string    `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
}

// OrderIntent is the validated cart content handed over by the checkout service
type OrderIntent struct {
	HolderKey string       `json:"holder_key"`
	Lines     []IntentLine `json:"lines"`
}

// IntentLine is one requested (product, quantity) pair of an order intent
type IntentLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// OutboxEvent is a row of the transactional outbox. Events are written in the
// same transaction as the state change they describe and published by the
// dispatcher afterwards.
type OutboxEvent struct {
	ID              int64     `db:"id" json:"id"`
	EventType       string    `db:"event_type" json:"event_type"`
	Key             string    `db:"key" json:"key"`
	Payload         string    `db:"payload" json:"payload"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	Published       bool      `db:"published" json:"published"`
	PublishAttempts int       `db:"publish_attempts" json:"publish_attempts"`
	LastError       *string   `db:"last_error" json:"last_error,omitempty"`
}

// AvailabilitySnapshot is the cached view of a product's availability.
// It is deleted, never incrementally updated, after every commit that
// touches the product.
type AvailabilitySnapshot struct {
	ProductID string    `json:"product_id"`
	OnHand    int       `json:"on_hand"`
	Available int       `json:"available"`
	UpdatedAt time.Time `json:"updated_at"`
}
