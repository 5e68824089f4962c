package models

import (
	"time"

	"github.com/google/uuid"
)

// API Request Models

// ReserveRequest adds quantity to the holder's hold on a product
type ReserveRequest struct {
	HolderKey string `json:"holder_key" binding:"required" validate:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1" validate:"required,min=1"`
}

// SetQuantityRequest replaces the holder's held quantity (cart line edit).
// Zero releases the hold, so no min constraint on quantity.
type SetQuantityRequest struct {
	HolderKey string `json:"holder_key" binding:"required" validate:"required"`
	Quantity  int    `json:"quantity"`
}

// ReleaseRequest gives back part or all of the holder's hold
type ReleaseRequest struct {
	HolderKey string `json:"holder_key" binding:"required" validate:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1" validate:"required,min=1"`
}

// FulfillRequest carries the validated cart contents into checkout
type FulfillRequest struct {
	HolderKey string             `json:"holder_key" binding:"required" validate:"required"`
	Lines     []FulfillLineInput `json:"lines" binding:"required,min=1,dive" validate:"required,min=1,dive"`
}

// FulfillLineInput is one (product, quantity) pair of a fulfill request
type FulfillLineInput struct {
	ProductID string `json:"product_id" binding:"required" validate:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1" validate:"required,min=1"`
}

// RestockRequest adds physical stock for a product
type RestockRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1" validate:"required,min=1"`
}

// AdjustRequest applies a manual admin correction (positive or negative)
type AdjustRequest struct {
	Delta int `json:"delta" binding:"required" validate:"required"`
}

// API Response Models

// ReservationResponse describes a hold returned to cart callers
type ReservationResponse struct {
	ReservationID uuid.UUID        `json:"reservation_id"`
	ProductID     string           `json:"product_id"`
	HolderKey     string           `json:"holder_key"`
	Quantity      int              `json:"quantity"`
	State         ReservationState `json:"state"`
	ExpiresAt     time.Time        `json:"expires_at"`
}

// AvailabilityResponse is the read-side view of a product's stock
type AvailabilityResponse struct {
	ProductID string    `json:"product_id"`
	OnHand    int       `json:"on_hand"`
	Available int       `json:"available"`
	CacheHit  bool      `json:"cache_hit"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderResponse describes a fulfilled order
type OrderResponse struct {
	OrderID   uuid.UUID   `json:"order_id"`
	HolderKey string      `json:"holder_key"`
	CreatedAt time.Time   `json:"created_at"`
	Lines     []OrderLine `json:"lines"`
}

// ProblemDetails is an RFC 7807 style error body
type ProblemDetails struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Field  string `json:"field,omitempty"`
	Code   string `json:"code,omitempty"`
}

const (
	ProblemTypeValidationError = "validation-error"
	ProblemTypeBusinessError   = "business-logic-error"
	ProblemTypeNotFound        = "not-found"
	ProblemTypeInternalError   = "internal-error"
	ProblemTypeTransient       = "transient-failure"
)

// NewProblemDetails builds a generic problem body for the given status
func NewProblemDetails(status int, title, detail string) *ProblemDetails {
	return &ProblemDetails{
		Type:   problemType(status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
}

// NewValidationProblem builds a 400 problem for a single bad field
func NewValidationProblem(field, message string) *ProblemDetails {
	return &ProblemDetails{
		Type:   ProblemTypeValidationError,
		Title:  "Validation Failed",
		Status: 400,
		Detail: message,
		Field:  field,
		Code:   string(ErrorCodeInvalidField),
	}
}

// NewBusinessProblem builds a problem for a domain failure with its code
func NewBusinessProblem(status int, title, detail string, code ErrorCode) *ProblemDetails {
	return &ProblemDetails{
		Type:   ProblemTypeBusinessError,
		Title:  title,
		Status: status,
		Detail: detail,
		Code:   string(code),
	}
}

func problemType(status int) string {
	switch status {
	case 400:
		return ProblemTypeValidationError
	case 404:
		return ProblemTypeNotFound
	case 409, 422:
		return ProblemTypeBusinessError
	case 503:
		return ProblemTypeTransient
	default:
		return ProblemTypeInternalError
	}
}
