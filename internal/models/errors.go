package models

import (
	"errors"
	"fmt"
)

// ErrorCode represents standardized error codes surfaced to API callers
type ErrorCode string

const (
	ErrorCodeInvalidField        ErrorCode = "INVALID_FIELD"
	ErrorCodeInsufficientStock   ErrorCode = "INSUFFICIENT_STOCK"
	ErrorCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrorCodeConcurrencyConflict ErrorCode = "CONCURRENCY_CONFLICT"
	ErrorCodeFulfillmentAborted  ErrorCode = "FULFILLMENT_ABORTED"
	ErrorCodeInternalError       ErrorCode = "INTERNAL_ERROR"
)

// InsufficientStockError is the only domain failure of the reservation path:
// the requested quantity exceeds the computed availability. It is surfaced to
// the end user as a blocking condition and never retried automatically.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// NotFoundError signals that a referenced product or reservation does not exist
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConcurrencyConflictError signals a lock acquisition timeout or a
// transactional serialization conflict. Callers retry it a small bounded
// number of times with backoff before surfacing a transient failure.
type ConcurrencyConflictError struct {
	ProductID string
	Cause     error
}

func (e *ConcurrencyConflictError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("concurrency conflict on product %s: %v", e.ProductID, e.Cause)
	}
	return fmt.Sprintf("concurrency conflict on product %s", e.ProductID)
}

func (e *ConcurrencyConflictError) Unwrap() error {
	return e.Cause
}

// FulfillmentAbortedError is returned when any line item of an order fails
// re-validation at commit time. The whole attempt rolls back; there is never
// a partial commit. Cause carries the line-level failure.
type FulfillmentAbortedError struct {
	ProductID string
	Cause     error
}

func (e *FulfillmentAbortedError) Error() string {
	return fmt.Sprintf("fulfillment aborted at product %s: %v", e.ProductID, e.Cause)
}

func (e *FulfillmentAbortedError) Unwrap() error {
	return e.Cause
}

// Error type guards

func IsInsufficientStock(err error) bool {
	var target *InsufficientStockError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsConcurrencyConflict(err error) bool {
	var target *ConcurrencyConflictError
	return errors.As(err, &target)
}

func IsFulfillmentAborted(err error) bool {
	var target *FulfillmentAbortedError
	return errors.As(err, &target)
}

// CodeForError maps an engine error to its API error code
func CodeForError(err error) ErrorCode {
	switch {
	case IsInsufficientStock(err):
		return ErrorCodeInsufficientStock
	case IsNotFound(err):
		return ErrorCodeNotFound
	case IsFulfillmentAborted(err):
		return ErrorCodeFulfillmentAborted
	case IsConcurrencyConflict(err):
		return ErrorCodeConcurrencyConflict
	default:
		return ErrorCodeInternalError
	}
}
