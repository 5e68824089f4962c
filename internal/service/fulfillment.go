package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"inventory-engine/internal/interfaces"
	"inventory-engine/internal/models"
)

// FulfillmentCoordinator converts a holder's active holds into a finalized
// order. All products of the intent are locked in ascending product id order
// in one transaction, every line is re-validated against current state, and
// either everything commits or nothing does.
type FulfillmentCoordinator struct {
	guard        interfaces.ProductGuard
	ledger       *StockLedger
	reservations interfaces.ReservationRepository
	orders       interfaces.OrderRepository
	outbox       interfaces.OutboxRepository
	cache        interfaces.CacheRepository
	maxRetries   int
	retryBackoff time.Duration
}

// NewFulfillmentCoordinator creates the coordinator
func NewFulfillmentCoordinator(
	guard interfaces.ProductGuard,
	ledger *StockLedger,
	reservations interfaces.ReservationRepository,
	orders interfaces.OrderRepository,
	outbox interfaces.OutboxRepository,
	cache interfaces.CacheRepository,
	maxRetries int,
	retryBackoff time.Duration,
) *FulfillmentCoordinator {
	return &FulfillmentCoordinator{
		guard:        guard,
		ledger:       ledger,
		reservations: reservations,
		orders:       orders,
		outbox:       outbox,
		cache:        cache,
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
	}
}

// Fulfill finalizes the intent. Concurrency conflicts (lock timeouts,
// serialization failures) are retried with backoff up to the configured
// limit; business failures abort immediately with a full rollback.
func (c *FulfillmentCoordinator) Fulfill(ctx context.Context, intent *models.OrderIntent) (*models.Order, error) {
	if err := validateIntent(intent); err != nil {
		return nil, err
	}

	var order *models.Order
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Str("holder_key", intent.HolderKey).
				Int("attempt", attempt).
				Err(lastErr).
				Msg("Retrying fulfillment after concurrency conflict")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryBackoff * time.Duration(attempt)):
			}
		}

		order, lastErr = c.attempt(ctx, intent)
		if lastErr == nil {
			c.invalidateLines(intent)
			log.Info().
				Str("order_id", order.OrderID.String()).
				Str("holder_key", intent.HolderKey).
				Int("lines", len(order.Lines)).
				Msg("Order fulfilled")
			return order, nil
		}
		if !models.IsConcurrencyConflict(lastErr) {
			return nil, abortWith(lastErr)
		}
	}

	return nil, abortWith(lastErr)
}

// attempt runs one all-or-nothing transaction over the intent's products
func (c *FulfillmentCoordinator) attempt(ctx context.Context, intent *models.OrderIntent) (*models.Order, error) {
	productIDs := make([]string, 0, len(intent.Lines))
	for _, line := range intent.Lines {
		productIDs = append(productIDs, line.ProductID)
	}
	sort.Strings(productIDs)

	order := &models.Order{
		OrderID:   uuid.New(),
		HolderKey: intent.HolderKey,
	}

	err := c.guard.WithProductLocks(ctx, productIDs, func(tx *sqlx.Tx) error {
		lines := make([]models.OrderLine, 0, len(intent.Lines))

		for _, line := range intent.Lines {
			// A line may exceed the holder's hold (or have none at all), but
			// the uncovered portion must never eat into other holders' holds.
			othersHeld, err := c.reservations.SumActiveExcluding(ctx, tx, line.ProductID, intent.HolderKey)
			if err != nil {
				return err
			}

			stock, err := c.ledger.DecrementTx(ctx, tx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			if stock.OnHand < othersHeld {
				return &models.InsufficientStockError{
					ProductID: line.ProductID,
					Requested: line.Quantity,
					Available: stock.OnHand + line.Quantity - othersHeld,
				}
			}

			consumed, err := c.reservations.ConsumeActive(ctx, tx, line.ProductID, intent.HolderKey)
			if err != nil {
				return err
			}
			if consumed != nil {
				if err := c.writeConsumedEvent(ctx, tx, consumed); err != nil {
					return err
				}
			}

			lines = append(lines, models.OrderLine{
				OrderID:   order.OrderID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
			})
		}

		if err := c.orders.InsertOrder(ctx, tx, order); err != nil {
			return err
		}
		if err := c.orders.InsertLines(ctx, tx, lines); err != nil {
			return err
		}
		order.Lines = lines

		event := models.NewEngineEvent(models.EventTypeOrderFulfilled, "")
		event.HolderKey = intent.HolderKey
		event.OrderID = &order.OrderID
		event.Lines = lines
		return c.outbox.InsertEvent(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (c *FulfillmentCoordinator) writeConsumedEvent(ctx context.Context, tx *sqlx.Tx, res *models.Reservation) error {
	event := models.NewEngineEvent(models.EventTypeReservationConsumed, res.ProductID)
	event.HolderKey = res.HolderKey
	event.Quantity = res.Quantity
	event.ReservationID = &res.ReservationID
	event.State = models.ReservationStateConsumed
	return c.outbox.InsertEvent(ctx, tx, event)
}

func (c *FulfillmentCoordinator) invalidateLines(intent *models.OrderIntent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		for _, line := range intent.Lines {
			if err := c.cache.DeleteAvailability(ctx, line.ProductID); err != nil {
				log.Error().Err(err).Str("product_id", line.ProductID).Msg("Failed to invalidate availability cache")
			}
		}
	}()
}

// abortWith wraps the line-level failure, tagging the product it failed on
// when the cause names one
func abortWith(cause error) error {
	aborted := &models.FulfillmentAbortedError{Cause: cause}

	var insufficient *models.InsufficientStockError
	var notFound *models.NotFoundError
	var conflict *models.ConcurrencyConflictError
	switch {
	case errors.As(cause, &insufficient):
		aborted.ProductID = insufficient.ProductID
	case errors.As(cause, &notFound):
		aborted.ProductID = notFound.ID
	case errors.As(cause, &conflict):
		aborted.ProductID = conflict.ProductID
	}
	return aborted
}

func validateIntent(intent *models.OrderIntent) error {
	if intent == nil || intent.HolderKey == "" {
		return fmt.Errorf("order intent requires a holder key")
	}
	if len(intent.Lines) == 0 {
		return fmt.Errorf("order intent requires at least one line")
	}

	seen := make(map[string]struct{}, len(intent.Lines))
	for _, line := range intent.Lines {
		if line.ProductID == "" {
			return fmt.Errorf("order line requires a product id")
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("order line quantity must be positive, got %d for %s", line.Quantity, line.ProductID)
		}
		if _, dup := seen[line.ProductID]; dup {
			return fmt.Errorf("order intent repeats product %s", line.ProductID)
		}
		seen[line.ProductID] = struct{}{}
	}
	return nil
}
