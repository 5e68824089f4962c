package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"inventory-engine/internal/interfaces"
	"inventory-engine/internal/models"
)

// StockLedger is the sole owner of on_hand mutation. Every write happens
// inside a product lock; crossing the low-stock threshold or zero writes a
// signal event for the external notification service, and a 0 -> positive
// transition writes a restock signal.
type StockLedger struct {
	guard             interfaces.ProductGuard
	stocks            interfaces.StockRepository
	outbox            interfaces.OutboxRepository
	cache             interfaces.CacheRepository
	lowStockThreshold int
}

// NewStockLedger creates the ledger
func NewStockLedger(
	guard interfaces.ProductGuard,
	stocks interfaces.StockRepository,
	outbox interfaces.OutboxRepository,
	cache interfaces.CacheRepository,
	lowStockThreshold int,
) *StockLedger {
	return &StockLedger{
		guard:             guard,
		stocks:            stocks,
		outbox:            outbox,
		cache:             cache,
		lowStockThreshold: lowStockThreshold,
	}
}

// GetOnHand returns the authoritative stock count. Casual read, no lock:
// decision reads go through the tx-scoped methods instead.
func (l *StockLedger) GetOnHand(ctx context.Context, productID string) (int, error) {
	stock, err := l.stocks.GetStock(ctx, nil, productID)
	if err != nil {
		return 0, err
	}
	if stock == nil {
		return 0, &models.NotFoundError{Resource: "product", ID: productID}
	}
	return stock.OnHand, nil
}

// IncrementTx adds physical stock inside an already-locked transaction
func (l *StockLedger) IncrementTx(ctx context.Context, tx *sqlx.Tx, productID string, quantity int) (*models.ProductStock, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("increment quantity must be positive, got %d", quantity)
	}

	before, err := l.stocks.GetStock(ctx, tx, productID)
	if err != nil {
		return nil, err
	}

	stock, err := l.stocks.UpsertAddStock(ctx, tx, productID, quantity)
	if err != nil {
		return nil, err
	}

	if (before == nil || before.OnHand == 0) && stock.OnHand > 0 {
		event := models.NewEngineEvent(models.EventTypeStockRestocked, productID)
		event.Quantity = quantity
		event.OnHand = stock.OnHand
		if err := l.outbox.InsertEvent(ctx, tx, event); err != nil {
			return nil, err
		}
	}
	return stock, nil
}

// DecrementTx permanently subtracts stock inside an already-locked
// transaction. Fails with InsufficientStockError when on_hand < quantity.
func (l *StockLedger) DecrementTx(ctx context.Context, tx *sqlx.Tx, productID string, quantity int) (*models.ProductStock, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("decrement quantity must be positive, got %d", quantity)
	}

	stock, err := l.stocks.GetStock(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if stock == nil {
		return nil, &models.NotFoundError{Resource: "product", ID: productID}
	}
	if stock.OnHand < quantity {
		return nil, &models.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: stock.OnHand,
		}
	}

	newOnHand := stock.OnHand - quantity
	if err := l.stocks.UpdateOnHand(ctx, tx, productID, newOnHand); err != nil {
		return nil, err
	}
	stock.OnHand = newOnHand

	if newOnHand == 0 {
		event := models.NewEngineEvent(models.EventTypeStockDepleted, productID)
		if err := l.outbox.InsertEvent(ctx, tx, event); err != nil {
			return nil, err
		}
	} else if newOnHand <= l.lowStockThreshold {
		event := models.NewEngineEvent(models.EventTypeStockLow, productID)
		event.OnHand = newOnHand
		if err := l.outbox.InsertEvent(ctx, tx, event); err != nil {
			return nil, err
		}
	}
	return stock, nil
}

// Restock adds stock on the admin path, taking the product lock itself
func (l *StockLedger) Restock(ctx context.Context, productID string, quantity int) (*models.ProductStock, error) {
	var result *models.ProductStock
	err := l.guard.WithProductLock(ctx, productID, func(tx *sqlx.Tx) error {
		stock, err := l.IncrementTx(ctx, tx, productID, quantity)
		if err != nil {
			return err
		}
		result = stock
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.invalidateCache(productID)
	log.Info().Str("product_id", productID).Int("quantity", quantity).Int("on_hand", result.OnHand).Msg("Restocked product")
	return result, nil
}

// Adjust applies a manual admin correction; negative deltas obey the on_hand
// floor like any other decrement
func (l *StockLedger) Adjust(ctx context.Context, productID string, delta int) (*models.ProductStock, error) {
	if delta == 0 {
		return nil, fmt.Errorf("adjustment delta must not be zero")
	}

	var result *models.ProductStock
	err := l.guard.WithProductLock(ctx, productID, func(tx *sqlx.Tx) error {
		var stock *models.ProductStock
		var err error
		if delta > 0 {
			stock, err = l.IncrementTx(ctx, tx, productID, delta)
		} else {
			stock, err = l.DecrementTx(ctx, tx, productID, -delta)
		}
		if err != nil {
			return err
		}
		result = stock
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.invalidateCache(productID)
	log.Info().Str("product_id", productID).Int("delta", delta).Int("on_hand", result.OnHand).Msg("Adjusted stock")
	return result, nil
}

// invalidateCache drops the product's availability entry after a commit.
// Best effort: a failed delete only means a stale read until the TTL.
func (l *StockLedger) invalidateCache(productID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := l.cache.DeleteAvailability(ctx, productID); err != nil {
			log.Error().Err(err).Str("product_id", productID).Msg("Failed to invalidate availability cache")
		}
	}()
}
