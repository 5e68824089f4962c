package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"inventory-engine/internal/models"
)

// Postgres error codes that indicate a lock or serialization conflict
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// ProductGuard serializes critical sections per product via row locks on
// product_stock. Every section is one transaction: the lock is held until
// commit or rollback.
type ProductGuard struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewProductGuard creates a guard over the given pool
func NewProductGuard(db *sqlx.DB, lockTimeout time.Duration) *ProductGuard {
	return &ProductGuard{db: db, lockTimeout: lockTimeout}
}

// WithProductLock runs fn while holding the row lock for productID
func (g *ProductGuard) WithProductLock(ctx context.Context, productID string, fn func(tx *sqlx.Tx) error) error {
	return g.run(ctx, []string{productID}, fn)
}

// WithProductLocks runs fn while holding row locks for every distinct product,
// acquired in ascending product id order to prevent deadlock between
// concurrent multi-product sections.
func (g *ProductGuard) WithProductLocks(ctx context.Context, productIDs []string, fn func(tx *sqlx.Tx) error) error {
	distinct := make([]string, 0, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		distinct = append(distinct, id)
	}
	sort.Strings(distinct)
	return g.run(ctx, distinct, fn)
}

func (g *ProductGuard) run(ctx context.Context, orderedIDs []string, fn func(tx *sqlx.Tx) error) error {
	tx, err := g.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Error().Err(err).Msg("Failed to rollback guarded transaction")
		}
	}()

	timeoutMs := g.lockTimeout.Milliseconds()
	if timeoutMs > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeoutMs)); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	for _, id := range orderedIDs {
		if err := lockStockRow(ctx, tx, id); err != nil {
			return err
		}
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		if conflict := asConflict("", err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("commit guarded transaction: %w", err)
	}
	return nil
}

// lockStockRow takes FOR UPDATE on the product's stock row. A missing row is
// not an error here: fn decides whether absence means NotFound or first-time
// creation.
func lockStockRow(ctx context.Context, tx *sqlx.Tx, productID string) error {
	var locked string
	err := tx.GetContext(ctx, &locked,
		`SELECT product_id FROM product_stock WHERE product_id = $1 FOR UPDATE`, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if conflict := asConflict(productID, err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("lock stock row for product %s: %w", productID, err)
	}
	return nil
}

// asConflict translates lock timeout, deadlock and serialization errors into
// the retryable conflict type; anything else returns nil
func asConflict(productID string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return &models.ConcurrencyConflictError{ProductID: productID, Cause: err}
		}
	}
	return nil
}
