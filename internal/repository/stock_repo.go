package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"inventory-engine/internal/models"
)

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx
type queryer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// StockRepository handles database operations on product_stock
type StockRepository struct {
	db *sqlx.DB
}

// NewStockRepository creates a new stock repository
func NewStockRepository(db *sqlx.DB) *StockRepository {
	return &StockRepository{db: db}
}

func (r *StockRepository) q(tx *sqlx.Tx) queryer {
	if tx != nil {
		return tx
	}
	return r.db
}

// GetStock retrieves the stock row for a product; nil when it does not exist
func (r *StockRepository) GetStock(ctx context.Context, tx *sqlx.Tx, productID string) (*models.ProductStock, error) {
	var stock models.ProductStock
	query := `SELECT product_id, on_hand, updated_at FROM product_stock WHERE product_id = $1`

	err := r.q(tx).GetContext(ctx, &stock, query, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Error().Err(err).Str("product_id", productID).Msg("Failed to get stock")
		return nil, fmt.Errorf("get stock: %w", err)
	}
	return &stock, nil
}

// UpsertAddStock adds quantity to the product's on_hand, creating the row on
// first stocking. The additive conflict clause makes concurrent first
// restocks safe even though no row lock exists yet.
func (r *StockRepository) UpsertAddStock(ctx context.Context, tx *sqlx.Tx, productID string, quantity int) (*models.ProductStock, error) {
	var stock models.ProductStock
	query := `INSERT INTO product_stock (product_id, on_hand, updated_at)
			  VALUES ($1, $2, NOW())
			  ON CONFLICT (product_id)
			  DO UPDATE SET on_hand = product_stock.on_hand + EXCLUDED.on_hand, updated_at = NOW()
			  RETURNING product_id, on_hand, updated_at`

	err := r.q(tx).GetContext(ctx, &stock, query, productID, quantity)
	if err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("Failed to upsert stock")
		return nil, fmt.Errorf("upsert stock: %w", err)
	}
	return &stock, nil
}

// UpdateOnHand writes the new on_hand count. Callers must hold the product
// lock; the CHECK constraint on on_hand backs up the >= 0 invariant.
func (r *StockRepository) UpdateOnHand(ctx context.Context, tx *sqlx.Tx, productID string, onHand int) error {
	query := `UPDATE product_stock SET on_hand = $2, updated_at = NOW() WHERE product_id = $1`

	result, err := r.q(tx).ExecContext(ctx, query, productID, onHand)
	if err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("Failed to update on-hand")
		return fmt.Errorf("update on-hand: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update on-hand affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return &models.NotFoundError{Resource: "product", ID: productID}
	}
	return nil
}
