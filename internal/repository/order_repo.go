package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"inventory-engine/internal/models"
)

// OrderRepository persists fulfilled orders. Writes only happen inside the
// fulfillment transaction, together with the stock decrements.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// InsertOrder creates the order row
func (r *OrderRepository) InsertOrder(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	query := `INSERT INTO orders (order_id, holder_key, created_at) VALUES ($1, $2, NOW())`

	_, err := tx.ExecContext(ctx, query, order.OrderID, order.HolderKey)
	if err != nil {
		log.Error().Err(err).Str("order_id", order.OrderID.String()).Msg("Failed to insert order")
		return fmt.Errorf("insert order: %w", err)
	}

	order.CreatedAt = time.Now()
	return nil
}

// InsertLines creates the order's line rows
func (r *OrderRepository) InsertLines(ctx context.Context, tx *sqlx.Tx, lines []models.OrderLine) error {
	query := `INSERT INTO order_lines (order_id, product_id, quantity) VALUES ($1, $2, $3)`

	for _, line := range lines {
		if _, err := tx.ExecContext(ctx, query, line.OrderID, line.ProductID, line.Quantity); err != nil {
			log.Error().Err(err).
				Str("order_id", line.OrderID.String()).
				Str("product_id", line.ProductID).
				Msg("Failed to insert order line")
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}
