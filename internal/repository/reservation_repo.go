package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"inventory-engine/internal/models"
)

const reservationColumns = `reservation_id, product_id, holder_key, quantity, state, created_at, expires_at, updated_at`

// ReservationRepository handles database operations on reservation rows
type ReservationRepository struct {
	db *sqlx.DB
}

// NewReservationRepository creates a new reservation repository
func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) q(tx *sqlx.Tx) queryer {
	if tx != nil {
		return tx
	}
	return r.db
}

// GetByID retrieves a reservation by id; nil when it does not exist
func (r *ReservationRepository) GetByID(ctx context.Context, tx *sqlx.Tx, reservationID uuid.UUID) (*models.Reservation, error) {
	var res models.Reservation
	query := `SELECT ` + reservationColumns + ` FROM reservation WHERE reservation_id = $1`

	err := r.q(tx).GetContext(ctx, &res, query, reservationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Error().Err(err).Str("reservation_id", reservationID.String()).Msg("Failed to get reservation")
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return &res, nil
}

// GetActive retrieves the holder's ACTIVE reservation for a product; nil when
// none exists. The partial unique index guarantees at most one row.
func (r *ReservationRepository) GetActive(ctx context.Context, tx *sqlx.Tx, productID, holderKey string) (*models.Reservation, error) {
	var res models.Reservation
	query := `SELECT ` + reservationColumns + ` FROM reservation
			  WHERE product_id = $1 AND holder_key = $2 AND state = $3`

	err := r.q(tx).GetContext(ctx, &res, query, productID, holderKey, models.ReservationStateActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Error().Err(err).
			Str("product_id", productID).
			Str("holder_key", holderKey).
			Msg("Failed to get active reservation")
		return nil, fmt.Errorf("get active reservation: %w", err)
	}
	return &res, nil
}

// GetActiveByHolder lists every ACTIVE reservation owned by a holder
func (r *ReservationRepository) GetActiveByHolder(ctx context.Context, holderKey string) ([]models.Reservation, error) {
	var reservations []models.Reservation
	query := `SELECT ` + reservationColumns + ` FROM reservation
			  WHERE holder_key = $1 AND state = $2
			  ORDER BY product_id ASC`

	err := r.db.SelectContext(ctx, &reservations, query, holderKey, models.ReservationStateActive)
	if err != nil {
		log.Error().Err(err).Str("holder_key", holderKey).Msg("Failed to list holder reservations")
		return nil, fmt.Errorf("list holder reservations: %w", err)
	}
	return reservations, nil
}

// SumActive returns the total ACTIVE held quantity for a product
func (r *ReservationRepository) SumActive(ctx context.Context, tx *sqlx.Tx, productID string) (int, error) {
	var sum int
	query := `SELECT COALESCE(SUM(quantity), 0) FROM reservation
			  WHERE product_id = $1 AND state = $2`

	err := r.q(tx).GetContext(ctx, &sum, query, productID, models.ReservationStateActive)
	if err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("Failed to sum active reservations")
		return 0, fmt.Errorf("sum active reservations: %w", err)
	}
	return sum, nil
}

// SumActiveExcluding returns the ACTIVE held quantity for a product excluding
// one holder's own hold, for merge-on-reserve availability checks
func (r *ReservationRepository) SumActiveExcluding(ctx context.Context, tx *sqlx.Tx, productID, holderKey string) (int, error) {
	var sum int
	query := `SELECT COALESCE(SUM(quantity), 0) FROM reservation
			  WHERE product_id = $1 AND state = $2 AND holder_key <> $3`

	err := r.q(tx).GetContext(ctx, &sum, query, productID, models.ReservationStateActive, holderKey)
	if err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("Failed to sum other active reservations")
		return 0, fmt.Errorf("sum other active reservations: %w", err)
	}
	return sum, nil
}

// Insert creates a new reservation row
func (r *ReservationRepository) Insert(ctx context.Context, tx *sqlx.Tx, reservation *models.Reservation) error {
	query := `INSERT INTO reservation (reservation_id, product_id, holder_key, quantity, state, created_at, expires_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, NOW(), $6, NOW())`

	_, err := r.q(tx).ExecContext(ctx, query,
		reservation.ReservationID, reservation.ProductID, reservation.HolderKey,
		reservation.Quantity, reservation.State, reservation.ExpiresAt)
	if err != nil {
		log.Error().Err(err).
			Str("reservation_id", reservation.ReservationID.String()).
			Str("product_id", reservation.ProductID).
			Msg("Failed to insert reservation")
		return fmt.Errorf("insert reservation: %w", err)
	}

	now := time.Now()
	reservation.CreatedAt = now
	reservation.UpdatedAt = now
	return nil
}

// UpdateQuantity rewrites the held quantity and expiry of an ACTIVE row
func (r *ReservationRepository) UpdateQuantity(ctx context.Context, tx *sqlx.Tx, reservationID uuid.UUID, quantity int, expiresAt time.Time) error {
	query := `UPDATE reservation SET quantity = $2, expires_at = $3, updated_at = NOW()
			  WHERE reservation_id = $1 AND state = $4`

	result, err := r.q(tx).ExecContext(ctx, query, reservationID, quantity, expiresAt, models.ReservationStateActive)
	if err != nil {
		log.Error().Err(err).Str("reservation_id", reservationID.String()).Msg("Failed to update reservation quantity")
		return fmt.Errorf("update reservation quantity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update reservation quantity affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return &models.NotFoundError{Resource: "reservation", ID: reservationID.String()}
	}
	return nil
}

// UpdateState transitions a reservation. Transitions out of a terminal state
// are rejected at the SQL level, which keeps sweeps and repeated releases
// idempotent.
func (r *ReservationRepository) UpdateState(ctx context.Context, tx *sqlx.Tx, reservationID uuid.UUID, state models.ReservationState) error {
	query := `UPDATE reservation SET state = $2, updated_at = NOW()
			  WHERE reservation_id = $1 AND state = $3`

	result, err := r.q(tx).ExecContext(ctx, query, reservationID, state, models.ReservationStateActive)
	if err != nil {
		log.Error().Err(err).Str("reservation_id", reservationID.String()).Msg("Failed to update reservation state")
		return fmt.Errorf("update reservation state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update reservation state affected rows: %w", err)
	}
	if rowsAffected == 0 {
		// Already terminal or missing; callers decide whether that matters
		return &models.NotFoundError{Resource: "active reservation", ID: reservationID.String()}
	}
	return nil
}

// ConsumeActive transitions the holder's ACTIVE hold on a product to CONSUMED
// and returns it; nil when the holder has no active hold on the product
func (r *ReservationRepository) ConsumeActive(ctx context.Context, tx *sqlx.Tx, productID, holderKey string) (*models.Reservation, error) {
	var res models.Reservation
	query := `UPDATE reservation SET state = $3, updated_at = NOW()
			  WHERE product_id = $1 AND holder_key = $2 AND state = $4
			  RETURNING ` + reservationColumns

	err := r.q(tx).GetContext(ctx, &res, query,
		productID, holderKey, models.ReservationStateConsumed, models.ReservationStateActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Error().Err(err).
			Str("product_id", productID).
			Str("holder_key", holderKey).
			Msg("Failed to consume reservation")
		return nil, fmt.Errorf("consume reservation: %w", err)
	}
	return &res, nil
}

// GetExpired retrieves a bounded batch of ACTIVE reservations past expiry,
// oldest first
func (r *ReservationRepository) GetExpired(ctx context.Context, limit int) ([]models.Reservation, error) {
	var reservations []models.Reservation
	query := `SELECT ` + reservationColumns + ` FROM reservation
			  WHERE state = $1 AND expires_at <= NOW()
			  ORDER BY expires_at ASC
			  LIMIT $2`

	err := r.db.SelectContext(ctx, &reservations, query, models.ReservationStateActive, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get expired reservations")
		return nil, fmt.Errorf("get expired reservations: %w", err)
	}
	return reservations, nil
}

// DeleteTerminalBefore removes RELEASED and CONSUMED rows older than cutoff,
// in bounded batches, and returns the number deleted
func (r *ReservationRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	query := `DELETE FROM reservation
			  WHERE reservation_id IN (
				  SELECT reservation_id FROM reservation
				  WHERE state IN ($1, $2) AND updated_at < $3
				  ORDER BY updated_at ASC
				  LIMIT $4
			  )`

	result, err := r.db.ExecContext(ctx, query,
		models.ReservationStateReleased, models.ReservationStateConsumed, cutoff, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to purge terminal reservations")
		return 0, fmt.Errorf("purge terminal reservations: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge affected rows: %w", err)
	}
	return deleted, nil
}
