package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"inventory-engine/internal/interfaces"
	"inventory-engine/internal/models"
)

// ReservationManager is the gatekeeper of availability. Every mutation is a
// single locked read-modify-write section under the product guard, so the
// merge-with-existing-hold upsert can never lose an update.
type ReservationManager struct {
	guard        interfaces.ProductGuard
	stocks       interfaces.StockRepository
	reservations interfaces.ReservationRepository
	outbox       interfaces.OutboxRepository
	cache        interfaces.CacheRepository
	ttl          time.Duration
}

// NewReservationManager creates the manager
func NewReservationManager(
	guard interfaces.ProductGuard,
	stocks interfaces.StockRepository,
	reservations interfaces.ReservationRepository,
	outbox interfaces.OutboxRepository,
	cache interfaces.CacheRepository,
	ttl time.Duration,
) *ReservationManager {
	return &ReservationManager{
		guard:        guard,
		stocks:       stocks,
		reservations: reservations,
		outbox:       outbox,
		cache:        cache,
		ttl:          ttl,
	}
}

// Reserve adds quantity to the holder's hold on a product, creating the hold
// on first add to cart. The availability check excludes the holder's own
// existing hold, so growing a hold only competes with other holders.
func (m *ReservationManager) Reserve(ctx context.Context, holderKey, productID string, quantity int) (*models.Reservation, error) {
	if err := validateHold(holderKey, productID); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("reserve quantity must be positive, got %d", quantity)
	}

	var result *models.Reservation
	err := m.guard.WithProductLock(ctx, productID, func(tx *sqlx.Tx) error {
		existing, err := m.reservations.GetActive(ctx, tx, productID, holderKey)
		if err != nil {
			return err
		}

		desired := quantity
		if existing != nil {
			desired += existing.Quantity
		}

		res, err := m.applyHold(ctx, tx, holderKey, productID, existing, desired)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.invalidateCache(productID)
	return result, nil
}

// SetQuantity replaces the holder's held quantity (direct cart line edit).
// A non-positive quantity releases the hold; setting a quantity with no
// existing hold behaves like a fresh reserve.
func (m *ReservationManager) SetQuantity(ctx context.Context, holderKey, productID string, newQuantity int) (*models.Reservation, error) {
	if err := validateHold(holderKey, productID); err != nil {
		return nil, err
	}

	if newQuantity <= 0 {
		return nil, m.Release(ctx, holderKey, productID, math.MaxInt)
	}

	var result *models.Reservation
	err := m.guard.WithProductLock(ctx, productID, func(tx *sqlx.Tx) error {
		existing, err := m.reservations.GetActive(ctx, tx, productID, holderKey)
		if err != nil {
			return err
		}

		res, err := m.applyHold(ctx, tx, holderKey, productID, existing, newQuantity)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.invalidateCache(productID)
	return result, nil
}

// applyHold upserts the hold to the desired total after checking it against
// what other holders leave available. Runs inside the product lock.
func (m *ReservationManager) applyHold(ctx context.Context, tx *sqlx.Tx, holderKey, productID string, existing *models.Reservation, desired int) (*models.Reservation, error) {
	stock, err := m.stocks.GetStock(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if stock == nil {
		return nil, &models.NotFoundError{Resource: "product", ID: productID}
	}

	othersHeld, err := m.reservations.SumActiveExcluding(ctx, tx, productID, holderKey)
	if err != nil {
		return nil, err
	}

	available := stock.OnHand - othersHeld
	if desired > available {
		requested := desired
		if existing != nil {
			requested -= existing.Quantity
		}
		return nil, &models.InsufficientStockError{
			ProductID: productID,
			Requested: requested,
			Available: available - currentQuantity(existing),
		}
	}

	expiresAt := time.Now().Add(m.ttl)

	if existing == nil {
		reservation := &models.Reservation{
			ReservationID: uuid.New(),
			ProductID:     productID,
			HolderKey:     holderKey,
			Quantity:      desired,
			State:         models.ReservationStateActive,
			ExpiresAt:     expiresAt,
		}
		if err := m.reservations.Insert(ctx, tx, reservation); err != nil {
			return nil, err
		}
		if err := m.writeHoldEvent(ctx, tx, models.EventTypeReservationCreated, reservation); err != nil {
			return nil, err
		}
		log.Info().
			Str("product_id", productID).
			Str("holder_key", holderKey).
			Int("quantity", desired).
			Msg("Created reservation")
		return reservation, nil
	}

	if err := m.reservations.UpdateQuantity(ctx, tx, existing.ReservationID, desired, expiresAt); err != nil {
		return nil, err
	}
	existing.Quantity = desired
	existing.ExpiresAt = expiresAt
	if err := m.writeHoldEvent(ctx, tx, models.EventTypeReservationUpdated, existing); err != nil {
		return nil, err
	}
	log.Info().
		Str("product_id", productID).
		Str("holder_key", holderKey).
		Int("quantity", desired).
		Msg("Updated reservation")
	return existing, nil
}

// Release gives back part or all of the holder's hold. Releasing more than is
// held clamps to zero; a missing hold is a no-op.
func (m *ReservationManager) Release(ctx context.Context, holderKey, productID string, quantity int) error {
	if err := validateHold(holderKey, productID); err != nil {
		return err
	}
	if quantity <= 0 {
		return fmt.Errorf("release quantity must be positive, got %d", quantity)
	}

	err := m.guard.WithProductLock(ctx, productID, func(tx *sqlx.Tx) error {
		existing, err := m.reservations.GetActive(ctx, tx, productID, holderKey)
		if err != nil {
			return err
		}
		if existing == nil {
			return nil
		}

		remaining := existing.Quantity - quantity
		if remaining <= 0 {
			if err := m.reservations.UpdateState(ctx, tx, existing.ReservationID, models.ReservationStateReleased); err != nil {
				return err
			}
			existing.State = models.ReservationStateReleased
			return m.writeHoldEvent(ctx, tx, models.EventTypeReservationReleased, existing)
		}

		if err := m.reservations.UpdateQuantity(ctx, tx, existing.ReservationID, remaining, existing.ExpiresAt); err != nil {
			return err
		}
		existing.Quantity = remaining
		return m.writeHoldEvent(ctx, tx, models.EventTypeReservationUpdated, existing)
	})
	if err != nil {
		return err
	}

	m.invalidateCache(productID)
	return nil
}

// ReleaseAll releases every ACTIVE hold of the holder: cart clear, logout,
// account deactivation. Safe to call with no holds. Each product is its own
// short locked transaction so a long cart never pins multiple locks.
func (m *ReservationManager) ReleaseAll(ctx context.Context, holderKey string) error {
	if holderKey == "" {
		return fmt.Errorf("holder key is required")
	}

	reservations, err := m.reservations.GetActiveByHolder(ctx, holderKey)
	if err != nil {
		return err
	}

	for i := range reservations {
		res := &reservations[i]
		if err := m.releaseByID(ctx, res.ProductID, res.ReservationID, models.EventTypeReservationReleased); err != nil {
			return err
		}
	}

	if len(reservations) > 0 {
		log.Info().Str("holder_key", holderKey).Int("count", len(reservations)).Msg("Released all holder reservations")
	}
	return nil
}

// ReleaseExpired is the sweeper entry point: it transitions one reservation
// to RELEASED if it is still active and past expiry. Re-running on an
// already-released row is a no-op.
func (m *ReservationManager) ReleaseExpired(ctx context.Context, reservationID uuid.UUID) error {
	res, err := m.reservations.GetByID(ctx, nil, reservationID)
	if err != nil {
		return err
	}
	if res == nil || res.State.IsTerminal() {
		return nil
	}

	released := false
	err = m.guard.WithProductLock(ctx, res.ProductID, func(tx *sqlx.Tx) error {
		current, err := m.reservations.GetByID(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if current == nil || current.State.IsTerminal() || !current.Expired(time.Now()) {
			return nil
		}

		if err := m.reservations.UpdateState(ctx, tx, reservationID, models.ReservationStateReleased); err != nil {
			return err
		}
		current.State = models.ReservationStateReleased
		if err := m.writeHoldEvent(ctx, tx, models.EventTypeReservationExpired, current); err != nil {
			return err
		}
		released = true
		return nil
	})
	if err != nil {
		return err
	}

	if released {
		m.invalidateCache(res.ProductID)
		log.Info().
			Str("reservation_id", reservationID.String()).
			Str("product_id", res.ProductID).
			Msg("Expired reservation reclaimed")
	}
	return nil
}

// releaseByID transitions a single reservation under its product lock,
// tolerating the row having gone terminal in the meantime
func (m *ReservationManager) releaseByID(ctx context.Context, productID string, reservationID uuid.UUID, eventType string) error {
	err := m.guard.WithProductLock(ctx, productID, func(tx *sqlx.Tx) error {
		current, err := m.reservations.GetByID(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if current == nil || current.State.IsTerminal() {
			return nil
		}

		if err := m.reservations.UpdateState(ctx, tx, reservationID, models.ReservationStateReleased); err != nil {
			return err
		}
		current.State = models.ReservationStateReleased
		return m.writeHoldEvent(ctx, tx, eventType, current)
	})
	if err != nil {
		return err
	}

	m.invalidateCache(productID)
	return nil
}

// GetAvailable returns on_hand minus all ACTIVE holds. The cache fronts the
// read; entries only ever appear here and are deleted on every commit that
// touches the product.
func (m *ReservationManager) GetAvailable(ctx context.Context, productID string) (*models.AvailabilityResponse, error) {
	if snapshot, err := m.cache.GetAvailability(ctx, productID); err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("Availability cache error, falling back to database")
	} else if snapshot != nil {
		return &models.AvailabilityResponse{
			ProductID: snapshot.ProductID,
			OnHand:    snapshot.OnHand,
			Available: snapshot.Available,
			CacheHit:  true,
			UpdatedAt: snapshot.UpdatedAt,
		}, nil
	}

	stock, err := m.stocks.GetStock(ctx, nil, productID)
	if err != nil {
		return nil, err
	}
	if stock == nil {
		return nil, &models.NotFoundError{Resource: "product", ID: productID}
	}

	held, err := m.reservations.SumActive(ctx, nil, productID)
	if err != nil {
		return nil, err
	}

	snapshot := &models.AvailabilitySnapshot{
		ProductID: productID,
		OnHand:    stock.OnHand,
		Available: stock.OnHand - held,
		UpdatedAt: stock.UpdatedAt,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.cache.SetAvailability(ctx, snapshot); err != nil {
			log.Error().Err(err).Str("product_id", productID).Msg("Failed to cache availability")
		}
	}()

	return &models.AvailabilityResponse{
		ProductID: snapshot.ProductID,
		OnHand:    snapshot.OnHand,
		Available: snapshot.Available,
		CacheHit:  false,
		UpdatedAt: snapshot.UpdatedAt,
	}, nil
}

func (m *ReservationManager) writeHoldEvent(ctx context.Context, tx *sqlx.Tx, eventType string, res *models.Reservation) error {
	event := models.NewEngineEvent(eventType, res.ProductID)
	event.HolderKey = res.HolderKey
	event.Quantity = res.Quantity
	event.ReservationID = &res.ReservationID
	event.State = res.State
	return m.outbox.InsertEvent(ctx, tx, event)
}

func (m *ReservationManager) invalidateCache(productID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.cache.DeleteAvailability(ctx, productID); err != nil {
			log.Error().Err(err).Str("product_id", productID).Msg("Failed to invalidate availability cache")
		}
	}()
}

func validateHold(holderKey, productID string) error {
	if holderKey == "" {
		return fmt.Errorf("holder key is required")
	}
	if productID == "" {
		return fmt.Errorf("product id is required")
	}
	return nil
}

func currentQuantity(res *models.Reservation) int {
	if res == nil {
		return 0
	}
	return res.Quantity
}
