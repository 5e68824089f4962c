package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"inventory-engine/internal/models"
)

// memStore is an in-memory stand-in for the Postgres repositories. Guarded
// sections take real per-product mutexes in ascending id order, mirroring the
// row-lock discipline, so the concurrency tests exercise the same locking
// protocol as production.
type memStore struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	stock map[string]models.ProductStock
	holds map[uuid.UUID]models.Reservation

	orders     map[uuid.UUID]models.Order
	orderLines map[uuid.UUID][]models.OrderLine
}

func newMemStore() *memStore {
	return &memStore{
		locks:      make(map[string]*sync.Mutex),
		stock:      make(map[string]models.ProductStock),
		holds:      make(map[uuid.UUID]models.Reservation),
		orders:     make(map[uuid.UUID]models.Order),
		orderLines: make(map[uuid.UUID][]models.OrderLine),
	}
}

func (s *memStore) seedStock(productID string, onHand int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[productID] = models.ProductStock{ProductID: productID, OnHand: onHand, UpdatedAt: time.Now()}
}

func (s *memStore) productLock(productID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[productID]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[productID] = l
	return l
}

// ProductGuard

func (s *memStore) WithProductLock(ctx context.Context, productID string, fn func(tx *sqlx.Tx) error) error {
	return s.WithProductLocks(ctx, []string{productID}, fn)
}

func (s *memStore) WithProductLocks(ctx context.Context, productIDs []string, fn func(tx *sqlx.Tx) error) error {
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

	for _, id := range distinct {
		s.productLock(id).Lock()
	}
	defer func() {
		for i := len(distinct) - 1; i >= 0; i-- {
			s.locks[distinct[i]].Unlock()
		}
	}()

	snapshot := s.snapshotProducts(distinct)
	if err := fn(nil); err != nil {
		s.restoreProducts(distinct, snapshot)
		return err
	}
	return nil
}

type productSnapshot struct {
	stock    map[string]models.ProductStock
	hasStock map[string]bool
	holds    map[uuid.UUID]models.Reservation
}

// snapshotProducts copies the state of the locked products so a failed
// section rolls back like a real transaction
func (s *memStore) snapshotProducts(productIDs []string) productSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := productSnapshot{
		stock:    make(map[string]models.ProductStock),
		hasStock: make(map[string]bool),
		holds:    make(map[uuid.UUID]models.Reservation),
	}
	locked := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		locked[id] = struct{}{}
		if stock, ok := s.stock[id]; ok {
			snap.stock[id] = stock
			snap.hasStock[id] = true
		}
	}
	for id, hold := range s.holds {
		if _, ok := locked[hold.ProductID]; ok {
			snap.holds[id] = hold
		}
	}
	return snap
}

func (s *memStore) restoreProducts(productIDs []string, snap productSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		locked[id] = struct{}{}
		if snap.hasStock[id] {
			s.stock[id] = snap.stock[id]
		} else {
			delete(s.stock, id)
		}
	}
	for id, hold := range s.holds {
		if _, ok := locked[hold.ProductID]; ok {
			delete(s.holds, id)
		}
	}
	for id, hold := range snap.holds {
		s.holds[id] = hold
	}
}

// StockRepository

func (s *memStore) GetStock(ctx context.Context, tx *sqlx.Tx, productID string) (*models.ProductStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stock, ok := s.stock[productID]
	if !ok {
		return nil, nil
	}
	return &stock, nil
}

func (s *memStore) UpsertAddStock(ctx context.Context, tx *sqlx.Tx, productID string, quantity int) (*models.ProductStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stock := s.stock[productID]
	stock.ProductID = productID
	stock.OnHand += quantity
	stock.UpdatedAt = time.Now()
	s.stock[productID] = stock
	return &stock, nil
}

func (s *memStore) UpdateOnHand(ctx context.Context, tx *sqlx.Tx, productID string, onHand int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stock, ok := s.stock[productID]
	if !ok {
		return &models.NotFoundError{Resource: "product", ID: productID}
	}
	stock.OnHand = onHand
	stock.UpdatedAt = time.Now()
	s.stock[productID] = stock
	return nil
}

// ReservationRepository

func (s *memStore) GetByID(ctx context.Context, tx *sqlx.Tx, reservationID uuid.UUID) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[reservationID]
	if !ok {
		return nil, nil
	}
	return &hold, nil
}

func (s *memStore) GetActive(ctx context.Context, tx *sqlx.Tx, productID, holderKey string) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, hold := range s.holds {
		if hold.ProductID == productID && hold.HolderKey == holderKey && hold.State == models.ReservationStateActive {
			h := hold
			return &h, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetActiveByHolder(ctx context.Context, holderKey string) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Reservation
	for _, hold := range s.holds {
		if hold.HolderKey == holderKey && hold.State == models.ReservationStateActive {
			result = append(result, hold)
		}
	}
	return result, nil
}

func (s *memStore) SumActive(ctx context.Context, tx *sqlx.Tx, productID string) (int, error) {
	return s.SumActiveExcluding(ctx, tx, productID, "")
}

func (s *memStore) SumActiveExcluding(ctx context.Context, tx *sqlx.Tx, productID, holderKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := 0
	for _, hold := range s.holds {
		if hold.ProductID == productID && hold.State == models.ReservationStateActive && hold.HolderKey != holderKey {
			sum += hold.Quantity
		}
	}
	return sum, nil
}

func (s *memStore) Insert(ctx context.Context, tx *sqlx.Tx, reservation *models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	reservation.CreatedAt = now
	reservation.UpdatedAt = now
	s.holds[reservation.ReservationID] = *reservation
	return nil
}

func (s *memStore) UpdateQuantity(ctx context.Context, tx *sqlx.Tx, reservationID uuid.UUID, quantity int, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[reservationID]
	if !ok || hold.State != models.ReservationStateActive {
		return &models.NotFoundError{Resource: "active reservation", ID: reservationID.String()}
	}
	hold.Quantity = quantity
	hold.ExpiresAt = expiresAt
	hold.UpdatedAt = time.Now()
	s.holds[reservationID] = hold
	return nil
}

func (s *memStore) UpdateState(ctx context.Context, tx *sqlx.Tx, reservationID uuid.UUID, state models.ReservationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[reservationID]
	if !ok || hold.State != models.ReservationStateActive {
		return &models.NotFoundError{Resource: "active reservation", ID: reservationID.String()}
	}
	hold.State = state
	hold.UpdatedAt = time.Now()
	s.holds[reservationID] = hold
	return nil
}

func (s *memStore) ConsumeActive(ctx context.Context, tx *sqlx.Tx, productID, holderKey string) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, hold := range s.holds {
		if hold.ProductID == productID && hold.HolderKey == holderKey && hold.State == models.ReservationStateActive {
			hold.State = models.ReservationStateConsumed
			hold.UpdatedAt = time.Now()
			s.holds[id] = hold
			h := hold
			return &h, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetExpired(ctx context.Context, limit int) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var result []models.Reservation
	for _, hold := range s.holds {
		if hold.State == models.ReservationStateActive && !hold.ExpiresAt.After(now) {
			result = append(result, hold)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ExpiresAt.Before(result[j].ExpiresAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *memStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, hold := range s.holds {
		if deleted >= int64(limit) {
			break
		}
		if hold.State.IsTerminal() && hold.UpdatedAt.Before(cutoff) {
			delete(s.holds, id)
			deleted++
		}
	}
	return deleted, nil
}

// OrderRepository

func (s *memStore) InsertOrder(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order.CreatedAt = time.Now()
	s.orders[order.OrderID] = *order
	return nil
}

func (s *memStore) InsertLines(ctx context.Context, tx *sqlx.Tx, lines []models.OrderLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range lines {
		s.orderLines[line.OrderID] = append(s.orderLines[line.OrderID], line)
	}
	return nil
}

// Inspection helpers

func (s *memStore) onHand(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[productID].OnHand
}

func (s *memStore) activeHeld(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := 0
	for _, hold := range s.holds {
		if hold.ProductID == productID && hold.State == models.ReservationStateActive {
			sum += hold.Quantity
		}
	}
	return sum
}

func (s *memStore) activeCount(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, hold := range s.holds {
		if hold.ProductID == productID && hold.State == models.ReservationStateActive {
			count++
		}
	}
	return count
}

func (s *memStore) holdState(reservationID uuid.UUID) models.ReservationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holds[reservationID].State
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}
