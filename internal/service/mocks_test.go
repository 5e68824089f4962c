package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"inventory-engine/internal/models"
)

// stubGuard runs guarded sections without a database. The injected error, when
// set, is returned instead of running fn.
type stubGuard struct {
	mu       sync.Mutex
	err      error
	lockSets [][]string
}

func (g *stubGuard) WithProductLock(ctx context.Context, productID string, fn func(tx *sqlx.Tx) error) error {
	return g.WithProductLocks(ctx, []string{productID}, fn)
}

func (g *stubGuard) WithProductLocks(ctx context.Context, productIDs []string, fn func(tx *sqlx.Tx) error) error {
	g.mu.Lock()
	g.lockSets = append(g.lockSets, append([]string(nil), productIDs...))
	err := g.err
	g.mu.Unlock()

	if err != nil {
		return err
	}
	return fn(nil)
}

func (g *stubGuard) failWith(err error) {
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
}

// MockStockRepository implements the stock repository interface for testing
type MockStockRepository struct {
	mock.Mock
}

func (m *MockStockRepository) GetStock(ctx context.Context, tx *sqlx.Tx, productID string) (*models.ProductStock, error) {
	args := m.Called(ctx, tx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProductStock), args.Error(1)
}

func (m *MockStockRepository) UpsertAddStock(ctx context.Context, tx *sqlx.Tx, productID string, quantity int) (*models.ProductStock, error) {
	args := m.Called(ctx, tx, productID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProductStock), args.Error(1)
}

func (m *MockStockRepository) UpdateOnHand(ctx context.Context, tx *sqlx.Tx, productID string, onHand int) error {
	args := m.Called(ctx, tx, productID, onHand)
	return args.Error(0)
}

// MockReservationRepository implements the reservation repository interface for testing
type MockReservationRepository struct {
	mock.Mock
}

func (m *MockReservationRepository) GetByID(ctx context.Context, tx *sqlx.Tx, reservationID uuid.UUID) (*models.Reservation, error) {
	args := m.Called(ctx, tx, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}

func (m *MockReservationRepository) GetActive(ctx context.Context, tx *sqlx.Tx, productID, holderKey string) (*models.Reservation, error) {
	args := m.Called(ctx, tx, productID, holderKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}

func (m *MockReservationRepository) GetActiveByHolder(ctx context.Context, holderKey string) ([]models.Reservation, error) {
	args := m.Called(ctx, holderKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Reservation), args.Error(1)
}

func (m *MockReservationRepository) SumActive(ctx context.Context, tx *sqlx.Tx, productID string) (int, error) {
	args := m.Called(ctx, tx, productID)
	return args.Int(0), args.Error(1)
}

func (m *MockReservationRepository) SumActiveExcluding(ctx context.Context, tx *sqlx.Tx, productID, holderKey string) (int, error) {
	args := m.Called(ctx, tx, productID, holderKey)
	return args.Int(0), args.Error(1)
}

func (m *MockReservationRepository) Insert(ctx context.Context, tx *sqlx.Tx, reservation *models.Reservation) error {
	args := m.Called(ctx, tx, reservation)
	return args.Error(0)
}

func (m *MockReservationRepository) UpdateQuantity(ctx context.Context, tx *sqlx.Tx, reservationID uuid.UUID, quantity int, expiresAt time.Time) error {
	args := m.Called(ctx, tx, reservationID, quantity, expiresAt)
	return args.Error(0)
}

func (m *MockReservationRepository) UpdateState(ctx context.Context, tx *sqlx.Tx, reservationID uuid.UUID, state models.ReservationState) error {
	args := m.Called(ctx, tx, reservationID, state)
	return args.Error(0)
}

func (m *MockReservationRepository) ConsumeActive(ctx context.Context, tx *sqlx.Tx, productID, holderKey string) (*models.Reservation, error) {
	args := m.Called(ctx, tx, productID, holderKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}

func (m *MockReservationRepository) GetExpired(ctx context.Context, limit int) ([]models.Reservation, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Reservation), args.Error(1)
}

func (m *MockReservationRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	args := m.Called(ctx, cutoff, limit)
	return args.Get(0).(int64), args.Error(1)
}

// MockOrderRepository implements the order repository interface for testing
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) InsertOrder(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	args := m.Called(ctx, tx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) InsertLines(ctx context.Context, tx *sqlx.Tx, lines []models.OrderLine) error {
	args := m.Called(ctx, tx, lines)
	return args.Error(0)
}

// fakeOutbox collects written events; the dispatcher side is unused in
// service tests
type fakeOutbox struct {
	mu     sync.Mutex
	events []*models.EngineEvent
}

func (o *fakeOutbox) InsertEvent(ctx context.Context, tx *sqlx.Tx, event *models.EngineEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
	return nil
}

func (o *fakeOutbox) FetchBatchOrdered(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	return nil, nil
}

func (o *fakeOutbox) MarkPublished(ctx context.Context, ids []int64) error { return nil }

func (o *fakeOutbox) IncrementPublishAttempts(ctx context.Context, id int64, lastError string) error {
	return nil
}

func (o *fakeOutbox) TryAcquireDispatchLock(ctx context.Context, lockKey int64) (bool, error) {
	return true, nil
}

func (o *fakeOutbox) ReleaseDispatchLock(ctx context.Context, lockKey int64) error { return nil }

func (o *fakeOutbox) eventTypes() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	types := make([]string, 0, len(o.events))
	for _, e := range o.events {
		types = append(types, e.EventType)
	}
	return types
}

func (o *fakeOutbox) countType(eventType string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	count := 0
	for _, e := range o.events {
		if e.EventType == eventType {
			count++
		}
	}
	return count
}

// fakeCache is a thread-safe in-memory availability cache
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*models.AvailabilitySnapshot
	deletes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*models.AvailabilitySnapshot)}
}

func (c *fakeCache) GetAvailability(ctx context.Context, productID string) (*models.AvailabilitySnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[productID], nil
}

func (c *fakeCache) SetAvailability(ctx context.Context, snapshot *models.AvailabilitySnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[snapshot.ProductID] = snapshot
	return nil
}

func (c *fakeCache) DeleteAvailability(ctx context.Context, productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, productID)
	c.deletes++
	return nil
}

func (c *fakeCache) Close() error { return nil }

// missCache never holds entries, so every availability read computes fresh
type missCache struct{}

func (missCache) GetAvailability(ctx context.Context, productID string) (*models.AvailabilitySnapshot, error) {
	return nil, nil
}

func (missCache) SetAvailability(ctx context.Context, snapshot *models.AvailabilitySnapshot) error {
	return nil
}

func (missCache) DeleteAvailability(ctx context.Context, productID string) error { return nil }

func (missCache) Close() error { return nil }
