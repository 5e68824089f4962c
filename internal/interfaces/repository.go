package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"inventory-engine/internal/models"
)

// ProductGuard serializes read-then-write decisions on a product's stock and
// reservation state. No two sections for the same product run concurrently;
// sections for different products run in parallel.
type ProductGuard interface {
	// WithProductLock runs fn inside a transaction holding a row lock on the
	// product's stock row. The lock is released when the transaction ends.
	WithProductLock(ctx context.Context, productID string, fn func(tx *sqlx.Tx) error) error

	// WithProductLocks locks every distinct product in ascending product id
	// order before running fn, so concurrent multi-product sections cannot
	// deadlock on each other.
	WithProductLocks(ctx context.Context, productIDs []string, fn func(tx *sqlx.Tx) error) error
}

// StockRepository defines data operations on product_stock rows.
// Methods taking a tx run inside a guard-owned transaction; a nil tx reads
// through the pool without a lock.
type StockRepository interface {
	GetStock(ctx context.Context, tx *sqlx.Tx, productID string) (*models.ProductStock, error)
	UpsertAddStock(ctx context.Context, tx *sqlx.Tx, productID string, quantity int) (*models.ProductStock, error)
	UpdateOnHand(ctx context.Context, tx *sqlx.Tx, productID string, onHand int) error
}

// ReservationRepository defines data operations on reservation rows
type ReservationRepository interface {
	GetByID(ctx context.Context, tx *sqlx.Tx, reservationID uuid.UUID) (*models.Reservation, error)
	GetActive(ctx context.Context, tx *sqlx.Tx, productID, holderKey string) (*models.Reservation, error)
	GetActiveByHolder(ctx context.Context, holderKey string) ([]models.Reservation, error)
	SumActive(ctx context.Context, tx *sqlx.Tx, productID string) (int, error)
	SumActiveExcluding(ctx context.Context, tx *sqlx.Tx, productID, holderKey string) (int, error)
	Insert(ctx context.Context, tx *sqlx.Tx, reservation *models.Reservation) error
	UpdateQuantity(ctx context.Context, tx *sqlx.Tx, reservationID uuid.UUID, quantity int, expiresAt time.Time) error
	UpdateState(ctx context.Context, tx *sqlx.Tx, reservationID uuid.UUID, state models.ReservationState) error
	ConsumeActive(ctx context.Context, tx *sqlx.Tx, productID, holderKey string) (*models.Reservation, error)
	GetExpired(ctx context.Context, limit int) ([]models.Reservation, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// OrderRepository persists fulfilled orders and their lines
type OrderRepository interface {
	InsertOrder(ctx context.Context, tx *sqlx.Tx, order *models.Order) error
	InsertLines(ctx context.Context, tx *sqlx.Tx, lines []models.OrderLine) error
}

// OutboxRepository writes events transactionally and hands batches to the
// dispatcher
type OutboxRepository interface {
	InsertEvent(ctx context.Context, tx *sqlx.Tx, event *models.EngineEvent) error
	FetchBatchOrdered(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, ids []int64) error
	IncrementPublishAttempts(ctx context.Context, id int64, lastError string) error
	TryAcquireDispatchLock(ctx context.Context, lockKey int64) (bool, error)
	ReleaseDispatchLock(ctx context.Context, lockKey int64) error
}

// CacheRepository fronts availability reads. Entries are removed after every
// successful commit touching the product, never updated in place.
type CacheRepository interface {
	GetAvailability(ctx context.Context, productID string) (*models.AvailabilitySnapshot, error)
	SetAvailability(ctx context.Context, snapshot *models.AvailabilitySnapshot) error
	DeleteAvailability(ctx context.Context, productID string) error
	Close() error
}
