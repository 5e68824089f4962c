package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"inventory-engine/internal/models"
)

// OutboxRepository handles the transactional outbox. Events are inserted in
// the same transaction as the state change they describe and picked up by a
// single dispatcher guarded by a Postgres advisory lock.
type OutboxRepository struct {
	db *sqlx.DB
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// InsertEvent writes an engine event into the outbox. With a nil tx the event
// is written directly; inside a guard transaction it commits or rolls back
// with the state change.
func (r *OutboxRepository) InsertEvent(ctx context.Context, tx *sqlx.Tx, event *models.EngineEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	query := `INSERT INTO outbox (event_type, key, payload, created_at) VALUES ($1, $2, $3, NOW())`

	var executor queryer = r.db
	if tx != nil {
		executor = tx
	}

	if _, err := executor.ExecContext(ctx, query, event.EventType, event.ProductID, string(payload)); err != nil {
		log.Error().Err(err).
			Str("event_type", event.EventType).
			Str("key", event.ProductID).
			Msg("Failed to insert outbox event")
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// FetchBatchOrdered fetches unpublished events in insertion order.
// FOR UPDATE SKIP LOCKED keeps concurrent dispatchers from colliding.
func (r *OutboxRepository) FetchBatchOrdered(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	query := `SELECT id, event_type, key, payload, created_at, published, publish_attempts, last_error
			  FROM outbox
			  WHERE published = FALSE
			  ORDER BY id ASC
			  LIMIT $1
			  FOR UPDATE SKIP LOCKED`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin outbox fetch transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Error().Err(err).Msg("Failed to rollback outbox fetch")
		}
	}()

	var events []models.OutboxEvent
	if err := tx.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("fetch outbox batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit outbox fetch: %w", err)
	}
	return events, nil
}

// MarkPublished flags events as delivered
func (r *OutboxRepository) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := `UPDATE outbox SET published = TRUE, published_at = NOW() WHERE id = ANY($1)`

	if _, err := r.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		log.Error().Err(err).Ints64("ids", ids).Msg("Failed to mark outbox events published")
		return fmt.Errorf("mark outbox events published: %w", err)
	}
	return nil
}

// IncrementPublishAttempts records a failed delivery attempt
func (r *OutboxRepository) IncrementPublishAttempts(ctx context.Context, id int64, lastError string) error {
	query := `UPDATE outbox SET publish_attempts = publish_attempts + 1, last_error = $2 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, lastError); err != nil {
		log.Error().Err(err).Int64("id", id).Msg("Failed to increment publish attempts")
		return fmt.Errorf("increment publish attempts: %w", err)
	}
	return nil
}

// TryAcquireDispatchLock attempts the advisory lock that elects a single
// active dispatcher; false means another worker holds it
func (r *OutboxRepository) TryAcquireDispatchLock(ctx context.Context, lockKey int64) (bool, error) {
	var acquired bool
	err := r.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockKey).Scan(&acquired)
	if err != nil {
		log.Error().Err(err).Int64("lock_key", lockKey).Msg("Failed to acquire dispatch lock")
		return false, fmt.Errorf("acquire dispatch lock: %w", err)
	}
	return acquired, nil
}

// ReleaseDispatchLock releases the advisory lock
func (r *OutboxRepository) ReleaseDispatchLock(ctx context.Context, lockKey int64) error {
	var released bool
	err := r.db.QueryRowContext(ctx, `SELECT pg_advisory_unlock($1)`, lockKey).Scan(&released)
	if err != nil {
		log.Error().Err(err).Int64("lock_key", lockKey).Msg("Failed to release dispatch lock")
		return fmt.Errorf("release dispatch lock: %w", err)
	}
	if !released {
		log.Warn().Int64("lock_key", lockKey).Msg("Dispatch lock was not held on release")
	}
	return nil
}
