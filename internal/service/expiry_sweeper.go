package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"inventory-engine/internal/interfaces"
)

// ExpirySweeper reclaims reservations whose expiry has passed. Each cycle
// fetches a bounded batch of candidates and releases them one short locked
// transaction at a time; a failed row is logged and skipped, never fatal.
type ExpirySweeper struct {
	reservations interfaces.ReservationRepository
	manager      interfaces.ReservationService
	interval     time.Duration
	batchSize    int

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewExpirySweeper creates the sweeper
func NewExpirySweeper(
	reservations interfaces.ReservationRepository,
	manager interfaces.ReservationService,
	interval time.Duration,
	batchSize int,
) *ExpirySweeper {
	return &ExpirySweeper{
		reservations: reservations,
		manager:      manager,
		interval:     interval,
		batchSize:    batchSize,
	}
}

// Start launches the sweep loop in a background goroutine
func (s *ExpirySweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	log.Info().
		Dur("interval", s.interval).
		Int("batch_size", s.batchSize).
		Msg("Starting expiry sweeper")

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Stopping expiry sweeper")
				return
			case <-ticker.C:
				s.RunCycle(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the current cycle to finish
func (s *ExpirySweeper) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.done != nil {
			<-s.done
		}
	})
}

// RunCycle performs one sweep pass: fetch up to batchSize expired candidates
// and release each. The per-row release re-checks state and expiry under the
// product lock, so racing with a checkout or a manual release is harmless.
func (s *ExpirySweeper) RunCycle(ctx context.Context) {
	expired, err := s.reservations.GetExpired(ctx, s.batchSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch expired reservations")
		return
	}
	if len(expired) == 0 {
		return
	}

	released := 0
	for i := range expired {
		res := &expired[i]
		if err := s.manager.ReleaseExpired(ctx, res.ReservationID); err != nil {
			log.Error().Err(err).
				Str("reservation_id", res.ReservationID.String()).
				Str("product_id", res.ProductID).
				Msg("Failed to release expired reservation")
			continue
		}
		released++
	}

	log.Info().
		Int("candidates", len(expired)).
		Int("released", released).
		Msg("Expiry sweep cycle complete")
}
