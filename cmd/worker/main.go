package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"inventory-engine/internal/config"
	"inventory-engine/internal/interfaces"
	redisCache "inventory-engine/internal/redis"
	"inventory-engine/internal/repository"
	"inventory-engine/internal/service"
)

// setupLogging configures structured logging
func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// initializeDatabase sets up and tests the database connection
func initializeDatabase(cfg *config.Config) *sqlx.DB {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.DatabaseMaxConns)
	db.SetMaxIdleConns(cfg.DatabaseIdleConns)

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}

	log.Info().Msg("Database connection established")
	return db
}

// initializeCache sets up Redis cache with cluster support
func initializeCache(cfg *config.Config) *redisCache.CacheClient {
	cache := redisCache.NewCacheClient(
		cfg.RedisAddrs,
		cfg.RedisPassword,
		cfg.RedisClusterMode,
		cfg.RedisTTL,
		cfg.RedisKeyPrefix,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cache.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	log.Info().Msg("Redis connection established")

	return cache
}

// runTerminalPurge deletes aged RELEASED/CONSUMED rows on a slow cadence
func runTerminalPurge(ctx context.Context, reservations interfaces.ReservationRepository, cfg *config.Config) {
	log.Info().
		Dur("interval", cfg.PurgeInterval).
		Dur("retention", cfg.PurgeRetention).
		Int("batch_size", cfg.PurgeBatchSize).
		Msg("Starting terminal reservation purge")

	ticker := time.NewTicker(cfg.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping terminal reservation purge")
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-cfg.PurgeRetention)
			deleted, err := reservations.DeleteTerminalBefore(ctx, cutoff, cfg.PurgeBatchSize)
			if err != nil {
				log.Error().Err(err).Msg("Failed to purge terminal reservations")
				continue
			}
			if deleted > 0 {
				log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Purged terminal reservations")
			}
		}
	}
}

func main() {
	cfg := config.Load()
	setupLogging(cfg)
	log.Info().Str("environment", cfg.Environment).Msg("Starting inventory worker...")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	db := initializeDatabase(cfg)
	defer db.Close()

	cache := initializeCache(cfg)
	defer cache.Close()

	guard := repository.NewProductGuard(db, cfg.LockTimeout)
	stockRepo := repository.NewStockRepository(db)
	reservationRepo := repository.NewReservationRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	manager := service.NewReservationManager(guard, stockRepo, reservationRepo, outboxRepo, cache, cfg.ReservationTTL)

	ctx, cancel := context.WithCancel(context.Background())

	sweeper := service.NewExpirySweeper(reservationRepo, manager, cfg.SweepInterval, cfg.SweepBatchSize)
	sweeper.Start(ctx)

	go runTerminalPurge(ctx, reservationRepo, cfg)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down inventory worker...")
	cancel()
	sweeper.Stop()
	log.Info().Msg("Inventory worker stopped")
}
