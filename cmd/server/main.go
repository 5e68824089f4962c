package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"inventory-engine/internal/api"
	"inventory-engine/internal/config"
	"inventory-engine/internal/kafka"
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

// initializeKafka sets up the Kafka publisher
func initializeKafka(cfg *config.Config) *kafka.Publisher {
	log.Info().Strs("kafka_brokers", cfg.KafkaBrokers).Msg("Initializing Kafka publisher with brokers")
	return kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaEventsTopic, cfg.KafkaOrdersTopic)
}

// startHTTPServer starts the HTTP server
func startHTTPServer(cfg *config.Config, router http.Handler) *http.Server {
	serverAddr := fmt.Sprintf("%s:%s", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("address", serverAddr).Msg("Inventory engine HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	return server
}

// gracefulShutdown blocks until SIGINT/SIGTERM and drains the server
func gracefulShutdown(server *http.Server, stopDispatcher context.CancelFunc) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down inventory engine...")

	stopDispatcher()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Inventory engine stopped")
}

func main() {
	cfg := config.Load()
	setupLogging(cfg)
	log.Info().Str("environment", cfg.Environment).Msg("Starting inventory engine...")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	db := initializeDatabase(cfg)
	defer db.Close()

	cache := initializeCache(cfg)
	defer cache.Close()

	publisher := initializeKafka(cfg)
	defer publisher.Close()

	// Repositories
	guard := repository.NewProductGuard(db, cfg.LockTimeout)
	stockRepo := repository.NewStockRepository(db)
	reservationRepo := repository.NewReservationRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	// Services
	ledger := service.NewStockLedger(guard, stockRepo, outboxRepo, cache, cfg.LowStockThreshold)
	manager := service.NewReservationManager(guard, stockRepo, reservationRepo, outboxRepo, cache, cfg.ReservationTTL)
	coordinator := service.NewFulfillmentCoordinator(
		guard, ledger, reservationRepo, orderRepo, outboxRepo, cache,
		cfg.FulfillMaxRetries, cfg.FulfillRetryBackoff,
	)

	// HTTP server
	router := api.SetupRouter(manager, coordinator, ledger)
	server := startHTTPServer(cfg, router)

	// Outbox dispatcher
	dispatcherCtx, stopDispatcher := context.WithCancel(context.Background())
	go publisher.RunDispatcher(dispatcherCtx, outboxRepo, kafka.DispatcherConfig{
		LockKey:      cfg.OutboxLockKey,
		BatchSize:    cfg.OutboxBatchSize,
		PollInterval: cfg.OutboxPollInterval,
	})

	gracefulShutdown(server, stopDispatcher)
}
