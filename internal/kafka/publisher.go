package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"inventory-engine/internal/interfaces"
	"inventory-engine/internal/models"
)

// Publisher delivers outbox events to Kafka. Stock and reservation events go
// to the events topic; fulfilled orders go to the orders topic consumed by
// invoicing and notification services. Both writers hash by product key so
// per-product ordering is preserved.
type Publisher struct {
	eventsWriter *kafka.Writer
	ordersWriter *kafka.Writer
}

// NewPublisher creates a Kafka publisher for the two engine topics
func NewPublisher(brokers []string, eventsTopic, ordersTopic string) *Publisher {
	return &Publisher{
		eventsWriter: newWriter(brokers, eventsTopic),
		ordersWriter: newWriter(brokers, ordersTopic),
	}
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
	}
}

// Publish writes one outbox event to its topic
func (p *Publisher) Publish(ctx context.Context, event *models.OutboxEvent) error {
	message := kafka.Message{
		Key:   []byte(event.Key),
		Value: []byte(event.Payload),
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.EventType)},
		},
	}

	writer := p.eventsWriter
	if event.EventType == models.EventTypeOrderFulfilled {
		writer = p.ordersWriter
	}

	if err := writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close closes both writers
func (p *Publisher) Close() error {
	var errs []error
	if err := p.eventsWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close events writer: %w", err))
	}
	if err := p.ordersWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close orders writer: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close publisher: %v", errs)
	}
	return nil
}

// DispatcherConfig tunes the outbox polling loop
type DispatcherConfig struct {
	LockKey      int64
	BatchSize    int
	PollInterval time.Duration
}

// RunDispatcher polls the outbox and publishes pending events until ctx is
// cancelled. A Postgres advisory lock elects one active dispatcher across
// replicas.
func (p *Publisher) RunDispatcher(ctx context.Context, outbox interfaces.OutboxRepository, cfg DispatcherConfig) {
	log.Info().
		Int64("lock_key", cfg.LockKey).
		Int("batch_size", cfg.BatchSize).
		Dur("poll_interval", cfg.PollInterval).
		Msg("Starting outbox dispatcher")

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping outbox dispatcher")
			return
		case <-ticker.C:
			if err := p.dispatchBatch(ctx, outbox, cfg); err != nil {
				log.Error().Err(err).Msg("Failed to dispatch outbox batch")
			}
		}
	}
}

func (p *Publisher) dispatchBatch(ctx context.Context, outbox interfaces.OutboxRepository, cfg DispatcherConfig) error {
	acquired, err := outbox.TryAcquireDispatchLock(ctx, cfg.LockKey)
	if err != nil {
		return err
	}
	if !acquired {
		log.Debug().Msg("Dispatch lock held elsewhere, skipping cycle")
		return nil
	}
	defer func() {
		if err := outbox.ReleaseDispatchLock(ctx, cfg.LockKey); err != nil {
			log.Error().Err(err).Msg("Failed to release dispatch lock")
		}
	}()

	events, err := outbox.FetchBatchOrdered(ctx, cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	var publishedIDs []int64
	for i := range events {
		event := &events[i]
		if err := p.Publish(ctx, event); err != nil {
			log.Error().Err(err).
				Int64("outbox_id", event.ID).
				Str("event_type", event.EventType).
				Msg("Failed to publish outbox event")
			if incErr := outbox.IncrementPublishAttempts(ctx, event.ID, err.Error()); incErr != nil {
				log.Error().Err(incErr).Int64("outbox_id", event.ID).Msg("Failed to record publish attempt")
			}
			continue
		}
		publishedIDs = append(publishedIDs, event.ID)
	}

	if len(publishedIDs) > 0 {
		if err := outbox.MarkPublished(ctx, publishedIDs); err != nil {
			return err
		}
		log.Info().
			Int("published", len(publishedIDs)).
			Int("fetched", len(events)).
			Msg("Outbox batch dispatched")
	}
	return nil
}
