package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const relayProducer = "shopee-price-tracker"

// RedisClient is the part of the redis client the relay uses.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// OutboxRepo is the part of OutboxRepository the relay uses.
type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
	PendingCount(ctx context.Context) (int64, error)
	DeadLetterCount(ctx context.Context) (int64, error)
}

// Relay copies PRICE_RECORDED events from the outbox table onto Redis
// streams. Each stream entry carries the record's headline fields as flat
// values plus the full JSON payload.
type Relay struct {
	redis     RedisClient
	outbox    OutboxRepo
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

func NewRelay(db *DB, redisClient RedisClient, logger *slog.Logger, config RelayConfig) *Relay {
	return newRelay(NewOutboxRepository(db), redisClient, logger, config)
}

func newRelay(outbox OutboxRepo, redisClient RedisClient, logger *slog.Logger, config RelayConfig) *Relay {
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}

	return &Relay{
		redis:     redisClient,
		outbox:    outbox,
		logger:    logger.With("component", "relay"),
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
	}
}

// Start drains the outbox once, then on every tick until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("relay started", "interval", r.interval, "batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.processEvents(ctx); err != nil {
			r.logger.Error("outbox poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// processEvents relays one batch. Failures of single events are recorded on
// the event and do not stop the batch.
func (r *Relay) processEvents(ctx context.Context) error {
	events, err := r.outbox.GetPending(ctx, r.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending events: %w", err)
	}

	for _, event := range events {
		if err := r.relay(ctx, event); err != nil {
			r.logger.Error("failed to relay event", "event_id", event.ID, "product_id", event.AggregateID, "error", err)
		}
	}
	return nil
}

func (r *Relay) relay(ctx context.Context, event *OutboxEvent) error {
	if err := r.publishToRedis(ctx, event); err != nil {
		if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
			r.logger.Error("failed to mark event as failed", "event_id", event.ID, "error", markErr)
		}
		return err
	}

	if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}

	r.logger.Debug("event relayed", "event_id", event.ID, "product_id", event.AggregateID, "stream", event.TargetStream)
	return nil
}

// streamFields are the payload members copied into flat stream values so
// consumers can filter entries without decoding the payload.
type streamFields struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	} `json:"price"`
	IsSynthetic bool   `json:"is_synthetic"`
	Source      string `json:"source"`
}

func (r *Relay) publishToRedis(ctx context.Context, event *OutboxEvent) error {
	var f streamFields
	if err := json.Unmarshal(event.Payload, &f); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	if f.ProductID == "" {
		f.ProductID = event.AggregateID
	}

	args := &redis.XAddArgs{
		Stream: event.TargetStream,
		Values: map[string]interface{}{
			"event_id":     event.ID.String(),
			"event_type":   event.EventType,
			"product_id":   f.ProductID,
			"name":         f.Name,
			"price":        strconv.FormatFloat(f.Price.Amount, 'f', 2, 64),
			"currency":     f.Price.Currency,
			"is_synthetic": strconv.FormatBool(f.IsSynthetic),
			"source":       f.Source,
			"created_at":   event.CreatedAt.UTC().Format(time.RFC3339Nano),
			"retry_count":  event.RetryCount,
			"producer":     relayProducer,
			"payload":      string(event.Payload),
		},
	}

	if err := r.redis.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Backlog reports pending and dead-lettered outbox events for health checks.
func (r *Relay) Backlog(ctx context.Context) (pending, deadLetter int64, err error) {
	if pending, err = r.outbox.PendingCount(ctx); err != nil {
		return 0, 0, err
	}
	if deadLetter, err = r.outbox.DeadLetterCount(ctx); err != nil {
		return 0, 0, err
	}
	return pending, deadLetter, nil
}
