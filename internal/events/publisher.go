package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/shopee-price-tracker/internal/database"
	"github.com/maltedev/shopee-price-tracker/internal/models"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypePriceRecorded is published for every record a tracking call emits
	EventTypePriceRecorded EventType = "PRICE_RECORDED"

	aggregateType = "price_record"
)

// PriceRecordedPayload is the body of a PRICE_RECORDED event.
type PriceRecordedPayload struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	Timestamp     time.Time `json:"timestamp"`
	RecordID      string    `json:"record_id"`
	ProductID     string    `json:"product_id,omitempty"`
	Name          string    `json:"name"`
	URL           string    `json:"url"`
	Price         Price     `json:"price"`
	OriginalPrice Price     `json:"original_price"`
	Discount      float64   `json:"discount"`
	ShopName      string    `json:"shop_name"`
	Rating        *float64  `json:"rating,omitempty"`
	IsSynthetic   bool      `json:"is_synthetic"`
	Source        string    `json:"source"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// Price represents product pricing information
type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// TxRunner runs fn in a database transaction.
type TxRunner interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type recordInserter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, rec *models.ProductRecord) (uuid.UUID, error)
}

type outboxInserter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher stores each record in price_records and queues a PRICE_RECORDED
// event in the same transaction, so the relay never announces a record that
// was rolled back.
type Publisher struct {
	tx       TxRunner
	records  recordInserter
	outbox   outboxInserter
	stream   string
	currency string
	logger   *slog.Logger
}

func NewPublisher(db *database.DB, stream, currency string, logger *slog.Logger) *Publisher {
	return newPublisher(db, database.NewRecordRepository(db), database.NewOutboxRepository(db), stream, currency, logger)
}

func newPublisher(tx TxRunner, records recordInserter, outbox outboxInserter, stream, currency string, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = database.DefaultTargetStream
	}
	if currency == "" {
		currency = "PHP"
	}
	return &Publisher{
		tx:       tx,
		records:  records,
		outbox:   outbox,
		stream:   stream,
		currency: currency,
		logger:   logger.With("component", "event_publisher"),
	}
}

func (p *Publisher) Name() string { return "postgres" }

// Append persists rec and its event atomically.
func (p *Publisher) Append(ctx context.Context, rec *models.ProductRecord) error {
	if rec == nil {
		return database.ErrNilRecord
	}

	var (
		recordID uuid.UUID
		event    *database.OutboxEvent
	)

	err := p.tx.Transaction(ctx, func(tx pgx.Tx) error {
		id, err := p.records.InsertWithTx(ctx, tx, rec)
		if err != nil {
			return err
		}
		recordID = id

		event, err = p.buildEvent(id, rec)
		if err != nil {
			return err
		}

		if err := p.outbox.InsertWithTx(ctx, tx, event); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish price record: %w", err)
	}

	p.logger.Debug("price record published",
		"record_id", recordID,
		"product_id", rec.ProductID,
		"outbox_id", event.ID,
		"synthetic", rec.IsSynthetic)

	return nil
}

func (p *Publisher) buildEvent(recordID uuid.UUID, rec *models.ProductRecord) (*database.OutboxEvent, error) {
	payload := PriceRecordedPayload{
		EventID:       uuid.New().String(),
		EventType:     string(EventTypePriceRecorded),
		Timestamp:     time.Now().UTC(),
		RecordID:      recordID.String(),
		ProductID:     rec.ProductID,
		Name:          rec.Name,
		URL:           rec.URL,
		Price:         Price{Amount: rec.Price, Currency: p.currency},
		OriginalPrice: Price{Amount: rec.OriginalPrice, Currency: p.currency},
		Discount:      rec.Discount,
		ShopName:      rec.ShopName,
		Rating:        rec.Rating,
		IsSynthetic:   rec.IsSynthetic,
		Source:        rec.Source,
		RecordedAt:    rec.Timestamp,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	aggregateID := rec.ProductID
	if aggregateID == "" {
		aggregateID = recordID.String()
	}

	return &database.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     string(EventTypePriceRecorded),
		Payload:       data,
		TargetStream:  p.stream,
	}, nil
}
