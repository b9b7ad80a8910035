package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/shopee-price-tracker/internal/database"
	"github.com/maltedev/shopee-price-tracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeTx runs fn with a nil transaction and reports whether it would commit.
type fakeTx struct {
	committed bool
}

func (f *fakeTx) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	if err := fn(nil); err != nil {
		return err
	}
	f.committed = true
	return nil
}

type MockRecordRepository struct {
	mock.Mock
}

func (m *MockRecordRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, rec *models.ProductRecord) (uuid.UUID, error) {
	args := m.Called(ctx, tx, rec)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error {
	args := m.Called(ctx, tx, event)
	return args.Error(0)
}

func testRecord() *models.ProductRecord {
	return &models.ProductRecord{
		ProductID:     "27785404088",
		Name:          "adidas Clog",
		URL:           "https://shopee.ph/adidas-Lifestyle-Adilette-Clog-i.319506484.27785404088",
		Price:         2499,
		OriginalPrice: 3999,
		Discount:      38,
		ShopName:      "Official Adidas Shop",
		Rating:        models.Float(4.8),
		Timestamp:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Source:        "private_api",
	}
}

func TestPublisher_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("record and event in one transaction", func(t *testing.T) {
		tx := &fakeTx{}
		records := new(MockRecordRepository)
		outbox := new(MockOutboxRepository)
		recordID := uuid.New()
		rec := testRecord()

		records.On("InsertWithTx", ctx, mock.Anything, rec).Return(recordID, nil)
		outbox.On("InsertWithTx", ctx, mock.Anything, mock.MatchedBy(func(e *database.OutboxEvent) bool {
			var payload PriceRecordedPayload
			if err := json.Unmarshal(e.Payload, &payload); err != nil {
				return false
			}
			return e.AggregateType == "price_record" &&
				e.AggregateID == "27785404088" &&
				e.EventType == "PRICE_RECORDED" &&
				e.TargetStream == "stream:price_records" &&
				payload.RecordID == recordID.String() &&
				payload.Price.Amount == 2499 &&
				payload.Price.Currency == "PHP" &&
				payload.Source == "private_api"
		})).Return(nil)

		p := newPublisher(tx, records, outbox, "", "", slog.Default())
		require.NoError(t, p.Append(ctx, rec))

		assert.True(t, tx.committed)
		assert.Equal(t, "postgres", p.Name())
		records.AssertExpectations(t)
		outbox.AssertExpectations(t)
	})

	t.Run("outbox failure aborts the transaction", func(t *testing.T) {
		tx := &fakeTx{}
		records := new(MockRecordRepository)
		outbox := new(MockOutboxRepository)

		records.On("InsertWithTx", ctx, mock.Anything, mock.Anything).Return(uuid.New(), nil)
		outbox.On("InsertWithTx", ctx, mock.Anything, mock.Anything).Return(errors.New("disk full"))

		p := newPublisher(tx, records, outbox, "stream:custom", "PHP", slog.Default())
		err := p.Append(ctx, testRecord())

		assert.Error(t, err)
		assert.False(t, tx.committed)
	})

	t.Run("record failure skips the event", func(t *testing.T) {
		tx := &fakeTx{}
		records := new(MockRecordRepository)
		outbox := new(MockOutboxRepository)

		records.On("InsertWithTx", ctx, mock.Anything, mock.Anything).Return(uuid.Nil, errors.New("constraint violation"))

		p := newPublisher(tx, records, outbox, "", "", slog.Default())
		assert.Error(t, p.Append(ctx, testRecord()))
		outbox.AssertNotCalled(t, "InsertWithTx", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("record without product id uses the row id", func(t *testing.T) {
		tx := &fakeTx{}
		records := new(MockRecordRepository)
		outbox := new(MockOutboxRepository)
		recordID := uuid.New()

		rec := testRecord()
		rec.ProductID = ""

		records.On("InsertWithTx", ctx, mock.Anything, rec).Return(recordID, nil)
		outbox.On("InsertWithTx", ctx, mock.Anything, mock.MatchedBy(func(e *database.OutboxEvent) bool {
			return e.AggregateID == recordID.String()
		})).Return(nil)

		p := newPublisher(tx, records, outbox, "", "", slog.Default())
		require.NoError(t, p.Append(ctx, rec))
		outbox.AssertExpectations(t)
	})

	t.Run("nil record", func(t *testing.T) {
		p := newPublisher(&fakeTx{}, new(MockRecordRepository), new(MockOutboxRepository), "", "", slog.Default())
		assert.ErrorIs(t, p.Append(ctx, nil), database.ErrNilRecord)
	})
}
