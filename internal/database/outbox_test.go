package database

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxRepository_InsertWithTx(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)

	t.Run("successful insert with transaction", func(t *testing.T) {
		event := &OutboxEvent{
			AggregateType: "price_record",
			AggregateID:   "27785404088",
			EventType:     "PRICE_RECORDED",
			Payload:       json.RawMessage(`{"product_id":"27785404088","name":"adidas Clog"}`),
			TargetStream:  "stream:price_records",
		}

		err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, event)
		})

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.Equal(t, "pending", event.Status)
		assert.Equal(t, 0, event.RetryCount)
		assert.False(t, event.CreatedAt.IsZero())
	})

	t.Run("rollback on transaction failure", func(t *testing.T) {
		event := &OutboxEvent{
			AggregateType: "price_record",
			AggregateID:   "2935397050",
			EventType:     "PRICE_RECORDED",
			Payload:       json.RawMessage(`{"product_id":"2935397050"}`),
			TargetStream:  "stream:price_records",
		}

		// Start transaction that will be rolled back
		err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			if err := repo.InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
			// Force rollback
			return pgx.ErrTxClosed
		})

		assert.Error(t, err)

		// Verify event was not persisted
		events, err := repo.GetPending(ctx, 10)
		require.NoError(t, err)
		for _, e := range events {
			assert.NotEqual(t, "2935397050", e.AggregateID)
		}
	})

	t.Run("validate required fields", func(t *testing.T) {
		testCases := []struct {
			name  string
			event *OutboxEvent
		}{
			{
				name: "missing aggregate type",
				event: &OutboxEvent{
					AggregateID:  "25956400196",
					EventType:    "PRICE_RECORDED",
					Payload:      json.RawMessage(`{}`),
					TargetStream: "stream:price_records",
				},
			},
			{
				name: "missing event type",
				event: &OutboxEvent{
					AggregateType: "price_record",
					AggregateID:   "25956400196",
					Payload:       json.RawMessage(`{}`),
					TargetStream:  "stream:price_records",
				},
			},
			{
				name: "missing payload",
				event: &OutboxEvent{
					AggregateType: "price_record",
					AggregateID:   "25956400196",
					EventType:     "PRICE_RECORDED",
					TargetStream:  "stream:price_records",
				},
			},
		}

		for _, tc := range testCases {
			tc := tc
			t.Run(tc.name, func(t *testing.T) {
				err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
					return repo.InsertWithTx(ctx, tx, tc.event)
				})
				assert.Error(t, err)
			})
		}
	})
}

func TestOutboxRepository_GetPending(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)

	// Insert test events
	now := time.Now()
	events := []*OutboxEvent{
		{
			AggregateType: "price_record",
			AggregateID:   "27785404088",
			EventType:     "PRICE_RECORDED",
			Payload:       json.RawMessage(`{"product_id":"27785404088"}`),
			TargetStream:  "stream:price_records",
			Status:        "pending",
			NextRetryAt:   &now,
		},
		{
			AggregateType: "price_record",
			AggregateID:   "2935397050",
			EventType:     "PRICE_RECORDED",
			Payload:       json.RawMessage(`{"product_id":"2935397050"}`),
			TargetStream:  "stream:price_records",
			Status:        "processed",
			NextRetryAt:   &now,
		},
		{
			AggregateType: "price_record",
			AggregateID:   "25956400196",
			EventType:     "PRICE_RECORDED",
			Payload:       json.RawMessage(`{"product_id":"25956400196"}`),
			TargetStream:  "stream:price_records",
			Status:        "pending",
			NextRetryAt:   &now,
		},
		{
			AggregateType: "price_record",
			AggregateID:   "1000000004",
			EventType:     "PRICE_RECORDED",
			Payload:       json.RawMessage(`{"product_id":"1000000004"}`),
			TargetStream:  "stream:price_records",
			Status:        "failed",
			RetryCount:    2,
			NextRetryAt:   &now,
		},
	}

	for _, event := range events {
		event := event
		err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, event)
		})
		require.NoError(t, err)
	}

	t.Run("get pending events with limit", func(t *testing.T) {
		pending, err := repo.GetPending(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, pending, 2)

		// Should get pending and failed (retry) events
		for _, e := range pending {
			assert.Contains(t, []string{"pending", "failed"}, e.Status)
		}
	})

	t.Run("get pending events ordered by created_at", func(t *testing.T) {
		pending, err := repo.GetPending(ctx, 10)
		require.NoError(t, err)

		// Verify ordering
		for i := 1; i < len(pending); i++ {
			assert.True(t, pending[i-1].CreatedAt.Before(pending[i].CreatedAt) ||
				pending[i-1].CreatedAt.Equal(pending[i].CreatedAt))
		}
	})

	t.Run("respects next_retry_at", func(t *testing.T) {
		// Update one event to have future retry time
		future := time.Now().Add(1 * time.Hour)
		_, err := db.pool.Exec(ctx,
			"UPDATE outbox_event SET next_retry_at = $1 WHERE aggregate_id = $2",
			future, "1000000004")
		require.NoError(t, err)

		pending, err := repo.GetPending(ctx, 10)
		require.NoError(t, err)

		// Should not include the event with future retry time
		for _, e := range pending {
			assert.NotEqual(t, "1000000004", e.AggregateID)
		}
	})
}

func TestOutboxRepository_MarkProcessed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)

	// Insert test event
	event := &OutboxEvent{
		AggregateType: "price_record",
		AggregateID:   "27785404088",
		EventType:     "PRICE_RECORDED",
		Payload:       json.RawMessage(`{"product_id":"27785404088"}`),
		TargetStream:  "stream:price_records",
	}

	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		return repo.InsertWithTx(ctx, tx, event)
	})
	require.NoError(t, err)

	t.Run("mark as processed", func(t *testing.T) {
		err := repo.MarkProcessed(ctx, event.ID)
		require.NoError(t, err)

		// Verify status change
		var status string
		var processedAt *time.Time
		err = db.pool.QueryRow(ctx,
			"SELECT status, processed_at FROM outbox_event WHERE id = $1",
			event.ID).Scan(&status, &processedAt)
		require.NoError(t, err)

		assert.Equal(t, "processed", status)
		assert.NotNil(t, processedAt)
		assert.True(t, time.Since(*processedAt) < 1*time.Second)
	})

	t.Run("mark non-existent event", func(t *testing.T) {
		err := repo.MarkProcessed(ctx, uuid.New())
		assert.Error(t, err)
	})
}

func TestOutboxRepository_MarkFailed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)

	t.Run("increment retry count and set backoff", func(t *testing.T) {
		event := &OutboxEvent{
			AggregateType: "price_record",
			AggregateID:   "27785404088",
			EventType:     "PRICE_RECORDED",
			Payload:       json.RawMessage(`{"product_id":"27785404088"}`),
			TargetStream:  "stream:price_records",
		}

		err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, event)
		})
		require.NoError(t, err)

		// First failure
		err = repo.MarkFailed(ctx, event.ID, assert.AnError)
		require.NoError(t, err)

		var status string
		var retryCount int
		var errorMsg *string
		var nextRetry *time.Time
		err = db.pool.QueryRow(ctx,
			"SELECT status, retry_count, error_message, next_retry_at FROM outbox_event WHERE id = $1",
			event.ID).Scan(&status, &retryCount, &errorMsg, &nextRetry)
		require.NoError(t, err)

		assert.Equal(t, "failed", status)
		assert.Equal(t, 1, retryCount)
		assert.NotNil(t, errorMsg)
		assert.Contains(t, *errorMsg, "assert.AnError")
		assert.NotNil(t, nextRetry)
		assert.True(t, nextRetry.After(time.Now()))
	})

	t.Run("move to dead letter after max retries", func(t *testing.T) {
		event := &OutboxEvent{
			AggregateType: "price_record",
			AggregateID:   "2935397050",
			EventType:     "PRICE_RECORDED",
			Payload:       json.RawMessage(`{"product_id":"2935397050"}`),
			TargetStream:  "stream:price_records",
			RetryCount:    4, // One below max
		}

		err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, event)
		})
		require.NoError(t, err)

		// This should move to dead letter
		err = repo.MarkFailed(ctx, event.ID, assert.AnError)
		require.NoError(t, err)

		var status string
		var retryCount int
		err = db.pool.QueryRow(ctx,
			"SELECT status, retry_count FROM outbox_event WHERE id = $1",
			event.ID).Scan(&status, &retryCount)
		require.NoError(t, err)

		assert.Equal(t, "dead_letter", status)
		assert.Equal(t, 5, retryCount)
	})
}

func TestValidateEvent(t *testing.T) {
	repo := &OutboxRepository{}

	err := repo.InsertWithTx(context.Background(), nil, &OutboxEvent{AggregateType: "price_record", EventType: "PRICE_RECORDED"})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	err = repo.InsertWithTx(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestCalculateNextRetryTime(t *testing.T) {
	before := time.Now()

	assert.WithinDuration(t, before.Add(2*time.Second), calculateNextRetryTime(1), time.Second)
	assert.WithinDuration(t, before.Add(16*time.Second), calculateNextRetryTime(4), time.Second)
	assert.WithinDuration(t, before.Add(300*time.Second), calculateNextRetryTime(12), time.Second)
}

// setupTestDB connects to TEST_DATABASE_URL and resets the tracker tables.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, db.EnsureSchema(ctx))

	_, err = db.pool.Exec(ctx, "TRUNCATE outbox_event, price_records")
	require.NoError(t, err)

	return db
}
