package storage

import (
	"context"
	"testing"
	"time"

	"github.com/maltedev/shopee-price-tracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *RecordStore {
	t.Helper()
	store, err := NewRecordStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func record(productID string, price float64, at time.Time) *models.ProductRecord {
	return &models.ProductRecord{
		ProductID:     productID,
		Name:          "Product " + productID,
		URL:           "https://shopee.ph/p-i.1." + productID,
		Price:         price,
		OriginalPrice: price,
		ShopName:      "Shopee",
		Timestamp:     at,
		Source:        "markup",
	}
}

func TestRecordStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, record("1", 100, base)))
	require.NoError(t, store.Append(ctx, record("2", 200, base.Add(time.Minute))))
	require.NoError(t, store.Append(ctx, record("1", 90, base.Add(2*time.Minute))))

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 90.0, all[0].Price)
	assert.Equal(t, 200.0, all[1].Price)
	assert.Equal(t, 100.0, all[2].Price)

	limited, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRecordStore_History(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, record("10", 100, base)))
	require.NoError(t, store.Append(ctx, record("1", 5, base)))
	require.NoError(t, store.Append(ctx, record("10", 110, base.Add(time.Hour))))

	history, err := store.History(ctx, "10", 0)
	require.NoError(t, err)
	require.Len(t, history, 2, "product 1 must not leak into product 10")
	assert.Equal(t, 110.0, history[0].Price)
	assert.Equal(t, 100.0, history[1].Price)

	none, err := store.History(ctx, "999", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecordStore_SameTimestampKeepsBoth(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, record("1", 100, at)))
	require.NoError(t, store.Append(ctx, record("1", 100, at)))

	history, err := store.History(ctx, "1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRecordStore_RoundTripsFields(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	rec := record("", 1599, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	rec.Rating = models.Float(4.6)
	rec.IsSynthetic = true
	rec.Source = models.SourceSynthetic
	require.NoError(t, store.Append(ctx, rec))

	history, err := store.History(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, rec, history[0])
}

func TestRecordStore_Errors(t *testing.T) {
	store := openStore(t)
	assert.ErrorIs(t, store.Append(context.Background(), nil), ErrNilRecord)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, store.Append(ctx, record("1", 100, time.Now())), context.Canceled)
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte("ts0"), prefixUpperBound([]byte("ts/")))
	assert.Equal(t, []byte{0x02}, prefixUpperBound([]byte{0x01, 0xff}))
	assert.Nil(t, prefixUpperBound([]byte{0xff}))
}
