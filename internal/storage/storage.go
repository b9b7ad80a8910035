package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/maltedev/shopee-price-tracker/internal/models"
)

const (
	timelinePrefix = "ts/"
	productPrefix  = "prod/"
)

var ErrNilRecord = errors.New("record is nil")

// RecordStore is an embedded price history kept in Pebble. Every record is
// written twice: once under a global time-ordered key and once under its
// product, so both listings are a single reverse range scan.
type RecordStore struct {
	db *pebble.DB
}

func NewRecordStore(dir string) (*RecordStore, error) {
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &RecordStore{db: db}, nil
}

func (s *RecordStore) Close() error { return s.db.Close() }

func (s *RecordStore) Name() string { return "pebble" }

func (s *RecordStore) Append(ctx context.Context, rec *models.ProductRecord) error {
	if rec == nil {
		return ErrNilRecord
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	suffix := fmt.Sprintf("%020d/%s", rec.Timestamp.UnixNano(), uuid.New().String())

	b := s.db.NewBatch()
	defer b.Close()

	if err := b.Set([]byte(timelinePrefix+suffix), data, nil); err != nil {
		return fmt.Errorf("failed to stage record: %w", err)
	}
	if err := b.Set([]byte(productKeyPrefix(rec.ProductID)+suffix), data, nil); err != nil {
		return fmt.Errorf("failed to stage record: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	return nil
}

// List returns up to limit records across all products, newest first.
// limit <= 0 returns everything.
func (s *RecordStore) List(ctx context.Context, limit int) ([]*models.ProductRecord, error) {
	return s.scanReverse(ctx, timelinePrefix, limit)
}

// History returns the records of one product, newest first.
func (s *RecordStore) History(ctx context.Context, productID string, limit int) ([]*models.ProductRecord, error) {
	return s.scanReverse(ctx, productKeyPrefix(productID), limit)
}

func productKeyPrefix(productID string) string {
	if productID == "" {
		productID = "_"
	}
	return productPrefix + productID + "/"
}

func (s *RecordStore) scanReverse(ctx context.Context, prefix string, limit int) ([]*models.ProductRecord, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixUpperBound([]byte(prefix)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer it.Close()

	var out []*models.ProductRecord
	for it.Last(); it.Valid(); it.Prev() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec := &models.ProductRecord{}
		if err := json.Unmarshal(it.Value(), rec); err != nil {
			return nil, fmt.Errorf("failed to decode record %q: %w", it.Key(), err)
		}
		out = append(out, rec)

		if limit > 0 && len(out) >= limit {
			break
		}
	}

	return out, it.Error()
}

// prefixUpperBound returns the smallest key greater than every key with prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
