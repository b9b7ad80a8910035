package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/shopee-price-tracker/internal/models"
)

var ErrNilRecord = errors.New("record is nil")

const recordColumns = `product_id, name, url, price, original_price, discount,
	shop_name, rating, is_synthetic, source, recorded_at`

// RecordRepository stores the price history, one row per tracking call.
type RecordRepository struct {
	db *DB
}

func NewRecordRepository(db *DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// InsertWithTx appends rec inside tx and returns the row id.
func (r *RecordRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, rec *models.ProductRecord) (uuid.UUID, error) {
	if rec == nil {
		return uuid.Nil, ErrNilRecord
	}

	id := uuid.New()
	query := `
		INSERT INTO price_records (id, ` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		id, rec.ProductID, rec.Name, rec.URL, rec.Price, rec.OriginalPrice, rec.Discount,
		rec.ShopName, rec.Rating, rec.IsSynthetic, rec.Source, rec.Timestamp,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert price record: %w", err)
	}

	return id, nil
}

// List returns the most recent records across all products, newest first.
func (r *RecordRepository) List(ctx context.Context, limit int) ([]*models.ProductRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM price_records
		ORDER BY recorded_at DESC
		LIMIT $1`

	rows, err := r.db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list price records: %w", err)
	}
	return scanRecords(rows)
}

// History returns the records of one product, newest first.
func (r *RecordRepository) History(ctx context.Context, productID string, limit int) ([]*models.ProductRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM price_records
		WHERE product_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`

	rows, err := r.db.pool.Query(ctx, query, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]*models.ProductRecord, error) {
	defer rows.Close()

	var records []*models.ProductRecord
	for rows.Next() {
		rec := &models.ProductRecord{}
		err := rows.Scan(
			&rec.ProductID, &rec.Name, &rec.URL, &rec.Price, &rec.OriginalPrice, &rec.Discount,
			&rec.ShopName, &rec.Rating, &rec.IsSynthetic, &rec.Source, &rec.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price record: %w", err)
		}
		rec.Timestamp = rec.Timestamp.UTC()
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}
