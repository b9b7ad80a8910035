package sink

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/maltedev/shopee-price-tracker/internal/models"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsWriter appends records to a Google Sheets tab, creating the tab and
// its header row on first use.
type SheetsWriter struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
	logger        *slog.Logger

	mu          sync.Mutex
	initialized bool
}

// NewSheetsWriter authenticates with a service-account credentials file.
// Extra client options are appended, which lets tests point at a local server.
func NewSheetsWriter(ctx context.Context, spreadsheetID, credentialsFile, sheetName string, logger *slog.Logger, extra ...option.ClientOption) (*SheetsWriter, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	if sheetName == "" {
		sheetName = "Price Tracker"
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts,
			option.WithCredentialsFile(credentialsFile),
			option.WithScopes(sheets.SpreadsheetsScope))
	}
	opts = append(opts, extra...)

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}

	return &SheetsWriter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger.With("component", "sheets"),
	}, nil
}

func (w *SheetsWriter) Name() string { return "sheets" }

// Initialize creates the tab when missing and (re)writes the header row.
func (w *SheetsWriter) Initialize(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.initialize(ctx)
}

func (w *SheetsWriter) initialize(ctx context.Context) error {
	spreadsheet, err := w.svc.Spreadsheets.Get(w.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read spreadsheet: %w", err)
	}

	exists := false
	for _, s := range spreadsheet.Sheets {
		if s.Properties != nil && s.Properties.Title == w.sheetName {
			exists = true
			break
		}
	}

	if !exists {
		req := &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: w.sheetName},
				},
			}},
		}
		if _, err := w.svc.Spreadsheets.BatchUpdate(w.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to create sheet: %w", err)
		}
		w.logger.Info("sheet created", "sheet", w.sheetName)
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	_, err = w.svc.Spreadsheets.Values.Update(w.spreadsheetID, w.rangeOf("A1:H1"), &sheets.ValueRange{
		Values: [][]interface{}{header},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	w.initialized = true
	return nil
}

func (w *SheetsWriter) Append(ctx context.Context, rec *models.ProductRecord) error {
	if rec == nil {
		return fmt.Errorf("sheets: nil record")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.initialized {
		if err := w.initialize(ctx); err != nil {
			return err
		}
	}

	cells := row(rec)
	values := make([]interface{}, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	values[2] = rec.Price
	values[3] = rec.Discount
	if rec.Rating != nil {
		values[5] = *rec.Rating
	}

	_, err := w.svc.Spreadsheets.Values.Append(w.spreadsheetID, w.rangeOf("A:H"), &sheets.ValueRange{
		Values: [][]interface{}{values},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}

	w.logger.Debug("row appended", "name", rec.Name)
	return nil
}

// Rows returns the data rows keyed by header, skipping rows shorter than the header.
func (w *SheetsWriter) Rows(ctx context.Context) ([]map[string]string, error) {
	resp, err := w.svc.Spreadsheets.Values.Get(w.spreadsheetID, w.rangeOf("A:H")).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}

	headers := resp.Values[0]
	var rows []map[string]string
	for _, r := range resp.Values[1:] {
		if len(r) < len(headers) {
			continue
		}
		m := make(map[string]string, len(headers))
		for i, h := range headers {
			m[fmt.Sprint(h)] = fmt.Sprint(r[i])
		}
		rows = append(rows, m)
	}
	return rows, nil
}

// List reads the sheet back as records, newest first. It serves history
// queries when no local journal is configured.
func (w *SheetsWriter) List(ctx context.Context, limit int) ([]*models.ProductRecord, error) {
	return w.records(ctx, "", limit)
}

// History returns the rows of one product, newest first.
func (w *SheetsWriter) History(ctx context.Context, productID string, limit int) ([]*models.ProductRecord, error) {
	if productID == "" {
		return nil, nil
	}
	return w.records(ctx, productID, limit)
}

func (w *SheetsWriter) records(ctx context.Context, productID string, limit int) ([]*models.ProductRecord, error) {
	rows, err := w.Rows(ctx)
	if err != nil {
		return nil, err
	}

	var out []*models.ProductRecord
	for i := len(rows) - 1; i >= 0; i-- {
		rec, ok := recordFromRow(rows[i])
		if !ok || (productID != "" && rec.ProductID != productID) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// recordFromRow rebuilds a record from a header-keyed row. Rows without a
// name or a numeric price are skipped.
func recordFromRow(r map[string]string) (*models.ProductRecord, bool) {
	name := r[Header[0]]
	price, err := strconv.ParseFloat(r[Header[2]], 64)
	if name == "" || err != nil {
		return nil, false
	}

	rec := &models.ProductRecord{
		Name:          name,
		ProductID:     r[Header[1]],
		Price:         price,
		OriginalPrice: price,
		ShopName:      r[Header[4]],
		URL:           r[Header[6]],
	}
	if d, err := strconv.ParseFloat(r[Header[3]], 64); err == nil {
		rec.Discount = d
	}
	if v, err := strconv.ParseFloat(r[Header[5]], 64); err == nil {
		rec.Rating = models.Float(v)
	}
	if ts, err := time.Parse(time.RFC3339, r[Header[7]]); err == nil {
		rec.Timestamp = ts
	}
	return rec, true
}

func (w *SheetsWriter) rangeOf(cells string) string {
	return fmt.Sprintf("'%s'!%s", w.sheetName, cells)
}
