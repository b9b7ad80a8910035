package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/maltedev/shopee-price-tracker/internal/models"
)

// CSVWriter appends one row per record to a local file and writes the header
// only when the file is new or empty.
type CSVWriter struct {
	mu   sync.Mutex
	path string
}

func NewCSVWriter(path string) (*CSVWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir: %w", err)
		}
	}
	return &CSVWriter{path: path}, nil
}

func (w *CSVWriter) Name() string { return "csv" }

func (w *CSVWriter) Append(ctx context.Context, rec *models.ProductRecord) error {
	if rec == nil {
		return fmt.Errorf("csv: nil record")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := cw.Write(Header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := cw.Write(row(rec)); err != nil {
		return fmt.Errorf("write row: %w", err)
	}

	cw.Flush()
	return cw.Error()
}
