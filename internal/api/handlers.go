package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/maltedev/shopee-price-tracker/internal/models"
	"github.com/maltedev/shopee-price-tracker/internal/queue"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBatchURLs     = 200

	pendingWarnThreshold     = 1000
	deadLetterErrorThreshold = 100
)

type ProductTracker interface {
	TrackProduct(ctx context.Context, url string) (*models.ProductRecord, error)
}

type TaskEnqueuer interface {
	Enqueue(urls []string, priority int) ([]*queue.Task, error)
	Pending() int
}

type RecordReader interface {
	List(ctx context.Context, limit int) ([]*models.ProductRecord, error)
	History(ctx context.Context, productID string, limit int) ([]*models.ProductRecord, error)
}

// OutboxBacklog reports relay health; database.Relay satisfies it.
type OutboxBacklog interface {
	Backlog(ctx context.Context) (pending, deadLetter int64, err error)
}

// Handlers serves the tracking API. Every collaborator except the tracker
// is optional; endpoints backed by a missing one answer 503.
type Handlers struct {
	tracker ProductTracker
	queue   TaskEnqueuer
	records RecordReader
	outbox  OutboxBacklog
	logger  *slog.Logger
}

func NewHandlers(tracker ProductTracker, queue TaskEnqueuer, records RecordReader, outbox OutboxBacklog, logger *slog.Logger) *Handlers {
	return &Handlers{
		tracker: tracker,
		queue:   queue,
		records: records,
		outbox:  outbox,
		logger:  logger.With("component", "api"),
	}
}

// Routes mounts the API on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/track", h.Track)
		r.Post("/track/batch", h.TrackBatch)
		r.Get("/records", h.ListRecords)
		r.Get("/records/{productID}", h.ProductHistory)
	})
}

type TrackRequest struct {
	URL string `json:"url"`
}

type TrackResponse struct {
	Record *models.ProductRecord `json:"record,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// Track scrapes one product synchronously. A record that was scraped but
// could not be stored is still returned, alongside the storage error.
func (h *Handlers) Track(w http.ResponseWriter, r *http.Request) {
	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	rec, err := h.tracker.TrackProduct(r.Context(), req.URL)
	if err != nil {
		h.logger.Error("failed to track product", "url", req.URL, "error", err)
		if rec == nil {
			h.respondError(w, http.StatusGatewayTimeout, "tracking aborted")
			return
		}
		h.respondJSON(w, http.StatusBadGateway, TrackResponse{Record: rec, Error: err.Error()})
		return
	}

	h.respondJSON(w, http.StatusOK, TrackResponse{Record: rec})
}

type BatchRequest struct {
	URLs     []string `json:"urls"`
	Priority int      `json:"priority"`
}

type BatchResponse struct {
	TaskIDs []string `json:"task_ids"`
	Pending int      `json:"pending"`
}

// TrackBatch queues URLs for the background worker.
func (h *Handlers) TrackBatch(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		h.respondError(w, http.StatusServiceUnavailable, "batch tracking is disabled")
		return
	}

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.URLs) == 0 {
		h.respondError(w, http.StatusBadRequest, "urls are required")
		return
	}
	if len(req.URLs) > maxBatchURLs {
		h.respondError(w, http.StatusBadRequest, "too many urls")
		return
	}

	tasks, err := h.queue.Enqueue(req.URLs, req.Priority)
	if err != nil {
		h.logger.Error("failed to queue tasks", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}

	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	h.respondJSON(w, http.StatusAccepted, BatchResponse{TaskIDs: ids, Pending: h.queue.Pending()})
}

func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		h.respondError(w, http.StatusServiceUnavailable, "record journal is disabled")
		return
	}

	limit, ok := h.limit(w, r)
	if !ok {
		return
	}

	recs, err := h.records.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list records", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	h.respondJSON(w, http.StatusOK, nonNil(recs))
}

func (h *Handlers) ProductHistory(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		h.respondError(w, http.StatusServiceUnavailable, "record journal is disabled")
		return
	}

	productID := chi.URLParam(r, "productID")
	if productID == "" {
		h.respondError(w, http.StatusBadRequest, "product ID is required")
		return
	}

	limit, ok := h.limit(w, r)
	if !ok {
		return
	}

	recs, err := h.records.History(r.Context(), productID, limit)
	if err != nil {
		h.logger.Error("failed to read history", "product_id", productID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	if len(recs) == 0 {
		h.respondError(w, http.StatusNotFound, "no records for product")
		return
	}
	h.respondJSON(w, http.StatusOK, recs)
}

// Health reports outbox backlog when the relay is running. Too many dead
// letters flips the status to 503.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if h.queue != nil {
		health["queue"] = map[string]int{"pending": h.queue.Pending()}
	}

	if h.outbox != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		pending, deadLetter, err := h.outbox.Backlog(ctx)
		if err != nil {
			h.logger.Warn("failed to read outbox backlog", "error", err)
			health["status"] = "degraded"
			health["message"] = "outbox unavailable"
		} else {
			health["outbox"] = map[string]int64{
				"pending":     pending,
				"dead_letter": deadLetter,
			}
			if pending > pendingWarnThreshold {
				health["status"] = "warning"
				health["message"] = "High number of pending outbox events"
			}
			if deadLetter > deadLetterErrorThreshold {
				health["status"] = "error"
				health["message"] = "High number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, true
}

func nonNil(recs []*models.ProductRecord) []*models.ProductRecord {
	if recs == nil {
		return []*models.ProductRecord{}
	}
	return recs
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// RequestLogger logs each request through slog with the chi request id.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("component", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
