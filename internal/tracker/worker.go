package tracker

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/maltedev/shopee-price-tracker/internal/metrics"
	"github.com/maltedev/shopee-price-tracker/internal/queue"
)

// Worker drains queued track requests submitted through the API.
type Worker struct {
	tracker    *Tracker
	queue      *queue.BatchQueue
	metrics    *metrics.Registry
	maxRetries int
	logger     *slog.Logger
}

func NewWorker(tracker *Tracker, q *queue.BatchQueue, reg *metrics.Registry, maxRetries int, logger *slog.Logger) *Worker {
	return &Worker{
		tracker:    tracker,
		queue:      q,
		metrics:    reg,
		maxRetries: maxRetries,
		logger:     logger.With("component", "worker"),
	}
}

// Enqueue queues one task per non-empty URL.
func (w *Worker) Enqueue(urls []string, priority int) ([]*queue.Task, error) {
	var tasks []*queue.Task
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			tasks = append(tasks, queue.NewTask(u, priority))
		}
	}

	if err := w.queue.PushBatch(tasks); err != nil {
		return nil, err
	}
	w.metrics.SetQueueDepth(w.queue.Size())
	w.logger.Info("tasks queued", "count", len(tasks), "priority", priority)
	return tasks, nil
}

// Pending reports how many tasks are waiting.
func (w *Worker) Pending() int { return w.queue.Size() }

// Start processes batches until ctx ends or the queue is closed and drained.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker started")

	for {
		tasks, err := w.queue.PopBatch(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) || ctx.Err() != nil {
				w.logger.Info("worker stopping")
				return nil
			}
			return err
		}
		w.metrics.SetQueueDepth(w.queue.Size())

		for _, task := range tasks {
			w.process(ctx, task)
		}
	}
}

func (w *Worker) process(ctx context.Context, task *queue.Task) {
	rec, err := w.tracker.trackPaced(ctx, task.URL)
	if err == nil {
		w.logger.Debug("task done", "id", task.ID, "source", rec.Source)
		return
	}
	if ctx.Err() != nil {
		return
	}
	if rec != nil {
		// Scraped but refused by a sink. Other sinks already hold the row.
		w.logger.Error("task stored partially, not retrying", "id", task.ID, "url", task.URL, "error", err)
		return
	}

	if task.Retries >= w.maxRetries {
		w.logger.Error("task failed, giving up", "id", task.ID, "url", task.URL, "error", err)
		return
	}

	task.Retries++
	w.logger.Warn("task failed, requeueing", "id", task.ID, "retry", task.Retries, "error", err)
	if err := w.queue.PushBatch([]*queue.Task{task}); err != nil {
		w.logger.Error("failed to requeue task", "id", task.ID, "error", err)
	}
	w.metrics.SetQueueDepth(w.queue.Size())
}
