package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"imagemill/backend/features/job"
	"imagemill/backend/internal/config"
	"imagemill/backend/internal/middleware"
)

// FanoutConsumer turns an accepted job into one independent product task per
// product. Dispatch is fire-and-forget; completion flows back through the
// report topic.
type FanoutConsumer struct {
	store RecordStore
	pub   TaskPublisher
}

func NewFanoutConsumer(store RecordStore, pub TaskPublisher) *FanoutConsumer {
	return &FanoutConsumer{store: store, pub: pub}
}

func (h *FanoutConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload StartJobPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		slog.Error("invalid job start payload, dropping", "error", err)
		return nil
	}

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	return h.Start(ctx, payload.JobID)
}

// Start loads the job, moves it to in_progress, and dispatches one product
// task per product, in product order. A job that cannot be started at all is
// failed outright with no units dispatched.
func (h *FanoutConsumer) Start(ctx context.Context, jobID string) error {
	j, err := h.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.ErrorContext(ctx, "job not found, dropping", "job_id", jobID)
			return nil
		}
		slog.ErrorContext(ctx, "failed to load job", "error", err, "job_id", jobID)
		return err
	}

	if len(j.Products) == 0 {
		slog.ErrorContext(ctx, "job has no products", "job_id", jobID)
		return h.failJob(ctx, jobID, "no products to process")
	}

	if err := h.store.UpdateStatus(ctx, jobID, job.StatusInProgress, 0, ""); err != nil {
		slog.ErrorContext(ctx, "failed to mark job in progress", "error", err, "job_id", jobID)
		return err
	}

	correlationID := middleware.GetCorrelationID(ctx)
	for _, p := range j.Products {
		body, _ := json.Marshal(ProductTaskPayload{
			JobID:          jobID,
			SerialNumber:   p.SerialNumber,
			ProductName:    p.Name,
			InputImageURLs: p.InputURLs,
			CorrelationID:  correlationID,
		})
		if err := h.pub.Publish(config.TopicProductTask, body); err != nil {
			slog.ErrorContext(ctx, "failed to dispatch product task", "error", err, "job_id", jobID, "serial", p.SerialNumber)
			return h.failJob(ctx, jobID, "failed to dispatch processing tasks")
		}
	}

	slog.InfoContext(ctx, "job fan-out complete", "job_id", jobID, "products", len(j.Products))
	return nil
}

func (h *FanoutConsumer) failJob(ctx context.Context, jobID, msg string) error {
	if err := h.store.UpdateStatus(ctx, jobID, job.StatusFailed, 0, msg); err != nil {
		slog.ErrorContext(ctx, "failed to mark job as failed", "error", err, "job_id", jobID)
		return err
	}
	return nil
}
