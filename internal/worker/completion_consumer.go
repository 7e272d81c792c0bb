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

// CompletionConsumer re-derives a job's completion state from the persisted
// product records on every report. Concurrent reports for the same job are
// expected; the conditional status update in the store guarantees that only
// one of them wins the terminal transition and fires the webhook.
type CompletionConsumer struct {
	store RecordStore
	pub   TaskPublisher

	// completeWithFailures keeps the permissive policy: a fully resolved job
	// is completed even when products failed. When false, any non-success
	// product turns the terminal status into failed.
	completeWithFailures bool
}

func NewCompletionConsumer(store RecordStore, pub TaskPublisher, completeWithFailures bool) *CompletionConsumer {
	return &CompletionConsumer{store: store, pub: pub, completeWithFailures: completeWithFailures}
}

func (h *CompletionConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload ProductReportPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		slog.Error("invalid completion report payload, dropping", "error", err)
		return nil
	}
	if payload.JobID == "" {
		slog.Error("completion report missing job id, dropping")
		return nil
	}

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	return h.OnProductReported(ctx, payload.JobID)
}

// OnProductReported recomputes completion from the store rather than trusting
// the reporter's view: other products may have resolved since this report was
// published, and reports can arrive in any order.
func (h *CompletionConsumer) OnProductReported(ctx context.Context, jobID string) error {
	j, err := h.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.ErrorContext(ctx, "job not found, dropping report", "job_id", jobID)
			return nil
		}
		slog.ErrorContext(ctx, "failed to load job", "error", err, "job_id", jobID)
		return err
	}

	if job.IsTerminal(j.Status) {
		return nil
	}

	total := len(j.Products)
	if total == 0 {
		return nil
	}

	resolved := j.ResolvedCount()
	pct := float64(resolved) / float64(total) * 100

	if resolved < total {
		if _, err := h.store.UpdateStatusIfNotTerminal(ctx, jobID, job.StatusInProgress, pct); err != nil {
			slog.ErrorContext(ctx, "failed to update job progress", "error", err, "job_id", jobID)
			return err
		}
		slog.InfoContext(ctx, "job progress", "job_id", jobID, "resolved", resolved, "total", total)
		return nil
	}

	final := job.StatusCompleted
	if !h.completeWithFailures && !j.AllSucceeded() {
		final = job.StatusFailed
	}

	applied, err := h.store.UpdateStatusIfNotTerminal(ctx, jobID, final, 100)
	if err != nil {
		slog.ErrorContext(ctx, "failed to apply terminal transition", "error", err, "job_id", jobID)
		return err
	}
	if !applied {
		// Another reporter won the terminal transition.
		return nil
	}

	slog.InfoContext(ctx, "job reached terminal state", "job_id", jobID, "status", final)

	if final == job.StatusCompleted {
		body, _ := json.Marshal(WebhookTaskPayload{
			JobID:         jobID,
			Attempt:       0,
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
		if err := h.pub.Publish(config.TopicWebhook, body); err != nil {
			// The terminal status stands regardless; the notification is lost.
			slog.ErrorContext(ctx, "failed to schedule webhook delivery", "error", err, "job_id", jobID)
		}
	}
	return nil
}
