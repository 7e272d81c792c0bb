package worker

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"imagemill/backend/internal/config"
	"imagemill/backend/internal/middleware"
)

// WebhookConsumer delivers the terminal notification to the configured
// subscriber. Delivery is at-least-once and best-effort: a failed attempt is
// re-scheduled exactly once through the same topic, after which it is dropped
// with an error log. The job's terminal status is never affected.
type WebhookConsumer struct {
	store   RecordStore
	pub     TaskPublisher
	client  *http.Client
	url     string
	enabled bool
}

func NewWebhookConsumer(store RecordStore, pub TaskPublisher, url string, enabled bool, timeout time.Duration) *WebhookConsumer {
	return &WebhookConsumer{
		store:   store,
		pub:     pub,
		client:  &http.Client{Timeout: timeout},
		url:     url,
		enabled: enabled,
	}
}

func (h *WebhookConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task WebhookTaskPayload
	if err := json.Unmarshal(m.Body, &task); err != nil {
		slog.Error("invalid webhook task payload, dropping", "error", err)
		return nil
	}

	correlationID := task.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if err := h.Deliver(ctx, task.JobID); err != nil {
		slog.ErrorContext(ctx, "webhook delivery failed", "error", err, "job_id", task.JobID, "attempt", task.Attempt)
		if task.Attempt == 0 {
			body, _ := json.Marshal(WebhookTaskPayload{
				JobID:         task.JobID,
				Attempt:       task.Attempt + 1,
				CorrelationID: correlationID,
			})
			if perr := h.pub.Publish(config.TopicWebhook, body); perr != nil {
				slog.ErrorContext(ctx, "failed to schedule webhook retry", "error", perr, "job_id", task.JobID)
			}
		}
	}
	return nil
}

// Deliver builds the notification payload from the current job snapshot and
// posts it. Disabled-by-configuration is a no-op, not an error.
func (h *WebhookConsumer) Deliver(ctx context.Context, jobID string) error {
	if !h.enabled || h.url == "" {
		return nil
	}

	j, err := h.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.ErrorContext(ctx, "job not found, dropping webhook", "job_id", jobID)
			return nil
		}
		return err
	}

	payload := WebhookPayload{
		RequestID: j.ID,
		Status:    j.Status,
		Products:  j.Products,
		Timestamp: time.Now().UTC(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	slog.InfoContext(ctx, "webhook delivered", "job_id", jobID)
	return nil
}
