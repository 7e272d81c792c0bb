package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"imagemill/backend/features/job"
	"imagemill/backend/internal/config"
	"imagemill/backend/internal/middleware"
)

// ProductConsumer processes all images of one product sequentially, records
// the product's result, and reports completion to the aggregator. Exactly one
// consumer instance handles a given product task; fairness across products
// comes from NSQ scheduling the tasks independently.
type ProductConsumer struct {
	store     RecordStore
	processor ImageProcessor
	pub       TaskPublisher
}

func NewProductConsumer(store RecordStore, processor ImageProcessor, pub TaskPublisher) *ProductConsumer {
	return &ProductConsumer{store: store, processor: processor, pub: pub}
}

func (h *ProductConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload ProductTaskPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		slog.Error("invalid product task payload, dropping", "error", err)
		return nil
	}
	if payload.JobID == "" {
		slog.Error("product task missing job id, dropping")
		return nil
	}

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	return h.RunProduct(ctx, payload)
}

// RunProduct runs the image pipeline once per input URL, in input order,
// collecting successes and logging failures. The completion report is
// published unconditionally: a product whose every image failed still counts
// as resolved, otherwise its job could never terminate.
func (h *ProductConsumer) RunProduct(ctx context.Context, task ProductTaskPayload) error {
	outputs := []string{}
	for _, imageURL := range task.InputImageURLs {
		outputURL, err := h.processor.Process(ctx, imageURL, task.ProductName)
		if err != nil {
			slog.ErrorContext(ctx, "image processing failed", "error", err, "job_id", task.JobID, "serial", task.SerialNumber, "url", imageURL)
			continue
		}
		outputs = append(outputs, outputURL)
	}

	outcome := classifyOutcome(len(outputs), len(task.InputImageURLs))

	if err := h.store.UpdateProductResult(ctx, task.JobID, task.SerialNumber, outputs, outcome); err != nil {
		slog.ErrorContext(ctx, "failed to record product result", "error", err, "job_id", task.JobID, "serial", task.SerialNumber)
		return err
	}

	body, _ := json.Marshal(ProductReportPayload{
		JobID:         task.JobID,
		SerialNumber:  task.SerialNumber,
		Outcome:       outcome,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err := h.pub.Publish(config.TopicProductReport, body); err != nil {
		slog.ErrorContext(ctx, "failed to publish completion report", "error", err, "job_id", task.JobID, "serial", task.SerialNumber)
		return err
	}

	slog.InfoContext(ctx, "product processed", "job_id", task.JobID, "serial", task.SerialNumber, "outcome", outcome, "outputs", len(outputs))
	return nil
}

func classifyOutcome(succeeded, total int) string {
	switch {
	case succeeded == total:
		return job.OutcomeSuccess
	case succeeded == 0:
		return job.OutcomeFailed
	default:
		return job.OutcomePartial
	}
}
