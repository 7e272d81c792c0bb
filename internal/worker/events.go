package worker

import (
	"time"

	"imagemill/backend/features/job"
)

// StartJobPayload kicks off fan-out for an accepted job.
type StartJobPayload struct {
	JobID         string `json:"job_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ProductTaskPayload is one independently schedulable unit of work: all images
// belonging to one product of one job.
type ProductTaskPayload struct {
	JobID          string   `json:"job_id"`
	SerialNumber   int      `json:"serial_number"`
	ProductName    string   `json:"product_name"`
	InputImageURLs []string `json:"input_image_urls"`
	CorrelationID  string   `json:"correlation_id,omitempty"`
}

// ProductReportPayload tells the completion aggregator that one product has
// been resolved, successfully or not.
type ProductReportPayload struct {
	JobID         string `json:"job_id"`
	SerialNumber  int    `json:"serial_number"`
	Outcome       string `json:"outcome"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// WebhookTaskPayload schedules one webhook delivery attempt.
type WebhookTaskPayload struct {
	JobID         string `json:"job_id"`
	Attempt       int    `json:"attempt"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// WebhookPayload is the notification body sent to the external subscriber.
type WebhookPayload struct {
	RequestID string        `json:"request_id"`
	Status    string        `json:"status"`
	Products  []job.Product `json:"products"`
	Timestamp time.Time     `json:"timestamp"`
}
