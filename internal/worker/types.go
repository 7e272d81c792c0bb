package worker

import (
	"context"

	"imagemill/backend/features/job"
)

// RecordStore is the slice of the job repository the workers need. All
// mutations are field-scoped; nothing here rewrites a whole job record.
type RecordStore interface {
	Get(ctx context.Context, id string) (*job.Job, error)
	UpdateStatus(ctx context.Context, id, status string, pct float64, errMsg string) error
	UpdateStatusIfNotTerminal(ctx context.Context, id, status string, pct float64) (bool, error)
	UpdateProductResult(ctx context.Context, jobID string, serial int, outputs []string, outcome string) error
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Transformer interface {
	Apply(data []byte) ([]byte, error)
}

type ObjectStore interface {
	Store(data []byte, hint string) (string, error)
}

// ImageProcessor runs the fetch/transform/persist pipeline for one image.
type ImageProcessor interface {
	Process(ctx context.Context, imageURL, nameHint string) (string, error)
}
