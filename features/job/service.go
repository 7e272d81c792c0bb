package job

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"imagemill/backend/internal/config"
	"imagemill/backend/internal/middleware"
)

var ErrNotCompleted = errors.New("processing not completed")

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo Repository
	pub  TaskPublisher
}

func NewService(repo Repository, pub TaskPublisher) *Service {
	return &Service{repo: repo, pub: pub}
}

// CreateFromCSV validates the uploaded CSV, persists a pending job with its
// full product list, and enqueues the fan-out task. The job id is usable for
// status polling immediately.
func (s *Service) CreateFromCSV(ctx context.Context, r io.Reader) (*Job, error) {
	products, err := ParseCSV(r)
	if err != nil {
		return nil, err
	}

	j := &Job{Status: StatusPending, Products: products}
	if err := s.repo.Create(ctx, j); err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"job_id":         j.ID,
		"correlation_id": middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(config.TopicJobStart, payload); err != nil {
		// The job record exists but nothing will ever pick it up, so fail it
		// rather than leave it pending forever.
		slog.ErrorContext(ctx, "failed to publish job start task", "error", err, "job_id", j.ID)
		if uerr := s.repo.UpdateStatus(ctx, j.ID, StatusFailed, 0, "failed to enqueue processing"); uerr != nil {
			slog.ErrorContext(ctx, "failed to mark job as failed", "error", uerr, "job_id", j.ID)
		}
		return nil, fmt.Errorf("failed to enqueue processing: %w", err)
	}

	slog.InfoContext(ctx, "job accepted", "job_id", j.ID, "products", len(products))
	return j, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.Get(ctx, id)
}

// OutputCSV renders the result CSV for a completed job.
func (s *Service) OutputCSV(ctx context.Context, id string) ([]byte, error) {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: current status: %s", ErrNotCompleted, j.Status)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, j.Products); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
