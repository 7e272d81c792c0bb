package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"imagemill/backend/internal/middleware"
)

type JobRepo interface {
	Count(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

type Handler struct {
	jobRepo JobRepo
}

func NewHandler(j JobRepo) *Handler {
	return &Handler{jobRepo: j}
}

type StatsResponse struct {
	Jobs       int `json:"jobs"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total, err := h.jobRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	byStatus, err := h.jobRepo.CountByStatus(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs by status", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs by status", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Jobs:       total,
		Pending:    byStatus["pending"],
		InProgress: byStatus["in_progress"],
		Completed:  byStatus["completed"],
		Failed:     byStatus["failed"],
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
