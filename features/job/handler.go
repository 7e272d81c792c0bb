package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"imagemill/backend/internal/middleware"
)

type Handler struct {
	service       *Service
	maxUploadSize int64
}

func NewHandler(s *Service, maxUploadSizeMB int64) *Handler {
	return &Handler{service: s, maxUploadSize: maxUploadSizeMB << 20}
}

// Upload accepts a multipart CSV and returns the job id immediately;
// processing continues asynchronously.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "File too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "Unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Only CSV files are allowed", http.StatusBadRequest)
		return
	}

	j, err := h.service.CreateFromCSV(ctx, file)
	if err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			h.writeError(ctx, w, "VALIDATION_ERROR", vErr.Error(), http.StatusBadRequest)
			return
		}
		slog.ErrorContext(ctx, "upload failed", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	resp := map[string]interface{}{
		"request_id": j.ID,
		"message":    "CSV file accepted for processing",
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// Status reports job progress; pass include_products=true for the full
// per-product breakdown.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if _, err := uuid.Parse(id); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid request ID format", http.StatusBadRequest)
		return
	}

	j, err := h.service.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(ctx, w, "NOT_FOUND", "Request not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to fetch job", "error", err, "job_id", id)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"request_id":            j.ID,
		"status":                j.Status,
		"completion_percentage": j.CompletionPct,
	}
	if j.ErrorMessage != "" {
		resp["error_message"] = j.ErrorMessage
	}
	if r.URL.Query().Get("include_products") == "true" {
		resp["products"] = j.Products
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// Download describes where the result file can be fetched from, for completed
// jobs only.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if _, err := uuid.Parse(id); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid request ID format", http.StatusBadRequest)
		return
	}

	j, err := h.service.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(ctx, w, "NOT_FOUND", "Request not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to fetch job", "error", err, "job_id", id)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if j.Status != StatusCompleted {
		h.writeError(ctx, w, "NOT_COMPLETED", fmt.Sprintf("Processing not completed. Current status: %s", j.Status), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"request_id":   j.ID,
		"status":       j.Status,
		"message":      "Processing completed successfully",
		"download_url": fmt.Sprintf("/api/download/%s/file", j.ID),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// DownloadFile streams the result CSV.
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if _, err := uuid.Parse(id); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid request ID format", http.StatusBadRequest)
		return
	}

	data, err := h.service.OutputCSV(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.writeError(ctx, w, "NOT_FOUND", "Request not found", http.StatusNotFound)
		case errors.Is(err, ErrNotCompleted):
			h.writeError(ctx, w, "NOT_COMPLETED", err.Error(), http.StatusBadRequest)
		default:
			slog.ErrorContext(ctx, "failed to generate result csv", "error", err, "job_id", id)
			h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=processed_results_%s.csv", id))
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write csv response", "error", err)
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
