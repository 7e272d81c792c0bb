package job

import (
	"time"
)

// Job statuses. Completed and failed are terminal.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Per-product outcomes, recorded when the product's worker finishes. An empty
// outcome means the product has not been resolved yet.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

type Product struct {
	SerialNumber int      `json:"serial_number"`
	Name         string   `json:"product_name"`
	InputURLs    []string `json:"input_image_urls"`
	OutputURLs   []string `json:"output_image_urls"`
	Outcome      string   `json:"outcome,omitempty"`
}

// Resolved reports whether this product's worker has finished, regardless of
// how many of its images succeeded. The outcome flag is authoritative here:
// output URLs alone cannot distinguish "all images failed" from "not processed
// yet".
func (p Product) Resolved() bool {
	return p.Outcome != ""
}

type Job struct {
	ID            string    `json:"request_id"`
	Status        string    `json:"status"`
	CompletionPct float64   `json:"completion_percentage"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Products      []Product `json:"products,omitempty"`
}

// ResolvedCount re-derives completion from the product records. CompletionPct
// is a cached view of this value, never a source of truth.
func (j *Job) ResolvedCount() int {
	n := 0
	for _, p := range j.Products {
		if p.Resolved() {
			n++
		}
	}
	return n
}

// AllSucceeded reports whether every product resolved with a full success.
func (j *Job) AllSucceeded() bool {
	for _, p := range j.Products {
		if p.Outcome != OutcomeSuccess {
			return false
		}
	}
	return true
}
