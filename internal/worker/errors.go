package worker

import "fmt"

// FailureKind classifies which stage of the image pipeline failed.
type FailureKind int

const (
	FetchFailed FailureKind = iota
	TransformFailed
	PersistFailed
)

func (k FailureKind) String() string {
	switch k {
	case FetchFailed:
		return "fetch_failed"
	case TransformFailed:
		return "transform_failed"
	case PersistFailed:
		return "persist_failed"
	default:
		return "unknown"
	}
}

// StageError wraps a stage failure with its kind and the image it concerned.
type StageError struct {
	Kind FailureKind
	URL  string
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
