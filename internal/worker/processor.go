package worker

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Processor transforms one source image reference into an output URL:
// fetch, re-encode, persist. It makes a single attempt per stage; retry
// policy, if any, belongs to the caller.
type Processor struct {
	fetcher     Fetcher
	transformer Transformer
	store       ObjectStore
	limiter     *rate.Limiter
	timeout     time.Duration
}

// NewProcessor builds a processor whose fetches are throttled to one every
// fetchDelay, shared across every in-flight invocation, and whose total
// wall-clock time per image is capped at timeout.
func NewProcessor(f Fetcher, t Transformer, s ObjectStore, fetchDelay, timeout time.Duration) *Processor {
	return &Processor{
		fetcher:     f,
		transformer: t,
		store:       s,
		limiter:     rate.NewLimiter(rate.Every(fetchDelay), 1),
		timeout:     timeout,
	}
}

func (p *Processor) Process(ctx context.Context, imageURL, nameHint string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.limiter.Wait(ctx); err != nil {
		return "", &StageError{Kind: FetchFailed, URL: imageURL, Err: err}
	}

	data, err := p.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return "", &StageError{Kind: FetchFailed, URL: imageURL, Err: err}
	}

	transformed, err := p.transformer.Apply(data)
	if err != nil {
		return "", &StageError{Kind: TransformFailed, URL: imageURL, Err: err}
	}

	outputURL, err := p.store.Store(transformed, nameHint)
	if err != nil {
		return "", &StageError{Kind: PersistFailed, URL: imageURL, Err: err}
	}

	slog.DebugContext(ctx, "image processed", "input_url", imageURL, "output_url", outputURL)
	return outputURL, nil
}
