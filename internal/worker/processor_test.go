package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"imagemill/backend/internal/worker"
)

func newTestProcessor(f *MockFetcher, t *MockTransformer, s *MockObjectStore) *worker.Processor {
	return worker.NewProcessor(f, t, s, time.Millisecond, time.Second)
}

func TestProcessor_Success(t *testing.T) {
	fetcher := new(MockFetcher)
	transformer := new(MockTransformer)
	store := new(MockObjectStore)

	fetcher.On("Fetch", mock.Anything, "http://img/a.png").Return([]byte("raw"), nil)
	transformer.On("Apply", []byte("raw")).Return([]byte("jpeg"), nil)
	store.On("Store", []byte("jpeg"), "Widget").Return("https://cdn/widget_1.jpg", nil)

	p := newTestProcessor(fetcher, transformer, store)
	out, err := p.Process(context.Background(), "http://img/a.png", "Widget")

	require.NoError(t, err)
	assert.Equal(t, "https://cdn/widget_1.jpg", out)
	fetcher.AssertExpectations(t)
	transformer.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestProcessor_FetchFailure(t *testing.T) {
	fetcher := new(MockFetcher)
	transformer := new(MockTransformer)
	store := new(MockObjectStore)

	fetcher.On("Fetch", mock.Anything, "http://img/a.png").Return(nil, errors.New("connection refused"))

	p := newTestProcessor(fetcher, transformer, store)
	out, err := p.Process(context.Background(), "http://img/a.png", "Widget")

	assert.Empty(t, out)
	var stageErr *worker.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, worker.FetchFailed, stageErr.Kind)
	assert.Equal(t, "http://img/a.png", stageErr.URL)
	transformer.AssertNotCalled(t, "Apply", mock.Anything)
	store.AssertNotCalled(t, "Store", mock.Anything, mock.Anything)
}

func TestProcessor_TransformFailure(t *testing.T) {
	fetcher := new(MockFetcher)
	transformer := new(MockTransformer)
	store := new(MockObjectStore)

	fetcher.On("Fetch", mock.Anything, mock.Anything).Return([]byte("not-an-image"), nil)
	transformer.On("Apply", mock.Anything).Return(nil, errors.New("decode image: unknown format"))

	p := newTestProcessor(fetcher, transformer, store)
	_, err := p.Process(context.Background(), "http://img/bad.bin", "Widget")

	var stageErr *worker.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, worker.TransformFailed, stageErr.Kind)
	store.AssertNotCalled(t, "Store", mock.Anything, mock.Anything)
}

func TestProcessor_PersistFailure(t *testing.T) {
	fetcher := new(MockFetcher)
	transformer := new(MockTransformer)
	store := new(MockObjectStore)

	fetcher.On("Fetch", mock.Anything, mock.Anything).Return([]byte("raw"), nil)
	transformer.On("Apply", mock.Anything).Return([]byte("jpeg"), nil)
	store.On("Store", mock.Anything, mock.Anything).Return("", errors.New("disk full"))

	p := newTestProcessor(fetcher, transformer, store)
	_, err := p.Process(context.Background(), "http://img/a.png", "Widget")

	var stageErr *worker.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, worker.PersistFailed, stageErr.Kind)
}

func TestProcessor_CancelledContext(t *testing.T) {
	fetcher := new(MockFetcher)
	transformer := new(MockTransformer)
	store := new(MockObjectStore)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestProcessor(fetcher, transformer, store)
	_, err := p.Process(ctx, "http://img/a.png", "Widget")

	var stageErr *worker.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, worker.FetchFailed, stageErr.Kind)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}
