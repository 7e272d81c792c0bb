package worker_test

import (
	"context"
	"sync"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/mock"

	"imagemill/backend/features/job"
)

func newNSQMessage(body []byte) *nsq.Message {
	return nsq.NewMessage(nsq.MessageID{}, body)
}

// Mocks

type MockRecordStore struct{ mock.Mock }

func (m *MockRecordStore) Get(ctx context.Context, id string) (*job.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *MockRecordStore) UpdateStatus(ctx context.Context, id, status string, pct float64, errMsg string) error {
	args := m.Called(ctx, id, status, pct, errMsg)
	return args.Error(0)
}

func (m *MockRecordStore) UpdateStatusIfNotTerminal(ctx context.Context, id, status string, pct float64) (bool, error) {
	args := m.Called(ctx, id, status, pct)
	return args.Bool(0), args.Error(1)
}

func (m *MockRecordStore) UpdateProductResult(ctx context.Context, jobID string, serial int, outputs []string, outcome string) error {
	args := m.Called(ctx, jobID, serial, outputs, outcome)
	return args.Error(0)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

type MockProcessor struct{ mock.Mock }

func (m *MockProcessor) Process(ctx context.Context, imageURL, nameHint string) (string, error) {
	args := m.Called(ctx, imageURL, nameHint)
	return args.String(0), args.Error(1)
}

type MockFetcher struct{ mock.Mock }

func (m *MockFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockTransformer struct{ mock.Mock }

func (m *MockTransformer) Apply(data []byte) ([]byte, error) {
	args := m.Called(data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockObjectStore struct{ mock.Mock }

func (m *MockObjectStore) Store(data []byte, hint string) (string, error) {
	args := m.Called(data, hint)
	return args.String(0), args.Error(1)
}

// fakeStore is an in-memory RecordStore with the same conditional-update
// semantics as the Postgres repo, for exercising concurrent reporters.
type fakeStore struct {
	mu       sync.Mutex
	job      *job.Job
	pctTrail []float64
}

func newFakeStore(j *job.Job) *fakeStore {
	return &fakeStore{job: j}
}

func (s *fakeStore) Get(ctx context.Context, id string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.job
	cp.Products = append([]job.Product(nil), s.job.Products...)
	return &cp, nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, id, status string, pct float64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job.Status = status
	s.job.CompletionPct = pct
	s.job.ErrorMessage = errMsg
	s.pctTrail = append(s.pctTrail, pct)
	return nil
}

func (s *fakeStore) UpdateStatusIfNotTerminal(ctx context.Context, id, status string, pct float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.IsTerminal(s.job.Status) {
		return false, nil
	}
	s.job.Status = status
	s.job.CompletionPct = pct
	s.pctTrail = append(s.pctTrail, pct)
	return true, nil
}

func (s *fakeStore) UpdateProductResult(ctx context.Context, jobID string, serial int, outputs []string, outcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.job.Products {
		if s.job.Products[i].SerialNumber == serial {
			s.job.Products[i].OutputURLs = outputs
			s.job.Products[i].Outcome = outcome
			return nil
		}
	}
	return nil
}

// countingPublisher counts publishes per topic without testify's bookkeeping,
// safe for use from many goroutines.
type countingPublisher struct {
	mu     sync.Mutex
	counts map[string]int
	bodies map[string][][]byte
}

func newCountingPublisher() *countingPublisher {
	return &countingPublisher{counts: make(map[string]int), bodies: make(map[string][][]byte)}
}

func (p *countingPublisher) Publish(topic string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[topic]++
	p.bodies[topic] = append(p.bodies[topic], body)
	return nil
}

func (p *countingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[topic]
}
