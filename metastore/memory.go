package metastore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/workflow"
)

type memoryRecord struct {
	data    []byte
	summary Summary
}

// MemoryStore keeps executions in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*memoryRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*memoryRecord)}
}

func (s *MemoryStore) SaveExecution(_ context.Context, wf *workflow.Workflow) error {
	data, err := encode(wf)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[wf.ExecutionID] = &memoryRecord{data: data, summary: summarize(wf, time.Now())}
	return nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, executionID string, job *workflow.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[executionID]
	if !ok {
		return errors.NotFound("execution", executionID)
	}
	wf, err := decode(rec.data)
	if err != nil {
		return err
	}
	if err := replaceJob(wf, job); err != nil {
		return err
	}
	data, err := encode(wf)
	if err != nil {
		return err
	}
	rec.data = data
	rec.summary.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) GetExecution(_ context.Context, id string) (*workflow.Workflow, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound("execution", id)
	}
	return decode(rec.data)
}

func (s *MemoryStore) ListExecutions(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	out := make([]Summary, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.summary)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b Summary) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteExecution(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return errors.NotFound("execution", id)
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
