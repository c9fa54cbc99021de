package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/petrijr/stepwise/pkg/api"
)

// InMemoryJobStore is a goroutine-safe JobStore backed by maps. Jobs are
// cloned on the way in and out so callers never share state with the store.
type InMemoryJobStore struct {
	mu        sync.RWMutex
	jobs      map[string]*api.SubmissionJob
	bySession map[string]string
}

// NewInMemoryJobStore creates a new InMemoryJobStore.
func NewInMemoryJobStore() *InMemoryJobStore {
	return &InMemoryJobStore{
		jobs:      make(map[string]*api.SubmissionJob),
		bySession: make(map[string]string),
	}
}

// Ensure InMemoryJobStore implements JobStore.
var _ JobStore = (*InMemoryJobStore)(nil)

func (s *InMemoryJobStore) SaveJob(ctx context.Context, job *api.SubmissionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bySession[job.SessionID]; ok {
		return ErrDuplicateSession
	}
	s.jobs[job.ID] = job.Clone()
	s.bySession[job.SessionID] = job.ID
	return nil
}

func (s *InMemoryJobStore) UpdateJob(ctx context.Context, job *api.SubmissionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *InMemoryJobStore) GetJob(ctx context.Context, id string) (*api.SubmissionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

func (s *InMemoryJobStore) GetJobBySession(ctx context.Context, sessionID string) (*api.SubmissionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySession[sessionID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return s.jobs[id].Clone(), nil
}

func (s *InMemoryJobStore) ListJobs(ctx context.Context, filter JobFilter) ([]*api.SubmissionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.SubmissionJob
	for _, job := range s.jobs {
		if filter.SessionID != "" && job.SessionID != filter.SessionID {
			continue
		}
		if filter.Flow != "" && job.Flow != filter.Flow {
			continue
		}
		result = append(result, job.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// InMemoryKVStore is a goroutine-safe KVStore backed by a map.
type InMemoryKVStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewInMemoryKVStore creates a new InMemoryKVStore.
func NewInMemoryKVStore() *InMemoryKVStore {
	return &InMemoryKVStore{data: make(map[string][]byte)}
}

var _ KVStore = (*InMemoryKVStore)(nil)

func (s *InMemoryKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *InMemoryKVStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = append([]byte(nil), value...)
	return nil
}
