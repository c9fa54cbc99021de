package persistence

import (
	"context"
	"errors"

	"github.com/petrijr/stepwise/pkg/api"
)

var (
	// ErrJobNotFound is returned when a submission job is not found.
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateSession is returned when a session already owns a job.
	ErrDuplicateSession = errors.New("session already has a submission job")

	// ErrKeyNotFound is returned by KVStore.Get for missing keys.
	ErrKeyNotFound = errors.New("key not found")
)

// JobFilter is used to select jobs from the store.
// Empty strings mean "no filter" for that field.
type JobFilter struct {
	SessionID string
	Flow      string
}

// JobStore handles storage of submission jobs. At most one job exists per
// session id.
type JobStore interface {
	// SaveJob inserts a new job. It returns ErrDuplicateSession if the
	// session already has one.
	SaveJob(ctx context.Context, job *api.SubmissionJob) error
	UpdateJob(ctx context.Context, job *api.SubmissionJob) error
	GetJob(ctx context.Context, id string) (*api.SubmissionJob, error)
	GetJobBySession(ctx context.Context, sessionID string) (*api.SubmissionJob, error)
	// ListJobs returns matching jobs ordered by creation time.
	ListJobs(ctx context.Context, filter JobFilter) ([]*api.SubmissionJob, error)
}

// KVStore is a small durable key-value store for per-owner flags.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}
