// Package sim provides in-process stand-ins for the remote services, used
// by the CLI when no real backend is configured.
package sim

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/petrijr/stepwise/pkg/api"
)

// Registry answers uniqueness checks from a fixed set of taken values.
// Matching ignores case and surrounding space.
type Registry struct {
	mu    sync.Mutex
	taken map[string]bool
	calls int
}

var _ api.UniquenessRegistryService = (*Registry)(nil)

// NewRegistry creates a Registry where every value in taken is unavailable,
// whatever its kind.
func NewRegistry(taken ...string) *Registry {
	r := &Registry{taken: make(map[string]bool, len(taken))}
	for _, v := range taken {
		r.Take(v)
	}
	return r
}

func normalize(v string) string { return strings.ToLower(strings.TrimSpace(v)) }

// Take marks value as taken.
func (r *Registry) Take(value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.taken[normalize(value)] = true
}

func (r *Registry) CheckAvailable(ctx context.Context, kind, value string) (api.Availability, error) {
	if err := ctx.Err(); err != nil {
		return api.Availability{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return api.Availability{Available: !r.taken[normalize(value)]}, nil
}

// Calls returns how many checks were answered.
func (r *Registry) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Entity is a record kept by Persistence.
type Entity struct {
	ID        string
	Payload   api.SubmissionPayload
	Category  string
	Status    string
	Scheduled string
}

// Persistence stores entities in memory. The call named by FailCall always
// fails.
type Persistence struct {
	FailCall api.CallName

	mu       sync.Mutex
	entities map[string]*Entity
	order    []string
}

var _ api.EntityPersistenceService = (*Persistence)(nil)

// NewPersistence creates an empty Persistence.
func NewPersistence(failCall api.CallName) *Persistence {
	return &Persistence{FailCall: failCall, entities: make(map[string]*Entity)}
}

func (p *Persistence) fail(call api.CallName) error {
	if p.FailCall == call {
		return fmt.Errorf("sim: %s rejected with 502", call)
	}
	return nil
}

func (p *Persistence) CreateEntity(ctx context.Context, payload api.SubmissionPayload) (api.CreatedEntity, error) {
	if err := p.fail(api.CallCreateEntity); err != nil {
		return api.CreatedEntity{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e := &Entity{ID: uuid.NewString(), Payload: payload.Clone(), Status: "DRAFT"}
	p.entities[e.ID] = e
	p.order = append(p.order, e.ID)
	return api.CreatedEntity{ID: e.ID}, nil
}

func (p *Persistence) SubmitForApproval(ctx context.Context, id, category string) (api.CallStatus, error) {
	if err := p.fail(api.CallSubmitForApproval); err != nil {
		return api.CallStatus{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entities[id]
	if !ok {
		return api.CallStatus{}, fmt.Errorf("sim: entity %s not found", id)
	}
	e.Category = category
	e.Status = "PENDING_APPROVAL"
	return api.CallStatus{Status: e.Status}, nil
}

func (p *Persistence) ScheduleEntity(ctx context.Context, id, when string) (api.CallStatus, error) {
	if err := p.fail(api.CallScheduleEntity); err != nil {
		return api.CallStatus{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entities[id]
	if !ok {
		return api.CallStatus{}, fmt.Errorf("sim: entity %s not found", id)
	}
	e.Scheduled = when
	e.Status = "SCHEDULED"
	return api.CallStatus{Status: e.Status}, nil
}

// Entities returns copies of the stored entities in creation order.
func (p *Persistence) Entities() []Entity {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Entity, 0, len(p.order))
	for _, id := range p.order {
		e := *p.entities[id]
		e.Payload = e.Payload.Clone()
		out = append(out, e)
	}
	return out
}

// Jobs reports every job as processing for ProcessingPolls fetches, then
// completed. Ids starting with "fail-" report error; ids starting with
// "stuck-" never finish.
type Jobs struct {
	ProcessingPolls int

	mu     sync.Mutex
	served map[string]int
}

var _ api.AnalysisJobService = (*Jobs)(nil)

// NewJobs creates a Jobs service.
func NewJobs(processingPolls int) *Jobs {
	return &Jobs{ProcessingPolls: processingPolls, served: make(map[string]int)}
}

func (j *Jobs) GetJobStatus(ctx context.Context, jobID string) (api.JobStatus, error) {
	if err := ctx.Err(); err != nil {
		return api.JobStatus{}, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	n := j.served[jobID]
	j.served[jobID] = n + 1

	switch {
	case strings.HasPrefix(jobID, "fail-"):
		return api.JobStatus{Status: api.PollError}, nil
	case strings.HasPrefix(jobID, "stuck-"):
		return api.JobStatus{Status: api.PollProcessing}, nil
	case n < j.ProcessingPolls:
		return api.JobStatus{Status: api.PollProcessing}, nil
	default:
		return api.JobStatus{
			Status: api.PollCompleted,
			Data:   map[string]any{"jobId": jobID, "score": 0.92},
		}, nil
	}
}
