// Package submission implements the two-phase submission model.
//
// Phase 1 (Submit) runs synchronously when a flow is confirmed. It performs
// no network calls: it snapshots the payload into a SubmissionJob, persists
// it and hands a task to the background queue, so the caller can report
// completion immediately.
//
// Phase 2 (HandleTask) runs from a worker. It executes the job's dependent
// calls in order, each with its own status. A failed call is recorded and
// reported as a notice. Calls that need the created entity are skipped when
// there is none; the others still run. Calls are never retried and earlier
// successes are never rolled back.
package submission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/petrijr/stepwise/internal/clock"
	"github.com/petrijr/stepwise/internal/persistence"
	"github.com/petrijr/stepwise/internal/taskqueue"
	"github.com/petrijr/stepwise/pkg/api"
)

// DefaultCategory is the approval category sent with submit_for_approval.
const DefaultCategory = "MARKETING"

var (
	// ErrWrongTaskType is returned by HandleTask for foreign tasks.
	ErrWrongTaskType = errors.New("submission: unexpected task type")

	errNoEntity    = errors.New("no entity id: create_entity did not succeed")
	errInterrupted = errors.New("interrupted before its result was recorded")
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCategory sets the approval category.
func WithCategory(category string) Option {
	return func(c *Coordinator) {
		if category != "" {
			c.category = category
		}
	}
}

// WithObserver sets the observer for call results and notices.
func WithObserver(obs api.Observer) Option {
	return func(c *Coordinator) {
		if obs != nil {
			c.observer = obs
		}
	}
}

// WithClock replaces the clock used for timestamps and durations.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

// Coordinator owns submission jobs. It is safe for concurrent use.
type Coordinator struct {
	persist  api.EntityPersistenceService
	jobs     persistence.JobStore
	queue    taskqueue.Queue
	category string
	observer api.Observer
	clock    clock.Clock

	// mu serializes Submit so concurrent confirmations of one session
	// cannot both create a job.
	mu sync.Mutex

	watchMu  sync.Mutex
	watchSeq int
	watchers map[string]map[int]func(api.Notice)
}

// New creates a Coordinator.
func New(persist api.EntityPersistenceService, jobs persistence.JobStore, queue taskqueue.Queue, opts ...Option) *Coordinator {
	c := &Coordinator{
		persist:  persist,
		jobs:     jobs,
		queue:    queue,
		category: DefaultCategory,
		observer: api.NoopObserver{},
		clock:    clock.Real(),
		watchers: make(map[string]map[int]func(api.Notice)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit is Phase 1. It returns the session's job and whether it was
// created by this call; repeated calls for a session return the existing
// job with created == false.
//
// If the job was saved but could not be queued, the job is returned along
// with the error.
func (c *Coordinator) Submit(ctx context.Context, sessionID, flow string, calls []api.CallName, payload api.SubmissionPayload) (*api.SubmissionJob, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.jobs.GetJobBySession(ctx, sessionID)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, persistence.ErrJobNotFound):
		return nil, false, fmt.Errorf("lookup job for session %s: %w", sessionID, err)
	}

	if len(calls) == 0 {
		calls = api.DefaultCalls()
	}
	now := c.clock.Now()
	job := &api.SubmissionJob{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Flow:      flow,
		Payload:   payload.Clone(),
		Calls:     make([]api.CallResult, len(calls)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, name := range calls {
		job.Calls[i] = api.CallResult{Name: name, State: api.CallPending}
	}

	if err := c.jobs.SaveJob(ctx, job); err != nil {
		if errors.Is(err, persistence.ErrDuplicateSession) {
			existing, gerr := c.jobs.GetJobBySession(ctx, sessionID)
			return existing, false, gerr
		}
		return nil, false, fmt.Errorf("save job: %w", err)
	}

	task := taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeRunSubmission,
		JobID:      job.ID,
		SessionID:  sessionID,
		EnqueuedAt: now,
	}
	if err := c.queue.Enqueue(ctx, task); err != nil {
		return job.Clone(), true, fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}

	c.notify(ctx, api.Notice{
		Kind:      api.NoticeSubmissionQueued,
		SessionID: sessionID,
		At:        now,
		Message:   job.ID,
	})
	return job.Clone(), true, nil
}

// HandleTask is Phase 2. It is registered as the worker handler for
// TaskTypeRunSubmission. Calls that already reached a terminal state are
// not repeated, so a replayed task only finishes what is left.
//
// Call failures are recorded on the job and do not make HandleTask fail;
// the returned error is reserved for store problems.
func (c *Coordinator) HandleTask(ctx context.Context, task *taskqueue.Task) error {
	if task.Type != taskqueue.TaskTypeRunSubmission {
		return fmt.Errorf("%w: %q", ErrWrongTaskType, task.Type)
	}

	job, err := c.jobs.GetJob(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", task.JobID, err)
	}

	for i := range job.Calls {
		call := &job.Calls[i]
		if call.State.Terminal() {
			continue
		}
		if call.State == api.CallRunning {
			// The outcome of an interrupted call is unknown; running it again
			// could duplicate a side effect.
			call.State = api.CallFailed
			call.Error = errInterrupted.Error()
			c.notifyFailure(ctx, job, call.Name, errInterrupted)
			if err := c.save(ctx, job); err != nil {
				return err
			}
			continue
		}
		if needsEntity(call.Name) && job.ResultID == "" {
			call.State = api.CallSkipped
			call.Detail = errNoEntity.Error()
			continue
		}

		call.State = api.CallRunning
		if err := c.save(ctx, job); err != nil {
			return err
		}

		start := c.clock.Now()
		detail, skip, cerr := c.run(ctx, job, call.Name)
		c.observer.OnSubmissionCall(ctx, job.ID, call.Name, cerr, c.clock.Now().Sub(start))

		switch {
		case cerr != nil:
			call.State = api.CallFailed
			call.Error = cerr.Error()
			c.notifyFailure(ctx, job, call.Name, cerr)
		case skip:
			call.State = api.CallSkipped
			call.Detail = detail
		default:
			call.State = api.CallSucceeded
			call.Detail = detail
		}
		if err := c.save(ctx, job); err != nil {
			return err
		}
	}
	return c.save(ctx, job)
}

func (c *Coordinator) notifyFailure(ctx context.Context, job *api.SubmissionJob, name api.CallName, err error) {
	c.notify(ctx, api.Notice{
		Kind:      api.NoticePersistenceFailure,
		SessionID: job.SessionID,
		At:        c.clock.Now(),
		Message:   string(name),
		Err:       &api.PersistenceFailure{JobID: job.ID, Call: name, Err: err},
	})
}

func needsEntity(name api.CallName) bool {
	return name == api.CallSubmitForApproval || name == api.CallScheduleEntity
}

// run executes one call against the persistence service.
func (c *Coordinator) run(ctx context.Context, job *api.SubmissionJob, name api.CallName) (detail string, skip bool, err error) {
	switch name {
	case api.CallCreateEntity:
		created, err := c.persist.CreateEntity(ctx, job.Payload)
		if err != nil {
			return "", false, err
		}
		if created.ID == "" {
			return "", false, errors.New("create_entity returned an empty id")
		}
		job.ResultID = created.ID
		return created.ID, false, nil

	case api.CallSubmitForApproval:
		if job.ResultID == "" {
			return "", false, errNoEntity
		}
		st, err := c.persist.SubmitForApproval(ctx, job.ResultID, c.category)
		return st.Status, false, err

	case api.CallScheduleEntity:
		if job.ResultID == "" {
			return "", false, errNoEntity
		}
		when := job.Payload.ScheduledDateISO8601
		if when == "" {
			return "sent immediately", true, nil
		}
		st, err := c.persist.ScheduleEntity(ctx, job.ResultID, when)
		return st.Status, false, err

	default:
		return "", false, fmt.Errorf("unknown call %q", name)
	}
}

func (c *Coordinator) save(ctx context.Context, job *api.SubmissionJob) error {
	job.UpdatedAt = c.clock.Now()
	if err := c.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	return nil
}

// Job returns the current state of a job.
func (c *Coordinator) Job(ctx context.Context, jobID string) (*api.SubmissionJob, error) {
	return c.jobs.GetJob(ctx, jobID)
}

// JobForSession returns the job created for sessionID.
func (c *Coordinator) JobForSession(ctx context.Context, sessionID string) (*api.SubmissionJob, error) {
	return c.jobs.GetJobBySession(ctx, sessionID)
}

// Jobs lists jobs matching filter.
func (c *Coordinator) Jobs(ctx context.Context, filter persistence.JobFilter) ([]*api.SubmissionJob, error) {
	return c.jobs.ListJobs(ctx, filter)
}

// Watch registers fn for notices about sessionID's job. The returned
// function unregisters it; the job itself keeps running.
func (c *Coordinator) Watch(sessionID string, fn func(api.Notice)) (cancel func()) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()

	c.watchSeq++
	id := c.watchSeq
	if c.watchers[sessionID] == nil {
		c.watchers[sessionID] = make(map[int]func(api.Notice))
	}
	c.watchers[sessionID][id] = fn

	return func() {
		c.watchMu.Lock()
		defer c.watchMu.Unlock()
		delete(c.watchers[sessionID], id)
		if len(c.watchers[sessionID]) == 0 {
			delete(c.watchers, sessionID)
		}
	}
}

func (c *Coordinator) notify(ctx context.Context, n api.Notice) {
	c.observer.OnNotice(ctx, n)

	c.watchMu.Lock()
	fns := make([]func(api.Notice), 0, len(c.watchers[n.SessionID]))
	for _, fn := range c.watchers[n.SessionID] {
		fns = append(fns, fn)
	}
	c.watchMu.Unlock()

	for _, fn := range fns {
		fn(n)
	}
}
