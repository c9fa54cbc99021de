package submission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/stepwise/internal/persistence"
	"github.com/petrijr/stepwise/internal/taskqueue"
	"github.com/petrijr/stepwise/pkg/api"
)

type fakePersistence struct {
	mu       sync.Mutex
	calls    []string
	failOn   string
	category string
	when     string
}

func (f *fakePersistence) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.failOn == name {
		return errors.New(name + " failed: 502")
	}
	return nil
}

func (f *fakePersistence) CreateEntity(ctx context.Context, p api.SubmissionPayload) (api.CreatedEntity, error) {
	if err := f.record("create"); err != nil {
		return api.CreatedEntity{}, err
	}
	return api.CreatedEntity{ID: "entity-1"}, nil
}

func (f *fakePersistence) SubmitForApproval(ctx context.Context, id, category string) (api.CallStatus, error) {
	f.mu.Lock()
	f.category = category
	f.mu.Unlock()
	if err := f.record("approve"); err != nil {
		return api.CallStatus{}, err
	}
	return api.CallStatus{Status: "PENDING_REVIEW"}, nil
}

func (f *fakePersistence) ScheduleEntity(ctx context.Context, id, when string) (api.CallStatus, error) {
	f.mu.Lock()
	f.when = when
	f.mu.Unlock()
	if err := f.record("schedule"); err != nil {
		return api.CallStatus{}, err
	}
	return api.CallStatus{Status: "SCHEDULED"}, nil
}

func (f *fakePersistence) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type noticeRecorder struct {
	api.NoopObserver
	mu      sync.Mutex
	notices []api.Notice
	calls   []api.CallName
}

func (r *noticeRecorder) OnNotice(ctx context.Context, n api.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *noticeRecorder) OnSubmissionCall(ctx context.Context, jobID string, call api.CallName, err error, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

type fixture struct {
	persist *fakePersistence
	jobs    *persistence.InMemoryJobStore
	queue   *taskqueue.InMemoryQueue
	obs     *noticeRecorder
	coord   *Coordinator
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		persist: &fakePersistence{},
		jobs:    persistence.NewInMemoryJobStore(),
		queue:   taskqueue.NewInMemoryQueue(8),
		obs:     &noticeRecorder{},
	}
	opts = append([]Option{WithObserver(f.obs)}, opts...)
	f.coord = New(f.persist, f.jobs, f.queue, opts...)
	return f
}

func scheduledPayload() api.SubmissionPayload {
	return api.SubmissionPayload{
		Name:                 "Friday jazz",
		TemplateID:           "tpl-7",
		ScheduledDateISO8601: "2026-11-01T18:00:00Z",
		TargetAudience:       api.TargetAudience{SelectionMethod: "manual", ManualContacts: []string{"c1"}},
	}
}

func (f *fixture) runNext(t *testing.T) {
	t.Helper()
	task, err := f.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.coord.HandleTask(context.Background(), task))
}

func TestSubmit_PhaseOneMakesNoNetworkCalls(t *testing.T) {
	f := newFixture()
	payload := scheduledPayload()

	job, created, err := f.coord.Submit(context.Background(), "s1", "campaign", nil, payload)
	require.NoError(t, err)
	require.True(t, created)
	require.Empty(t, f.persist.Calls())
	require.Equal(t, 1, f.queue.Len())

	require.Len(t, job.Calls, 3)
	for _, c := range job.Calls {
		require.Equal(t, api.CallPending, c.State)
	}

	// The job holds a snapshot.
	payload.TargetAudience.ManualContacts[0] = "changed"
	stored, err := f.coord.Job(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, "c1", stored.Payload.TargetAudience.ManualContacts[0])

	require.Len(t, f.obs.notices, 1)
	require.Equal(t, api.NoticeSubmissionQueued, f.obs.notices[0].Kind)
}

func TestSubmit_IdempotentPerSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, created, err := f.coord.Submit(ctx, "s1", "campaign", nil, scheduledPayload())
	require.NoError(t, err)
	require.True(t, created)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			again, created, err := f.coord.Submit(ctx, "s1", "campaign", nil, scheduledPayload())
			require.NoError(t, err)
			require.False(t, created)
			require.Equal(t, first.ID, again.ID)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, f.queue.Len())
	jobs, err := f.coord.Jobs(ctx, persistence.JobFilter{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
}

func TestHandleTask_RunsCallsInOrder(t *testing.T) {
	f := newFixture(WithCategory("TRANSACTIONAL"))
	job, _, err := f.coord.Submit(context.Background(), "s1", "campaign", nil, scheduledPayload())
	require.NoError(t, err)

	f.runNext(t)

	require.Equal(t, []string{"create", "approve", "schedule"}, f.persist.Calls())
	require.Equal(t, "TRANSACTIONAL", f.persist.category)
	require.Equal(t, "2026-11-01T18:00:00Z", f.persist.when)

	got, err := f.coord.JobForSession(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, job.ID, got.ID)
	require.Equal(t, "entity-1", got.ResultID)
	require.True(t, got.Done())
	for _, c := range got.Calls {
		require.Equal(t, api.CallSucceeded, c.State, c.Name)
	}
	require.Equal(t, []api.CallName{api.CallCreateEntity, api.CallSubmitForApproval, api.CallScheduleEntity}, f.obs.calls)
}

func TestHandleTask_FailureDoesNotSkipIndependentCalls(t *testing.T) {
	f := newFixture()
	f.persist.failOn = "approve"

	_, _, err := f.coord.Submit(context.Background(), "s1", "campaign", nil, scheduledPayload())
	require.NoError(t, err)

	var watched []api.Notice
	stop := f.coord.Watch("s1", func(n api.Notice) { watched = append(watched, n) })
	defer stop()

	f.runNext(t)

	require.Equal(t, []string{"create", "approve", "schedule"}, f.persist.Calls())

	got, err := f.coord.JobForSession(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, api.CallSucceeded, got.Calls[0].State)
	require.Equal(t, api.CallFailed, got.Calls[1].State)
	require.Contains(t, got.Calls[1].Error, "502")
	require.Equal(t, api.CallSucceeded, got.Calls[2].State)
	require.True(t, got.Done())

	require.Len(t, watched, 1)
	var pf *api.PersistenceFailure
	require.ErrorAs(t, watched[0].Err, &pf)
	require.Equal(t, api.CallSubmitForApproval, pf.Call)
}

func TestHandleTask_CreateFailureSkipsEntityCalls(t *testing.T) {
	f := newFixture()
	f.persist.failOn = "create"

	_, _, err := f.coord.Submit(context.Background(), "s1", "campaign", nil, scheduledPayload())
	require.NoError(t, err)
	f.runNext(t)

	require.Equal(t, []string{"create"}, f.persist.Calls())
	got, err := f.coord.JobForSession(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, api.CallFailed, got.Calls[0].State)
	for _, c := range got.Calls[1:] {
		require.Equal(t, api.CallSkipped, c.State, c.Name)
		require.Contains(t, c.Detail, "no entity id")
	}
}

func TestHandleTask_NoScheduleDateSkipsSchedule(t *testing.T) {
	f := newFixture()
	payload := scheduledPayload()
	payload.ScheduledDateISO8601 = ""

	_, _, err := f.coord.Submit(context.Background(), "s1", "campaign", nil, payload)
	require.NoError(t, err)
	f.runNext(t)

	require.Equal(t, []string{"create", "approve"}, f.persist.Calls())
	got, err := f.coord.JobForSession(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, api.CallSkipped, got.Calls[2].State)
}

func TestHandleTask_ReplayDoesNotRepeatFinishedCalls(t *testing.T) {
	f := newFixture()
	job, _, err := f.coord.Submit(context.Background(), "s1", "onboarding", []api.CallName{api.CallCreateEntity}, scheduledPayload())
	require.NoError(t, err)

	task := &taskqueue.Task{Type: taskqueue.TaskTypeRunSubmission, JobID: job.ID}
	require.NoError(t, f.coord.HandleTask(context.Background(), task))
	require.NoError(t, f.coord.HandleTask(context.Background(), task))

	require.Equal(t, []string{"create"}, f.persist.Calls())
}

// flakyJobStore fails the UpdateJob call with the given 1-based index.
type flakyJobStore struct {
	*persistence.InMemoryJobStore
	mu      sync.Mutex
	updates int
	failAt  int
}

func (s *flakyJobStore) UpdateJob(ctx context.Context, job *api.SubmissionJob) error {
	s.mu.Lock()
	s.updates++
	n := s.updates
	s.mu.Unlock()
	if n == s.failAt {
		return errors.New("store unavailable")
	}
	return s.InMemoryJobStore.UpdateJob(ctx, job)
}

func TestHandleTask_ReplayNeverRerunsInterruptedCall(t *testing.T) {
	persist := &fakePersistence{}
	// Update 1 marks create_entity running, update 2 records its result.
	jobs := &flakyJobStore{InMemoryJobStore: persistence.NewInMemoryJobStore(), failAt: 2}
	queue := taskqueue.NewInMemoryQueue(8)
	obs := &noticeRecorder{}
	coord := New(persist, jobs, queue, WithObserver(obs))

	job, _, err := coord.Submit(context.Background(), "s1", "campaign", nil, scheduledPayload())
	require.NoError(t, err)

	task := &taskqueue.Task{Type: taskqueue.TaskTypeRunSubmission, JobID: job.ID}
	require.Error(t, coord.HandleTask(context.Background(), task))
	require.NoError(t, coord.HandleTask(context.Background(), task))

	require.Equal(t, []string{"create"}, persist.Calls())

	got, err := coord.Job(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, api.CallFailed, got.Calls[0].State)
	require.Contains(t, got.Calls[0].Error, "interrupted")
	require.Equal(t, api.CallSkipped, got.Calls[1].State)
	require.Equal(t, api.CallSkipped, got.Calls[2].State)
	require.True(t, got.Done())

	var failures []api.Notice
	for _, n := range obs.notices {
		if n.Kind == api.NoticePersistenceFailure {
			failures = append(failures, n)
		}
	}
	require.Len(t, failures, 1)
	var pf *api.PersistenceFailure
	require.ErrorAs(t, failures[0].Err, &pf)
	require.Equal(t, api.CallCreateEntity, pf.Call)
}

func TestHandleTask_Errors(t *testing.T) {
	f := newFixture()

	err := f.coord.HandleTask(context.Background(), &taskqueue.Task{Type: "other"})
	require.ErrorIs(t, err, ErrWrongTaskType)

	err = f.coord.HandleTask(context.Background(), &taskqueue.Task{Type: taskqueue.TaskTypeRunSubmission, JobID: "missing"})
	require.ErrorIs(t, err, persistence.ErrJobNotFound)
}
