package persistence

import (
	"time"

	corep "github.com/petrijr/stepwise/internal/persistence"
	"github.com/petrijr/stepwise/pkg/api"
)

func sampleJob(id, session, flow string, created time.Time) *api.SubmissionJob {
	return &api.SubmissionJob{
		ID:        id,
		SessionID: session,
		Flow:      flow,
		Payload: api.SubmissionPayload{
			Name:           "Summer",
			TargetAudience: api.TargetAudience{SelectionMethod: "manual", ManualContacts: []string{"+351900000000"}},
		},
		Calls: []api.CallResult{
			{Name: api.CallCreateEntity, State: api.CallPending},
			{Name: api.CallSubmitForApproval, State: api.CallPending},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func (r *RedisStoreTestSuite) TestSaveAndGetJob() {
	now := time.Now().UTC().Truncate(time.Millisecond)
	job := sampleJob("job-1", "sess-1", "campaign", now)
	r.Require().NoError(r.jobs.SaveJob(r.ctx, job))

	got, err := r.jobs.GetJob(r.ctx, "job-1")
	r.Require().NoError(err)
	r.Equal("sess-1", got.SessionID)
	r.Equal([]string{"+351900000000"}, got.Payload.TargetAudience.ManualContacts)
	r.Len(got.Calls, 2)
	r.True(got.CreatedAt.Equal(now))

	bySession, err := r.jobs.GetJobBySession(r.ctx, "sess-1")
	r.Require().NoError(err)
	r.Equal("job-1", bySession.ID)
}

func (r *RedisStoreTestSuite) TestDuplicateSessionRejected() {
	now := time.Now()
	r.Require().NoError(r.jobs.SaveJob(r.ctx, sampleJob("job-1", "sess-1", "campaign", now)))
	err := r.jobs.SaveJob(r.ctx, sampleJob("job-2", "sess-1", "campaign", now))
	r.ErrorIs(err, corep.ErrDuplicateSession)

	_, err = r.jobs.GetJob(r.ctx, "job-2")
	r.ErrorIs(err, corep.ErrJobNotFound)
}

func (r *RedisStoreTestSuite) TestUpdateJob() {
	job := sampleJob("job-1", "sess-1", "campaign", time.Now())
	r.Require().NoError(r.jobs.SaveJob(r.ctx, job))

	job.Calls[0].State = api.CallSucceeded
	job.ResultID = "entity-9"
	r.Require().NoError(r.jobs.UpdateJob(r.ctx, job))

	got, err := r.jobs.GetJob(r.ctx, "job-1")
	r.Require().NoError(err)
	r.Equal(api.CallSucceeded, got.Calls[0].State)
	r.Equal("entity-9", got.ResultID)

	missing := sampleJob("nope", "sess-x", "campaign", time.Now())
	r.ErrorIs(r.jobs.UpdateJob(r.ctx, missing), corep.ErrJobNotFound)
}

func (r *RedisStoreTestSuite) TestListJobsOrderedAndFiltered() {
	base := time.Now()
	r.Require().NoError(r.jobs.SaveJob(r.ctx, sampleJob("b", "s2", "onboarding", base.Add(time.Second))))
	r.Require().NoError(r.jobs.SaveJob(r.ctx, sampleJob("a", "s1", "campaign", base)))
	r.Require().NoError(r.jobs.SaveJob(r.ctx, sampleJob("c", "s3", "campaign", base.Add(2*time.Second))))

	all, err := r.jobs.ListJobs(r.ctx, corep.JobFilter{})
	r.Require().NoError(err)
	r.Require().Len(all, 3)
	r.Equal([]string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})

	campaigns, err := r.jobs.ListJobs(r.ctx, corep.JobFilter{Flow: "campaign"})
	r.Require().NoError(err)
	r.Len(campaigns, 2)

	one, err := r.jobs.ListJobs(r.ctx, corep.JobFilter{SessionID: "s2"})
	r.Require().NoError(err)
	r.Require().Len(one, 1)
	r.Equal("b", one[0].ID)
}

func (r *RedisStoreTestSuite) TestKV() {
	_, err := r.kv.Get(r.ctx, "achievements/owner-1")
	r.ErrorIs(err, corep.ErrKeyNotFound)

	r.Require().NoError(r.kv.Put(r.ctx, "achievements/owner-1", []byte("v1")))
	r.Require().NoError(r.kv.Put(r.ctx, "achievements/owner-1", []byte("v2")))

	v, err := r.kv.Get(r.ctx, "achievements/owner-1")
	r.Require().NoError(err)
	r.Equal([]byte("v2"), v)
}
