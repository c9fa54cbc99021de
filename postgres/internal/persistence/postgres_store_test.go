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

func (p *PostgresStoreTestSuite) TestSaveAndGetJob() {
	now := time.Now().UTC().Truncate(time.Millisecond)
	job := sampleJob("job-1", "sess-1", "campaign", now)
	p.Require().NoError(p.jobs.SaveJob(p.ctx, job))

	got, err := p.jobs.GetJob(p.ctx, "job-1")
	p.Require().NoError(err)
	p.Equal("sess-1", got.SessionID)
	p.Equal([]string{"+351900000000"}, got.Payload.TargetAudience.ManualContacts)
	p.Len(got.Calls, 2)
	p.True(got.CreatedAt.Equal(now))

	bySession, err := p.jobs.GetJobBySession(p.ctx, "sess-1")
	p.Require().NoError(err)
	p.Equal("job-1", bySession.ID)
}

func (p *PostgresStoreTestSuite) TestDuplicateSessionRejected() {
	now := time.Now()
	p.Require().NoError(p.jobs.SaveJob(p.ctx, sampleJob("job-1", "sess-1", "campaign", now)))
	err := p.jobs.SaveJob(p.ctx, sampleJob("job-2", "sess-1", "campaign", now))
	p.ErrorIs(err, corep.ErrDuplicateSession)

	_, err = p.jobs.GetJob(p.ctx, "job-2")
	p.ErrorIs(err, corep.ErrJobNotFound)
}

func (p *PostgresStoreTestSuite) TestUpdateJob() {
	job := sampleJob("job-1", "sess-1", "campaign", time.Now())
	p.Require().NoError(p.jobs.SaveJob(p.ctx, job))

	job.Calls[0].State = api.CallSucceeded
	job.ResultID = "entity-9"
	p.Require().NoError(p.jobs.UpdateJob(p.ctx, job))

	got, err := p.jobs.GetJob(p.ctx, "job-1")
	p.Require().NoError(err)
	p.Equal(api.CallSucceeded, got.Calls[0].State)
	p.Equal("entity-9", got.ResultID)

	missing := sampleJob("nope", "sess-x", "campaign", time.Now())
	p.ErrorIs(p.jobs.UpdateJob(p.ctx, missing), corep.ErrJobNotFound)
}

func (p *PostgresStoreTestSuite) TestListJobsOrderedAndFiltered() {
	base := time.Now()
	p.Require().NoError(p.jobs.SaveJob(p.ctx, sampleJob("b", "s2", "onboarding", base.Add(time.Second))))
	p.Require().NoError(p.jobs.SaveJob(p.ctx, sampleJob("a", "s1", "campaign", base)))
	p.Require().NoError(p.jobs.SaveJob(p.ctx, sampleJob("c", "s3", "campaign", base.Add(2*time.Second))))

	all, err := p.jobs.ListJobs(p.ctx, corep.JobFilter{})
	p.Require().NoError(err)
	p.Require().Len(all, 3)
	p.Equal([]string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})

	campaigns, err := p.jobs.ListJobs(p.ctx, corep.JobFilter{Flow: "campaign"})
	p.Require().NoError(err)
	p.Len(campaigns, 2)

	one, err := p.jobs.ListJobs(p.ctx, corep.JobFilter{SessionID: "s2"})
	p.Require().NoError(err)
	p.Require().Len(one, 1)
	p.Equal("b", one[0].ID)
}

func (p *PostgresStoreTestSuite) TestKV() {
	_, err := p.kv.Get(p.ctx, "achievements/owner-1")
	p.ErrorIs(err, corep.ErrKeyNotFound)

	p.Require().NoError(p.kv.Put(p.ctx, "achievements/owner-1", []byte("v1")))
	p.Require().NoError(p.kv.Put(p.ctx, "achievements/owner-1", []byte("v2")))

	v, err := p.kv.Get(p.ctx, "achievements/owner-1")
	p.Require().NoError(err)
	p.Equal([]byte("v2"), v)
}

func (p *PostgresStoreTestSuite) TestDuplicateIDIsNotDuplicateSession() {
	now := time.Now()
	p.Require().NoError(p.jobs.SaveJob(p.ctx, sampleJob("job-1", "sess-1", "campaign", now)))
	err := p.jobs.SaveJob(p.ctx, sampleJob("job-1", "sess-2", "campaign", now))
	p.Require().Error(err)
	p.NotErrorIs(err, corep.ErrDuplicateSession)
}
