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

func (m *MongoDBStoreTestSuite) TestSaveAndGetJob() {
	now := time.Now().UTC().Truncate(time.Millisecond)
	job := sampleJob("job-1", "sess-1", "campaign", now)
	m.Require().NoError(m.jobs.SaveJob(m.ctx, job))

	got, err := m.jobs.GetJob(m.ctx, "job-1")
	m.Require().NoError(err)
	m.Equal("sess-1", got.SessionID)
	m.Equal([]string{"+351900000000"}, got.Payload.TargetAudience.ManualContacts)
	m.Len(got.Calls, 2)
	m.True(got.CreatedAt.Equal(now))

	bySession, err := m.jobs.GetJobBySession(m.ctx, "sess-1")
	m.Require().NoError(err)
	m.Equal("job-1", bySession.ID)
}

func (m *MongoDBStoreTestSuite) TestDuplicateSessionRejected() {
	now := time.Now()
	m.Require().NoError(m.jobs.SaveJob(m.ctx, sampleJob("job-1", "sess-1", "campaign", now)))
	err := m.jobs.SaveJob(m.ctx, sampleJob("job-2", "sess-1", "campaign", now))
	m.ErrorIs(err, corep.ErrDuplicateSession)

	_, err = m.jobs.GetJob(m.ctx, "job-2")
	m.ErrorIs(err, corep.ErrJobNotFound)
}

func (m *MongoDBStoreTestSuite) TestUpdateJob() {
	job := sampleJob("job-1", "sess-1", "campaign", time.Now())
	m.Require().NoError(m.jobs.SaveJob(m.ctx, job))

	job.Calls[0].State = api.CallSucceeded
	job.ResultID = "entity-9"
	m.Require().NoError(m.jobs.UpdateJob(m.ctx, job))

	got, err := m.jobs.GetJob(m.ctx, "job-1")
	m.Require().NoError(err)
	m.Equal(api.CallSucceeded, got.Calls[0].State)
	m.Equal("entity-9", got.ResultID)

	missing := sampleJob("nope", "sess-x", "campaign", time.Now())
	m.ErrorIs(m.jobs.UpdateJob(m.ctx, missing), corep.ErrJobNotFound)
}

func (m *MongoDBStoreTestSuite) TestListJobsOrderedAndFiltered() {
	base := time.Now()
	m.Require().NoError(m.jobs.SaveJob(m.ctx, sampleJob("b", "s2", "onboarding", base.Add(time.Second))))
	m.Require().NoError(m.jobs.SaveJob(m.ctx, sampleJob("a", "s1", "campaign", base)))
	m.Require().NoError(m.jobs.SaveJob(m.ctx, sampleJob("c", "s3", "campaign", base.Add(2*time.Second))))

	all, err := m.jobs.ListJobs(m.ctx, corep.JobFilter{})
	m.Require().NoError(err)
	m.Require().Len(all, 3)
	m.Equal([]string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})

	campaigns, err := m.jobs.ListJobs(m.ctx, corep.JobFilter{Flow: "campaign"})
	m.Require().NoError(err)
	m.Len(campaigns, 2)

	one, err := m.jobs.ListJobs(m.ctx, corep.JobFilter{SessionID: "s2"})
	m.Require().NoError(err)
	m.Require().Len(one, 1)
	m.Equal("b", one[0].ID)
}

func (m *MongoDBStoreTestSuite) TestKV() {
	_, err := m.kv.Get(m.ctx, "achievements/owner-1")
	m.ErrorIs(err, corep.ErrKeyNotFound)

	m.Require().NoError(m.kv.Put(m.ctx, "achievements/owner-1", []byte("v1")))
	m.Require().NoError(m.kv.Put(m.ctx, "achievements/owner-1", []byte("v2")))

	v, err := m.kv.Get(m.ctx, "achievements/owner-1")
	m.Require().NoError(err)
	m.Equal([]byte("v2"), v)
}

func (m *MongoDBStoreTestSuite) TestCallStatesMirrorCalls() {
	job := sampleJob("job-1", "sess-1", "campaign", time.Now())
	m.Require().NoError(m.jobs.SaveJob(m.ctx, job))
	job.Calls[0].State = api.CallFailed
	job.Calls[1].State = api.CallSkipped
	m.Require().NoError(m.jobs.UpdateJob(m.ctx, job))

	var doc mongoJobDoc
	m.Require().NoError(m.jobs.coll.FindOne(m.ctx, map[string]any{"_id": "job-1"}).Decode(&doc))
	m.Equal(map[string]string{
		string(api.CallCreateEntity):      string(api.CallFailed),
		string(api.CallSubmitForApproval): string(api.CallSkipped),
	}, doc.CallStates)
}
