package stepwise

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/petrijr/stepwise/internal/flows"
	"github.com/petrijr/stepwise/internal/sim"
	"github.com/petrijr/stepwise/pkg/api"
)

func fastConfig() Config {
	return Config{
		Debounce:   time.Millisecond,
		PollPolicy: Polling(5).Every(time.Millisecond).Policy(),
	}
}

// completeOnboarding drives an onboarding session to completion.
func completeOnboarding(t *testing.T, s *Session, phrase string) SessionSnapshot {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.Edit(flows.FieldRestaurantName, "Luigi's"))
	require.NoError(t, s.Edit(flows.FieldLanguage, "en"))
	_, err := s.Next(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Edit(flows.FieldTriggerPhrase, phrase))
	require.Eventually(t, func() bool { return s.CanAdvance() == nil }, 2*time.Second, 2*time.Millisecond)
	_, err = s.Next(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Edit(flows.FieldWelcomeObjective, "Welcome new guests"))
	_, err = s.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, s.WaitIdle(ctx))

	snap, err := s.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, PhaseCompleted, snap.Phase)
	return snap
}

func TestInMemoryRuntime_SubmitsInBackground(t *testing.T) {
	entities := sim.NewPersistence("")
	rt, err := NewInMemoryRuntime(Services{
		Registry:    sim.NewRegistry("Hello Pizzeria"),
		Persistence: entities,
		Jobs:        sim.NewJobs(1),
	}, fastConfig())
	require.NoError(t, err)
	defer rt.Close()

	onboarding, ok := Flow(flows.OnboardingFlow)
	require.True(t, ok)
	s, err := rt.NewSession(onboarding, "owner-1")
	require.NoError(t, err)

	snap := completeOnboarding(t, s, "Hello Luigi")
	s.Close()

	// The session is gone but the queued task still runs.
	ctx := context.Background()
	require.NoError(t, rt.Runner.StartWorkers(ctx, 2))
	dctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, rt.Runner.Drain(dctx))

	job, err := rt.Job(ctx, snap.JobID)
	require.NoError(t, err)
	require.True(t, job.Done())
	require.Equal(t, api.CallSucceeded, job.Calls[0].State)
	require.Len(t, entities.Entities(), 1)

	jobs, err := rt.Jobs(ctx, snap.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	// Fallback welcome text is used when no content service is configured.
	require.NotEmpty(t, job.Payload.TemplateParameters.Message)
	var fallback bool
	for _, n := range snap.Notices {
		fallback = fallback || n.Kind == api.NoticeEnrichmentFallback
	}
	require.True(t, fallback)

	seen, err := rt.Achievements.Seen(ctx, "owner-1", flows.AchievementFirstBot)
	require.NoError(t, err)
	require.True(t, seen)
}

func TestRuntime_Poll(t *testing.T) {
	rt, err := NewInMemoryRuntime(Services{Persistence: sim.NewPersistence(""), Jobs: sim.NewJobs(2)}, fastConfig())
	require.NoError(t, err)
	defer rt.Close()

	res, err := rt.Poll(context.Background(), "analysis-1", PollPolicy{})
	require.NoError(t, err)
	require.Equal(t, api.PollCompleted, res.Status)
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, 5, res.MaxAttempts)
}

func TestRuntime_Errors(t *testing.T) {
	_, err := NewInMemoryRuntime(Services{}, Config{})
	require.Error(t, err, "entity persistence is required")

	rt, err := NewInMemoryRuntime(Services{Persistence: sim.NewPersistence("")}, Config{})
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.NewSession(flows.Onboarding(), "")
	require.Error(t, err, "onboarding needs a uniqueness registry")

	_, err = rt.Poll(context.Background(), "x", PollPolicy{})
	require.Error(t, err)
}

// TestSQLiteRuntime_DurableAcrossRestart confirms a session in one process
// and delivers its submission from the next one.
func TestSQLiteRuntime_DurableAcrossRestart(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dsn := "file:" + filepath.Join(t.TempDir(), "stepwise.db") + "?_pragma=busy_timeout(5000)"

	// --- Phase 1: confirm, no workers.

	db1, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	rt1, err := NewSQLiteRuntime(db1, Services{
		Registry:    sim.NewRegistry(),
		Persistence: sim.NewPersistence(""),
	}, fastConfig())
	require.NoError(t, err)

	s, err := rt1.NewSession(flows.Onboarding(), "owner-1")
	require.NoError(t, err)
	snap := completeOnboarding(t, s, "Ciao Luigi")
	s.Close()

	job, err := rt1.Job(ctx, snap.JobID)
	require.NoError(t, err)
	require.Equal(t, api.CallPending, job.Calls[0].State)

	rt1.Close()
	require.NoError(t, db1.Close())

	// --- Phase 2: a new process delivers the queued task.

	db2, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db2.Close()

	entities := sim.NewPersistence("")
	rt2, err := NewSQLiteRuntime(db2, Services{Persistence: entities}, fastConfig())
	require.NoError(t, err)
	defer rt2.Close()

	require.NoError(t, rt2.Runner.StartWorkers(ctx, 1))
	require.NoError(t, rt2.Runner.Drain(ctx))

	job, err = rt2.Job(ctx, snap.JobID)
	require.NoError(t, err)
	require.True(t, job.Done())
	require.Equal(t, api.CallSucceeded, job.Calls[0].State)
	require.Len(t, entities.Entities(), 1)
	require.Equal(t, "Luigi's", entities.Entities()[0].Payload.Name)

	seen, err := rt2.Achievements.Seen(ctx, "owner-1", flows.AchievementFirstBot)
	require.NoError(t, err)
	require.True(t, seen, "achievements survive the restart")
}
