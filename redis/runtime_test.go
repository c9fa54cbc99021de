package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/stepwise"
	"github.com/petrijr/stepwise/internal/sim"
	"github.com/petrijr/stepwise/pkg/api"
	"github.com/petrijr/stepwise/redis/internal/testutil"
)

func TestNewRuntime_DeliversQueuedSubmission(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: testutil.GetRedisAddress(t)})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	prefix := "stepwise:rt:" + t.Name() + ":"
	entities := sim.NewPersistence("")
	rt, err := NewRuntime(client, prefix, stepwise.Services{Persistence: entities}, stepwise.Config{})
	require.NoError(t, err)
	defer rt.Close()

	flow := stepwise.New("note").
		Step("text", "body").
		Step("review").
		Calls(stepwise.CallCreateEntity).
		Payload(func(v stepwise.Values) (stepwise.SubmissionPayload, error) {
			return stepwise.SubmissionPayload{Name: v.String("body")}, nil
		}).
		MustBuild()

	s, err := rt.NewSession(flow, "owner-1")
	require.NoError(t, err)
	require.NoError(t, s.Edit("body", "hello"))
	_, err = s.Next(ctx)
	require.NoError(t, err)
	snap, err := s.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, stepwise.PhaseCompleted, snap.Phase)

	require.NoError(t, rt.Runner.StartWorkers(ctx, 1))
	require.NoError(t, rt.Runner.Drain(ctx))

	job, err := rt.Job(ctx, snap.JobID)
	require.NoError(t, err)
	require.Equal(t, api.CallSucceeded, job.Calls[0].State)
	require.Len(t, entities.Entities(), 1)
}
