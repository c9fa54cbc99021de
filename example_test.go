package stepwise_test

import (
	"context"
	"fmt"
	"time"

	"github.com/petrijr/stepwise"
	"github.com/petrijr/stepwise/internal/sim"
	"github.com/petrijr/stepwise/internal/validate"
)

// Example_customFlow builds a two-step flow, completes it and lets a
// Runner deliver the background call.
func Example_customFlow() {
	flow := stepwise.New("feedback").
		Step("contact", "name").
		Rules("name", validate.MinLen(2)).
		Step("review").
		Calls(stepwise.CallCreateEntity).
		Payload(func(v stepwise.Values) (stepwise.SubmissionPayload, error) {
			return stepwise.SubmissionPayload{Name: v.String("name")}, nil
		}).
		MustBuild()

	entities := sim.NewPersistence("")
	rt, err := stepwise.NewInMemoryRuntime(stepwise.Services{Persistence: entities}, stepwise.Config{})
	if err != nil {
		fmt.Println("runtime:", err)
		return
	}
	defer rt.Close()

	ctx := context.Background()
	s, err := rt.NewSession(flow, "owner-1")
	if err != nil {
		fmt.Println("session:", err)
		return
	}

	_ = s.Edit("name", "A")
	if _, err := s.Next(ctx); err != nil {
		fmt.Println("blocked:", err)
	}

	_ = s.Edit("name", "Ada")
	snap, _ := s.Next(ctx)
	fmt.Println("step:", snap.CurrentStep, snap.Progress)

	snap, _ = s.Next(ctx)
	fmt.Println("phase:", snap.Phase)

	_ = rt.Runner.StartWorkers(ctx, 1)
	dctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_ = rt.Runner.Drain(dctx)

	job, _ := rt.Job(ctx, snap.JobID)
	for _, c := range job.Calls {
		fmt.Println(c.Name+":", c.State)
	}
	fmt.Println("entities:", len(entities.Entities()))

	// Output:
	// blocked: step contact: field name: too_short
	// step: review 1
	// phase: COMPLETED
	// create_entity: succeeded
	// entities: 1
}
