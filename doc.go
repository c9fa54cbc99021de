// Package stepwise provides step-gated guided flows ("wizards") for Go
// services.
//
// A session walks an ordered step table. The user can leave a step only
// after its fields validate; some fields must also be confirmed unique by a
// remote registry. Between steps the session can fetch generated content,
// and it always receives some: failed generation falls back to deterministic
// defaults. Confirming the final step completes the session without waiting
// for the network. The persistence calls run afterwards on a task queue and
// outlive the session.
//
// # Core Concepts
//
//  1. FlowDefinition
//  2. Session
//  3. Runtime
//  4. Runner
//
// # FlowDefinition
//
// A FlowDefinition is a list of steps plus a payload builder and the plan of
// background calls. Steps carry required fields, an optional validator, a
// skip predicate, uniqueness-checked fields and an optional enrichment.
// FlowBuilder builds one fluently:
//
//	flow := stepwise.New("feedback").
//	    Step("contact", "name").
//	    Unique("name", "contact_name").
//	    Step("review").
//	    Calls(stepwise.CallCreateEntity).
//	    Payload(buildFeedback).
//	    MustBuild()
//
// Flows returns the built-in campaign and onboarding flows.
//
// # Session
//
// A Session is the step controller of one user. Its phases are:
//
//   - EDITING: fields can change and the user can move between steps
//   - AWAITING_ENRICHMENT: generated content for the next step is pending
//   - SUBMITTING: the job is being recorded
//   - COMPLETED: the session is frozen
//
// Edit, Next, Back and Confirm drive it. Snapshot returns a copy of its
// state. Notices about fallbacks and background failures never block the
// flow.
//
// # Runtime
//
// A Runtime wires the job store, the task queue, the submission
// coordinator, the enrichment pipeline and the job poller together and
// creates sessions sharing them. NewInMemoryRuntime keeps everything in
// memory; NewSQLiteRuntime keeps jobs, achievements and queued tasks in an
// SQLite database so a restarted process delivers what the previous one
// queued.
//
// # Runner
//
// A Runner runs worker goroutines over the task queue:
//
//	rt, _ := stepwise.NewInMemoryRuntime(services, stepwise.Config{})
//	_ = rt.Runner.StartWorkers(ctx, 2)
//	defer rt.Close()
//
// Each submission task runs the planned calls in order. A failed call marks
// the calls depending on it skipped; none of them is retried.
//
// # Polling
//
// Runtime.Poll waits for an asynchronous backend job with a bounded number
// of fetches. Running out of attempts yields not_available, never an
// endless wait.
//
//	res, err := rt.Poll(ctx, jobID, stepwise.Polling(12).Every(5*time.Second).Policy())
package stepwise
