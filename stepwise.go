package stepwise

import (
	"github.com/petrijr/stepwise/internal/flows"
	"github.com/petrijr/stepwise/internal/taskqueue"
	"github.com/petrijr/stepwise/internal/wizard"
	"github.com/petrijr/stepwise/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Phase              = api.Phase
	Values             = api.Values
	FlowDefinition     = api.FlowDefinition
	StepDefinition     = api.StepDefinition
	FieldRule          = api.FieldRule
	SessionSnapshot    = api.SessionSnapshot
	SubmissionJob      = api.SubmissionJob
	SubmissionPayload  = api.SubmissionPayload
	CallName           = api.CallName
	PollPolicy         = api.PollPolicy
	PollableResource   = api.PollableResource
	Notice             = api.Notice
	Transition         = api.Transition
	Observer           = api.Observer
	LoggingObserver    = api.LoggingObserver
	BasicMetrics       = api.BasicMetrics
	CompositeObserver  = api.CompositeObserver
	NoopObserver       = api.NoopObserver
	ValidationError    = api.ValidationError
	UniquenessConflict = api.UniquenessConflict
	PersistenceFailure = api.PersistenceFailure

	// Queue holds background tasks. Durable queues outlive the process.
	Queue = taskqueue.Queue
	Task  = taskqueue.Task

	// Session is the step controller driving one wizard session.
	Session = wizard.Controller
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export phase values for convenience.

const (
	PhaseEditing            = api.PhaseEditing
	PhaseAwaitingEnrichment = api.PhaseAwaitingEnrichment
	PhaseSubmitting         = api.PhaseSubmitting
	PhaseCompleted          = api.PhaseCompleted
)

// Background calls of a submission job.

const (
	CallCreateEntity      = api.CallCreateEntity
	CallSubmitForApproval = api.CallSubmitForApproval
	CallScheduleEntity    = api.CallScheduleEntity
)

// Flows returns the built-in flows.
func Flows() []FlowDefinition {
	return flows.All()
}

// Flow returns the built-in flow called name.
func Flow(name string) (FlowDefinition, bool) {
	return flows.ByName(name)
}
