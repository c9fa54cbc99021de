package api

import (
	"context"
	"time"
)

// Phase represents the lifecycle state of a wizard session.
type Phase string

const (
	PhaseEditing            Phase = "EDITING"
	PhaseAwaitingEnrichment Phase = "AWAITING_ENRICHMENT"
	PhaseSubmitting         Phase = "SUBMITTING"
	PhaseCompleted          Phase = "COMPLETED"
)

// Frozen reports whether field mutation is rejected in this phase.
func (p Phase) Frozen() bool {
	return p == PhaseSubmitting || p == PhaseCompleted
}

// ValidatorFunc is the pure, synchronous validator of a single step.
// It returns nil when the values satisfy the step.
type ValidatorFunc func(values Values) *ValidationError

// FieldRule checks one field value. values is the full field map so rules
// can depend on sibling fields. It returns the empty ErrorCode on success.
type FieldRule func(value any, values Values) ErrorCode

// SkipFunc decides whether a step is excluded from the effective step list.
type SkipFunc func(values Values) bool

// EnrichFunc runs between a step and the next one. It receives a copy of the
// current values and returns the field updates to merge into the session.
//
// EnrichFunc must always return: the Enricher never fails, it falls back.
type EnrichFunc func(ctx context.Context, e Enricher, values Values) Values

// StepDefinition describes one step of a guided flow.
type StepDefinition struct {
	ID string

	// Index is the position of the step in the declared step list. It is
	// assigned when the flow is built and is independent of skip predicates.
	Index int

	// Fields are the required field keys for this step, in display order.
	// A field may belong to an earlier step; it is validated again here.
	Fields []string

	// Validate runs after the required/field-rule checks. Optional.
	Validate ValidatorFunc

	// Skip excludes the step from the effective step list when it returns true.
	Skip SkipFunc

	// Unique maps field keys to the registry kind they are checked against.
	// Every listed field must resolve to available before the step can be left.
	Unique map[string]string

	// Enrich, if set, runs before the next step is shown.
	Enrich EnrichFunc
}

// Skipped reports whether the step is skipped for the given values.
func (s StepDefinition) Skipped(values Values) bool {
	return s.Skip != nil && s.Skip(values)
}

// FlowDefinition describes a guided flow as an ordered step table plus the
// persistence plan executed after confirmation.
type FlowDefinition struct {
	Name  string
	Steps []StepDefinition

	// FieldRules are registered with the validator for every listed field.
	FieldRules map[string][]FieldRule

	// Calls is the ordered list of background calls for the submission job.
	// Empty means DefaultCalls.
	Calls []CallName

	// BuildPayload maps the confirmed values onto the submission payload.
	BuildPayload func(values Values) (SubmissionPayload, error)

	// Achievement, if non-empty, is unlocked once per owner on completion.
	Achievement string
}

// Step returns the definition with the given ID.
func (f FlowDefinition) Step(id string) (StepDefinition, bool) {
	for _, s := range f.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return StepDefinition{}, false
}

// EffectiveSteps returns the steps whose skip predicate is false, in order.
func (f FlowDefinition) EffectiveSteps(values Values) []StepDefinition {
	out := make([]StepDefinition, 0, len(f.Steps))
	for _, s := range f.Steps {
		if !s.Skipped(values) {
			out = append(out, s)
		}
	}
	return out
}

// PlannedCalls returns Calls, or DefaultCalls when none are configured.
func (f FlowDefinition) PlannedCalls() []CallName {
	if len(f.Calls) == 0 {
		return DefaultCalls()
	}
	out := make([]CallName, len(f.Calls))
	copy(out, f.Calls)
	return out
}

// FieldStatus is the local validation status of a single field.
type FieldStatus struct {
	Valid bool
	Code  ErrorCode
}

// SessionSnapshot is a read-only copy of a wizard session.
type SessionSnapshot struct {
	ID    string
	Flow  string
	Phase Phase

	// CurrentStep is the ID of the current step; Index is its position in
	// EffectiveSteps.
	CurrentStep    string
	Index          int
	EffectiveSteps []string

	Values     Values
	Validation map[string]FieldStatus
	Uniqueness map[string]UniquenessCheckState

	// Progress is (Index + 1) / len(EffectiveSteps).
	Progress float64

	JobID    string
	Notices  []Notice
	Unlocked []string

	CreatedAt time.Time
}
