package api

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionFrozen is returned when a field edit arrives while the
	// session is Submitting or Completed.
	ErrSessionFrozen = errors.New("session is frozen")

	// ErrSessionClosed is returned by a controller after Close.
	ErrSessionClosed = errors.New("session is closed")

	// ErrAwaitingEnrichment is returned by forward navigation while the
	// enrichment pipeline has not resolved.
	ErrAwaitingEnrichment = errors.New("awaiting enrichment")

	// ErrNoPreviousStep is returned by Back on the first effective step or
	// once the session left the editing phases.
	ErrNoPreviousStep = errors.New("no previous step")

	// ErrUniquenessPending is returned when a unique field has not resolved yet.
	ErrUniquenessPending = errors.New("uniqueness check pending")

	// ErrNotFinalStep is returned by Confirm on any step but the last one.
	ErrNotFinalStep = errors.New("not on the final step")

	// ErrUnknownStep is returned when a step id is not registered.
	ErrUnknownStep = errors.New("unknown step")

	// ErrPollingExhausted is reported to observers when a poll run reaches
	// its attempt ceiling. Callers only ever see PollNotAvailable.
	ErrPollingExhausted = errors.New("polling attempts exhausted")
)

// ErrorCode identifies a field-level validation failure.
type ErrorCode string

const (
	CodeRequired      ErrorCode = "required"
	CodeTooShort      ErrorCode = "too_short"
	CodeTooLong       ErrorCode = "too_long"
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeInvalidOption ErrorCode = "invalid_option"
	CodeEmptyList     ErrorCode = "empty_list"
	CodeUnknownStep   ErrorCode = "unknown_step"
)

// ValidationError is a local, recoverable field-level error. It blocks
// forward navigation until the user corrects the input.
type ValidationError struct {
	Step  string
	Field string
	Code  ErrorCode
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("step %s: %s", e.Step, e.Code)
	}
	return fmt.Sprintf("step %s: field %s: %s", e.Step, e.Field, e.Code)
}

// UniquenessConflict blocks forward navigation until the field holds a value
// the registry reports as available.
type UniquenessConflict struct {
	Field  string
	Value  string
	Status CheckStatus
}

func (e *UniquenessConflict) Error() string {
	return fmt.Sprintf("field %s: value %q is %s", e.Field, e.Value, e.Status)
}

// EnrichmentFailure records a failed generation stage. It is always
// recovered by the fallback chain and only surfaced as a notice.
type EnrichmentFailure struct {
	Kind  EnrichmentKind
	Stage string
	Err   error
}

func (e *EnrichmentFailure) Error() string {
	return fmt.Sprintf("enrichment %s: stage %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *EnrichmentFailure) Unwrap() error { return e.Err }

// PersistenceFailure is raised by a background submission call. It never
// reverts a completed session.
type PersistenceFailure struct {
	JobID string
	Call  CallName
	Err   error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("submission %s: call %s: %v", e.JobID, e.Call, e.Err)
}

func (e *PersistenceFailure) Unwrap() error { return e.Err }
