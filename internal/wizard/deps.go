package wizard

import (
	"context"

	"github.com/petrijr/stepwise/pkg/api"
)

// Validator is the synchronous step validator. *validate.Registry
// implements it.
type Validator interface {
	FirstError(stepID string, values api.Values) *api.ValidationError
	FieldStatuses(values api.Values) map[string]api.FieldStatus
}

// UniquenessChecker is the debounced remote checker. *uniqueness.Checker
// implements it.
type UniquenessChecker interface {
	Track(field, kind string)
	Edit(field, value string) error
	Status(field string) api.UniquenessCheckState
	States() map[string]api.UniquenessCheckState
	Reset()
	Close()
}

// Submitter runs Phase 1 of a submission and reports Phase 2 notices.
// *submission.Coordinator implements it.
type Submitter interface {
	Submit(ctx context.Context, sessionID, flow string, calls []api.CallName, payload api.SubmissionPayload) (*api.SubmissionJob, bool, error)
	Watch(sessionID string, fn func(api.Notice)) (cancel func())
}

// Achievements records which achievements an owner has already seen.
// *achievements.Tracker implements it.
type Achievements interface {
	Seen(ctx context.Context, owner, id string) (bool, error)
	MarkSeen(ctx context.Context, owner, id string) error
}

// Deps are the collaborators of a Controller.
//
// The Controller owns Checker: Close and Restart close or reset it, so a
// checker must not be shared between controllers. Validator is built from
// the flow when nil. Checker may be nil only for flows without unique
// fields; Achievements is optional.
type Deps struct {
	Validator    Validator
	Checker      UniquenessChecker
	Enricher     api.Enricher
	Submitter    Submitter
	Achievements Achievements
}
