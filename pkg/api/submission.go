package api

import "time"

// SubmissionPayload is the persisted-shape contract of a confirmed flow.
type SubmissionPayload struct {
	Name                 string             `json:"name"`
	Description          string             `json:"description"`
	TemplateID           string             `json:"templateId"`
	ScheduledDateISO8601 string             `json:"scheduledDateISO8601"`
	TargetAudience       TargetAudience     `json:"targetAudience"`
	TemplateParameters   TemplateParameters `json:"templateParameters"`
}

// TargetAudience selects who receives the message.
type TargetAudience struct {
	SelectionMethod string   `json:"selectionMethod"`
	ManualContacts  []string `json:"manualContacts"`
	OnlyWithConsent bool     `json:"onlyWithConsent"`
}

// TemplateParameters fill the message template.
type TemplateParameters struct {
	Message  string `json:"message"`
	CTA      string `json:"cta"`
	CTAType  string `json:"ctaType"`
	CTAValue string `json:"ctaValue"`
	UseImage bool   `json:"useImage"`
	ImageURL string `json:"imageUrl"`
	Language string `json:"language"`
}

// Clone returns a deep copy so a job snapshot shares nothing with the
// session it was taken from.
func (p SubmissionPayload) Clone() SubmissionPayload {
	out := p
	if p.TargetAudience.ManualContacts != nil {
		out.TargetAudience.ManualContacts = make([]string, len(p.TargetAudience.ManualContacts))
		copy(out.TargetAudience.ManualContacts, p.TargetAudience.ManualContacts)
	}
	return out
}

// CallName identifies a dependent background call of a submission job.
type CallName string

const (
	CallCreateEntity      CallName = "create_entity"
	CallSubmitForApproval CallName = "submit_for_approval"
	CallScheduleEntity    CallName = "schedule_entity"
)

// DefaultCalls is the campaign persistence plan:
// create entity, submit for downstream approval, schedule execution.
func DefaultCalls() []CallName {
	return []CallName{CallCreateEntity, CallSubmitForApproval, CallScheduleEntity}
}

// CallState is the per-call status inside a submission job.
type CallState string

const (
	CallPending   CallState = "pending"
	CallRunning   CallState = "running"
	CallSucceeded CallState = "succeeded"
	CallFailed    CallState = "failed"
	CallSkipped   CallState = "skipped"
)

// Terminal reports whether no further transition is expected.
func (s CallState) Terminal() bool {
	return s == CallSucceeded || s == CallFailed || s == CallSkipped
}

// CallResult is the status of one dependent call.
type CallResult struct {
	Name   CallName  `json:"name"`
	State  CallState `json:"state"`
	Detail string    `json:"detail,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// SubmissionJob is created once per session at confirmation time.
type SubmissionJob struct {
	ID        string            `json:"id"`
	SessionID string            `json:"sessionId"`
	Flow      string            `json:"flow"`
	Payload   SubmissionPayload `json:"payload"`
	Calls     []CallResult      `json:"calls"`
	ResultID  string            `json:"resultId,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Done reports whether every call reached a terminal state.
func (j *SubmissionJob) Done() bool {
	for _, c := range j.Calls {
		if !c.State.Terminal() {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of j.
func (j *SubmissionJob) Clone() *SubmissionJob {
	if j == nil {
		return nil
	}
	out := *j
	out.Payload = j.Payload.Clone()
	out.Calls = make([]CallResult, len(j.Calls))
	copy(out.Calls, j.Calls)
	return &out
}
