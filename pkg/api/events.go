package api

import "time"

// NoticeKind classifies a non-blocking notice.
type NoticeKind string

const (
	NoticeEnrichmentFallback NoticeKind = "enrichment.fallback"
	NoticePersistenceFailure NoticeKind = "persistence.failure"
	NoticeSubmissionQueued   NoticeKind = "submission.queued"
	NoticeAchievement        NoticeKind = "achievement.unlocked"

	// NoticeStepReopened reports that a step edited while awaiting
	// enrichment no longer validates; the session stays on it.
	NoticeStepReopened NoticeKind = "step.reopened"
)

// Notice is an informational message for the view layer. Notices never
// block the flow.
type Notice struct {
	Kind      NoticeKind
	SessionID string
	At        time.Time

	// Small, human-oriented detail (step id, call name, error string).
	Message string
	Err     error
}

// Transition describes a state change of the step controller.
type Transition struct {
	SessionID string
	Flow      string
	FromPhase Phase
	ToPhase   Phase
	FromStep  string
	ToStep    string
}
