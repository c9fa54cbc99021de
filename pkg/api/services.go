package api

import "context"

// UniquenessRegistryService answers whether a value is still free in the
// remote registry (trigger phrases, campaign names).
type UniquenessRegistryService interface {
	CheckAvailable(ctx context.Context, kind, value string) (Availability, error)
}

// Availability is the registry's answer for a single value.
type Availability struct {
	Available bool
}

// ContentGenerationService produces message text, image prompts and images.
type ContentGenerationService interface {
	GenerateText(ctx context.Context, params TextParams) (GeneratedText, error)
	GeneratePrompt(ctx context.Context, params ImageParams) (GeneratedPrompt, error)
	GenerateImage(ctx context.Context, prompt string) (GeneratedImage, error)
}

// GeneratedText is the raw response of ContentGenerationService.GenerateText.
type GeneratedText struct {
	Text    string `json:"text"`
	CTAText string `json:"ctaText"`
	CTAType string `json:"ctaType"`
}

// GeneratedPrompt is the raw response of ContentGenerationService.GeneratePrompt.
type GeneratedPrompt struct {
	Prompt string `json:"prompt"`
}

// GeneratedImage is the raw response of ContentGenerationService.GenerateImage.
type GeneratedImage struct {
	ImageURL string `json:"imageUrl"`
}

// EntityPersistenceService creates and schedules the entity built by a flow.
type EntityPersistenceService interface {
	CreateEntity(ctx context.Context, payload SubmissionPayload) (CreatedEntity, error)
	SubmitForApproval(ctx context.Context, id, category string) (CallStatus, error)
	ScheduleEntity(ctx context.Context, id, whenISO8601 string) (CallStatus, error)
}

// CreatedEntity is the response of EntityPersistenceService.CreateEntity.
type CreatedEntity struct {
	ID string `json:"id"`
}

// CallStatus is the free-form status string returned by approval and
// scheduling calls.
type CallStatus struct {
	Status string `json:"status"`
}

// AnalysisJobService reports the state of a long-running backend job.
type AnalysisJobService interface {
	GetJobStatus(ctx context.Context, jobID string) (JobStatus, error)
}

// JobStatus is the response of AnalysisJobService.GetJobStatus.
type JobStatus struct {
	Status PollStatus `json:"status"`
	Data   any        `json:"data,omitempty"`
}

// Enricher is the contract the step controller uses to run the enrichment
// pipeline. Implementations never fail: they resolve to generated content or
// to the deterministic fallback.
type Enricher interface {
	GenerateText(ctx context.Context, params TextParams) TextContent
	GenerateImage(ctx context.Context, params ImageParams) MediaResult
}
