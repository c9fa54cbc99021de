package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is every invalid setting found by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the accepted logging.level values.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the accepted logging.format values.
func ValidLogFormats() []string {
	return []string{"json", "text"}
}

// ValidCalls returns the accepted sim.fail_call values.
func ValidCalls() []string {
	return []string{"", "create_entity", "submit_for_approval", "schedule_entity"}
}

// Validate returns every invalid setting in c.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	positive := func(field string, v int) {
		if v <= 0 {
			errs = append(errs, ValidationError{Field: field, Value: v, Message: "must be positive"})
		}
	}

	if c.Uniqueness.DebounceMs < 0 {
		errs = append(errs, ValidationError{Field: "uniqueness.debounce_ms", Value: c.Uniqueness.DebounceMs, Message: "must be non-negative"})
	}
	positive("enrichment.stage_timeout_ms", c.Enrichment.StageTimeoutMs)
	positive("poller.interval_ms", c.Poller.IntervalMs)
	positive("poller.max_attempts", c.Poller.MaxAttempts)
	positive("submission.workers", c.Submission.Workers)
	positive("submission.queue_capacity", c.Submission.QueueCapacity)

	if strings.TrimSpace(c.Submission.ApprovalCategory) == "" {
		errs = append(errs, ValidationError{Field: "submission.approval_category", Value: c.Submission.ApprovalCategory, Message: "must not be empty"})
	}

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if !slices.Contains(ValidLogFormats(), strings.ToLower(c.Logging.Format)) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogFormats(), ", ")),
		})
	}

	if c.Generation.Enabled && c.Generation.APIKey == "" {
		errs = append(errs, ValidationError{Field: "generation.api_key", Value: "", Message: "required when generation is enabled"})
	}

	if c.Sim.JobProcessingPolls < 0 {
		errs = append(errs, ValidationError{Field: "sim.job_processing_polls", Value: c.Sim.JobProcessingPolls, Message: "must be non-negative"})
	}
	if !slices.Contains(ValidCalls(), c.Sim.FailCall) {
		errs = append(errs, ValidationError{Field: "sim.fail_call", Value: c.Sim.FailCall, Message: "unknown call"})
	}
	return errs
}
