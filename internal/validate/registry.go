// Package validate implements the field validator registry: pure,
// synchronous rule evaluation per step. Nothing in this package performs I/O
// or reads the clock.
package validate

import (
	"fmt"
	"sort"
	"sync"

	"github.com/petrijr/stepwise/pkg/api"
)

// Registry holds field rules and step definitions.
//
// Field rules are keyed by field and evaluated wherever a step lists the
// field, so a field owned by a skipped step is still checked when a later
// step references it. Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	fields map[string][]api.FieldRule
	steps  map[string]api.StepDefinition
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		fields: make(map[string][]api.FieldRule),
		steps:  make(map[string]api.StepDefinition),
	}
}

// RegisterField appends rules for key.
func (r *Registry) RegisterField(key string, rules ...api.FieldRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields[key] = append(r.fields[key], rules...)
}

// RegisterStep stores def under def.ID.
func (r *Registry) RegisterStep(def api.StepDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("validate: step id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.steps[def.ID]; exists {
		return fmt.Errorf("validate: step %q already registered", def.ID)
	}
	r.steps[def.ID] = def
	// Fields without rules still show up in FieldStatuses.
	for _, f := range def.Fields {
		if _, ok := r.fields[f]; !ok {
			r.fields[f] = nil
		}
	}
	return nil
}

// IsStepValid reports whether values satisfy every rule of stepID.
func (r *Registry) IsStepValid(stepID string, values api.Values) bool {
	return r.FirstError(stepID, values) == nil
}

// FirstError returns the first failure for stepID, or nil.
//
// Evaluation order: presence of each required field in declared order, then
// each field's rules, then the step validator.
func (r *Registry) FirstError(stepID string, values api.Values) *api.ValidationError {
	r.mu.RLock()
	def, ok := r.steps[stepID]
	r.mu.RUnlock()
	if !ok {
		return &api.ValidationError{Step: stepID, Code: api.CodeUnknownStep}
	}

	for _, f := range def.Fields {
		if !values.Has(f) {
			return &api.ValidationError{Step: stepID, Field: f, Code: api.CodeRequired}
		}
	}

	for _, f := range def.Fields {
		if code := r.checkField(f, values); code != "" {
			return &api.ValidationError{Step: stepID, Field: f, Code: code}
		}
	}

	if def.Validate != nil {
		if verr := def.Validate(values); verr != nil {
			if verr.Step == "" {
				verr.Step = stepID
			}
			return verr
		}
	}
	return nil
}

// FieldStatuses evaluates the rules of every known field.
// Missing values are reported without a code; requiredness is a step concern.
func (r *Registry) FieldStatuses(values api.Values) map[string]api.FieldStatus {
	r.mu.RLock()
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)

	out := make(map[string]api.FieldStatus, len(keys))
	for _, k := range keys {
		if !values.Has(k) {
			out[k] = api.FieldStatus{Valid: false}
			continue
		}
		code := r.checkField(k, values)
		out[k] = api.FieldStatus{Valid: code == "", Code: code}
	}
	return out
}

func (r *Registry) checkField(key string, values api.Values) api.ErrorCode {
	r.mu.RLock()
	rules := r.fields[key]
	r.mu.RUnlock()

	for _, rule := range rules {
		if code := rule(values[key], values); code != "" {
			return code
		}
	}
	return ""
}

// ForFlow builds a Registry holding flow's field rules and steps.
func ForFlow(flow api.FlowDefinition) (*Registry, error) {
	r := NewRegistry()
	keys := make([]string, 0, len(flow.FieldRules))
	for k := range flow.FieldRules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.RegisterField(k, flow.FieldRules[k]...)
	}
	for _, s := range flow.Steps {
		if err := r.RegisterStep(s); err != nil {
			return nil, fmt.Errorf("flow %s: %w", flow.Name, err)
		}
	}
	return r, nil
}
