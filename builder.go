package stepwise

import (
	"context"
	"errors"
	"fmt"

	"github.com/petrijr/stepwise/pkg/api"
)

// FlowBuilder provides a fluent API for defining flows:
//
//	flow := stepwise.New("feedback").
//	    Step("contact", "email").
//	    Rules("email", validate.Pattern(emailRE)).
//	    Step("message", "text").
//	    EnrichWith(suggestReply).
//	    Step("review").
//	    Payload(buildFeedback).
//	    MustBuild()
//
// Modifiers such as Unique, SkipWhen and EnrichWith apply to the most
// recently added step.
type FlowBuilder struct {
	def api.FlowDefinition
}

// New creates a new flow builder with the given name.
func New(name string) *FlowBuilder {
	return &FlowBuilder{
		def: api.FlowDefinition{
			Name:       name,
			FieldRules: make(map[string][]api.FieldRule),
		},
	}
}

// Name returns the flow name.
func (b *FlowBuilder) Name() string {
	return b.def.Name
}

// Step appends a step requiring fields.
func (b *FlowBuilder) Step(id string, fields ...string) *FlowBuilder {
	if id == "" {
		panic("stepwise: step id must not be empty")
	}
	b.def.Steps = append(b.def.Steps, api.StepDefinition{
		ID:     id,
		Index:  len(b.def.Steps),
		Fields: append([]string(nil), fields...),
	})
	return b
}

func (b *FlowBuilder) last(modifier string) *api.StepDefinition {
	if len(b.def.Steps) == 0 {
		panic(fmt.Sprintf("stepwise: %s called before any Step", modifier))
	}
	return &b.def.Steps[len(b.def.Steps)-1]
}

// Validate sets the step validator of the last step.
func (b *FlowBuilder) Validate(fn api.ValidatorFunc) *FlowBuilder {
	b.last("Validate").Validate = fn
	return b
}

// SkipWhen excludes the last step while pred holds.
func (b *FlowBuilder) SkipWhen(pred api.SkipFunc) *FlowBuilder {
	b.last("SkipWhen").Skip = pred
	return b
}

// Unique requires field of the last step to be available in the registry
// under kind.
func (b *FlowBuilder) Unique(field, kind string) *FlowBuilder {
	s := b.last("Unique")
	if s.Unique == nil {
		s.Unique = make(map[string]string)
	}
	s.Unique[field] = kind
	return b
}

// EnrichWith runs fn after the last step, before the next one is shown.
func (b *FlowBuilder) EnrichWith(fn api.EnrichFunc) *FlowBuilder {
	if fn == nil {
		panic(fmt.Sprintf("stepwise: step %q has nil enrichment", b.last("EnrichWith").ID))
	}
	b.last("EnrichWith").Enrich = fn
	return b
}

// Rules adds field rules for field. Rules apply wherever a step lists it.
func (b *FlowBuilder) Rules(field string, rules ...api.FieldRule) *FlowBuilder {
	b.def.FieldRules[field] = append(b.def.FieldRules[field], rules...)
	return b
}

// Calls sets the background calls run after confirmation.
func (b *FlowBuilder) Calls(calls ...api.CallName) *FlowBuilder {
	b.def.Calls = append([]api.CallName(nil), calls...)
	return b
}

// Payload sets the payload builder.
func (b *FlowBuilder) Payload(fn func(api.Values) (api.SubmissionPayload, error)) *FlowBuilder {
	b.def.BuildPayload = fn
	return b
}

// Achievement unlocks id on the first completion per owner.
func (b *FlowBuilder) Achievement(id string) *FlowBuilder {
	b.def.Achievement = id
	return b
}

// Build checks and returns the flow definition.
func (b *FlowBuilder) Build() (FlowDefinition, error) {
	if b.def.Name == "" {
		return FlowDefinition{}, errors.New("stepwise: flow name must not be empty")
	}
	if len(b.def.Steps) == 0 {
		return FlowDefinition{}, fmt.Errorf("stepwise: flow %q has no steps", b.def.Name)
	}
	if b.def.BuildPayload == nil {
		return FlowDefinition{}, fmt.Errorf("stepwise: flow %q has no payload builder", b.def.Name)
	}
	seen := make(map[string]bool, len(b.def.Steps))
	for _, s := range b.def.Steps {
		if seen[s.ID] {
			return FlowDefinition{}, fmt.Errorf("stepwise: flow %q: duplicate step %q", b.def.Name, s.ID)
		}
		seen[s.ID] = true
	}
	if b.def.Steps[len(b.def.Steps)-1].Skip != nil {
		return FlowDefinition{}, fmt.Errorf("stepwise: flow %q: the final step cannot be skipped", b.def.Name)
	}
	if b.def.Steps[0].Skip != nil {
		return FlowDefinition{}, fmt.Errorf("stepwise: flow %q: the first step cannot be skipped", b.def.Name)
	}

	out := b.def
	out.Steps = append([]api.StepDefinition(nil), b.def.Steps...)
	return out, nil
}

// MustBuild is like Build but panics on error.
// Useful for package-level flow variables.
func (b *FlowBuilder) MustBuild() FlowDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// TextEnrichment returns an EnrichFunc that generates text from the
// objective field and stores it in target.
func TextEnrichment(campaignType, languageField, objectiveField, target string) api.EnrichFunc {
	return func(ctx context.Context, e api.Enricher, v api.Values) api.Values {
		out := e.GenerateText(ctx, api.TextParams{
			Type:      campaignType,
			Language:  v.String(languageField),
			Objective: v.String(objectiveField),
		})
		return api.Values{target: out.Text}
	}
}
