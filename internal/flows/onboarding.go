package flows

import (
	"context"

	"github.com/petrijr/stepwise/internal/validate"
	"github.com/petrijr/stepwise/pkg/api"
)

// OnboardingFlow is the name of the restaurant onboarding flow.
const OnboardingFlow = "onboarding"

// Onboarding field keys. Language is shared with the campaign flow.
const (
	FieldRestaurantName   = "restaurantName"
	FieldTriggerPhrase    = "triggerPhrase"
	FieldWelcomeObjective = "welcomeObjective"
	FieldWelcomeMessage   = "welcomeMessage"
)

// Onboarding returns the onboarding flow:
//
//	restaurant -> trigger (unique phrase) -> welcome [text] -> confirm
func Onboarding() api.FlowDefinition {
	return api.FlowDefinition{
		Name: OnboardingFlow,
		Steps: indexed(
			api.StepDefinition{
				ID:     "restaurant",
				Fields: []string{FieldRestaurantName, FieldLanguage},
			},
			api.StepDefinition{
				ID:     "trigger",
				Fields: []string{FieldTriggerPhrase},
				Unique: map[string]string{FieldTriggerPhrase: KindTriggerPhrase},
			},
			api.StepDefinition{
				ID:     "welcome",
				Fields: []string{FieldWelcomeObjective},
				Enrich: enrichWelcome,
			},
			api.StepDefinition{
				ID:     "confirm",
				Fields: []string{FieldWelcomeMessage},
			},
		),
		FieldRules: map[string][]api.FieldRule{
			FieldRestaurantName:   {validate.MinLen(2), validate.MaxLen(80)},
			FieldLanguage:         {validate.OneOf(languages...)},
			FieldTriggerPhrase:    {validate.MinLen(3), validate.MaxLen(60)},
			FieldWelcomeObjective: {validate.MaxLen(300)},
			FieldWelcomeMessage:   {validate.MaxLen(1024)},
		},
		Calls:        []api.CallName{api.CallCreateEntity},
		BuildPayload: buildOnboardingPayload,
		Achievement:  AchievementFirstBot,
	}
}

func enrichWelcome(ctx context.Context, e api.Enricher, v api.Values) api.Values {
	out := e.GenerateText(ctx, api.TextParams{
		Type:      "welcome",
		Language:  v.String(FieldLanguage),
		Objective: v.String(FieldWelcomeObjective),
	})
	return api.Values{
		FieldWelcomeMessage: out.Text,
		FieldCTAText:        out.CTAText,
		FieldCTAType:        out.CTAType,
	}
}

func buildOnboardingPayload(v api.Values) (api.SubmissionPayload, error) {
	return api.SubmissionPayload{
		Name:        v.String(FieldRestaurantName),
		Description: v.String(FieldTriggerPhrase),
		TemplateID:  TemplateID("welcome", v.String(FieldLanguage)),
		TargetAudience: api.TargetAudience{
			SelectionMethod: AudienceAll,
			OnlyWithConsent: true,
		},
		TemplateParameters: api.TemplateParameters{
			Message:  v.String(FieldWelcomeMessage),
			CTA:      v.String(FieldCTAText),
			CTAType:  v.String(FieldCTAType),
			Language: v.String(FieldLanguage),
		},
	}, nil
}
