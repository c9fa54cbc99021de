package flows

import (
	"context"
	"fmt"
	"regexp"

	"github.com/petrijr/stepwise/internal/validate"
	"github.com/petrijr/stepwise/pkg/api"
)

// CampaignFlow is the name of the campaign-creation flow.
const CampaignFlow = "campaign"

// Campaign field keys.
const (
	FieldName            = "name"
	FieldDescription     = "description"
	FieldType            = "type"
	FieldLanguage        = "language"
	FieldSelectionMethod = "selectionMethod"
	FieldManualContacts  = "manualContacts"
	FieldOnlyWithConsent = "onlyWithConsent"
	FieldObjective       = "objective"
	FieldMessage         = "message"
	FieldCTAText         = "ctaText"
	FieldCTAType         = "ctaType"
	FieldCTAValue        = "ctaValue"
	FieldUseImage        = "useImage"
	FieldImageURL        = "imageUrl"
	FieldSendOption      = "sendOption"
	FieldScheduledAt     = "scheduledAt"
)

// Option values.
const (
	SendNow   = "now"
	SendLater = "later"

	AudienceAll     = "all"
	AudienceManual  = "manual"
	AudienceConsent = "consent"

	CTAReply = "reply"
	CTAURL   = "url"
	CTAPhone = "phone"
)

var (
	campaignTypes = []string{"promotion", "event", "new_menu", "reengagement", "welcome"}
	languages     = []string{"en", "es", "pt"}
	urlPattern    = regexp.MustCompile(`^https?://\S+$`)
)

func sendLater(v api.Values) bool { return v.String(FieldSendOption) == SendLater }

func manualAudience(v api.Values) bool { return v.String(FieldSelectionMethod) == AudienceManual }

func ctaIs(t string) func(api.Values) bool {
	return func(v api.Values) bool { return v.String(FieldCTAType) == t }
}

// Campaign returns the campaign-creation flow:
//
//	details -> audience -> content [text] -> message [image] -> schedule
//	-> schedule_time (only when sending later) -> review
func Campaign() api.FlowDefinition {
	return api.FlowDefinition{
		Name: CampaignFlow,
		Steps: indexed(
			api.StepDefinition{
				ID:     "details",
				Fields: []string{FieldName, FieldType, FieldLanguage},
				Unique: map[string]string{FieldName: KindCampaignName},
			},
			api.StepDefinition{
				ID:       "audience",
				Fields:   []string{FieldSelectionMethod},
				Validate: validateAudience,
			},
			api.StepDefinition{
				ID:     "content",
				Fields: []string{FieldObjective},
				Enrich: enrichCampaignText,
			},
			api.StepDefinition{
				ID:       "message",
				Fields:   []string{FieldMessage},
				Validate: validateCTA,
				Enrich:   enrichCampaignImage,
			},
			api.StepDefinition{
				ID:     "schedule",
				Fields: []string{FieldSendOption},
			},
			api.StepDefinition{
				ID:     "schedule_time",
				Fields: []string{FieldScheduledAt},
				Skip:   func(v api.Values) bool { return !sendLater(v) },
			},
			api.StepDefinition{
				ID:       "review",
				Fields:   []string{FieldName, FieldMessage, FieldSendOption},
				Validate: validateReview,
			},
		),
		FieldRules: map[string][]api.FieldRule{
			FieldName:            {validate.MinLen(3), validate.MaxLen(80)},
			FieldDescription:     {validate.MaxLen(280)},
			FieldType:            {validate.OneOf(campaignTypes...)},
			FieldLanguage:        {validate.OneOf(languages...)},
			FieldSelectionMethod: {validate.OneOf(AudienceAll, AudienceManual, AudienceConsent)},
			FieldManualContacts:  {validate.When(manualAudience, validate.NonEmptyList())},
			FieldObjective:       {validate.MinLen(5), validate.MaxLen(300)},
			FieldMessage:         {validate.MaxLen(1024)},
			FieldCTAType:         {validate.OneOf(CTAReply, CTAURL, CTAPhone)},
			FieldCTAValue:        {validate.When(ctaIs(CTAURL), validate.Pattern(urlPattern))},
			FieldSendOption:      {validate.OneOf(SendNow, SendLater)},
			FieldScheduledAt:     {validate.RFC3339()},
		},
		Calls:        api.DefaultCalls(),
		BuildPayload: buildCampaignPayload,
		Achievement:  AchievementFirstCampaign,
	}
}

func validateAudience(v api.Values) *api.ValidationError {
	if manualAudience(v) && len(v.Strings(FieldManualContacts)) == 0 {
		return &api.ValidationError{Field: FieldManualContacts, Code: api.CodeEmptyList}
	}
	return nil
}

func validateCTA(v api.Values) *api.ValidationError {
	switch v.String(FieldCTAType) {
	case CTAURL, CTAPhone:
		if !v.Has(FieldCTAValue) {
			return &api.ValidationError{Field: FieldCTAValue, Code: api.CodeRequired}
		}
	}
	return nil
}

// validateReview catches a "later" send option without a date. The
// schedule_time step may have been skipped when the option changed.
func validateReview(v api.Values) *api.ValidationError {
	if sendLater(v) && !v.Has(FieldScheduledAt) {
		return &api.ValidationError{Field: FieldScheduledAt, Code: api.CodeRequired}
	}
	return validateCTA(v)
}

func enrichCampaignText(ctx context.Context, e api.Enricher, v api.Values) api.Values {
	out := e.GenerateText(ctx, api.TextParams{
		Type:      v.String(FieldType),
		Language:  v.String(FieldLanguage),
		Objective: v.String(FieldObjective),
	})
	return api.Values{
		FieldMessage: out.Text,
		FieldCTAText: out.CTAText,
		FieldCTAType: out.CTAType,
	}
}

func enrichCampaignImage(ctx context.Context, e api.Enricher, v api.Values) api.Values {
	if !v.Bool(FieldUseImage) {
		return nil
	}
	out := e.GenerateImage(ctx, api.ImageParams{
		Type:     v.String(FieldType),
		Text:     v.String(FieldMessage),
		Name:     v.String(FieldName),
		Language: v.String(FieldLanguage),
	})
	return api.Values{FieldImageURL: out.MediaRef}
}

// TemplateID names the message template for a campaign type and language.
func TemplateID(campaignType, language string) string {
	return fmt.Sprintf("marketing_%s_%s", campaignType, language)
}

func buildCampaignPayload(v api.Values) (api.SubmissionPayload, error) {
	p := api.SubmissionPayload{
		Name:        v.String(FieldName),
		Description: v.String(FieldDescription),
		TemplateID:  TemplateID(v.String(FieldType), v.String(FieldLanguage)),
		TargetAudience: api.TargetAudience{
			SelectionMethod: v.String(FieldSelectionMethod),
			OnlyWithConsent: v.Bool(FieldOnlyWithConsent) || v.String(FieldSelectionMethod) == AudienceConsent,
		},
		TemplateParameters: api.TemplateParameters{
			Message:  v.String(FieldMessage),
			CTA:      v.String(FieldCTAText),
			CTAType:  v.String(FieldCTAType),
			CTAValue: v.String(FieldCTAValue),
			UseImage: v.Bool(FieldUseImage),
			Language: v.String(FieldLanguage),
		},
	}
	if manualAudience(v) {
		p.TargetAudience.ManualContacts = append([]string(nil), v.Strings(FieldManualContacts)...)
	}
	if p.TemplateParameters.UseImage {
		p.TemplateParameters.ImageURL = v.String(FieldImageURL)
	}
	if sendLater(v) {
		p.ScheduledDateISO8601 = v.String(FieldScheduledAt)
		if p.ScheduledDateISO8601 == "" {
			return api.SubmissionPayload{}, fmt.Errorf("campaign %q: send later without a date", p.Name)
		}
	}
	return p, nil
}
