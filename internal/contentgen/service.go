// Package contentgen implements api.ContentGenerationService on top of a
// langchaingo language model, plus an HTTP image endpoint.
package contentgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/petrijr/stepwise/pkg/api"
)

// ErrNoImageClient is returned by GenerateImage when no endpoint is configured.
var ErrNoImageClient = errors.New("contentgen: no image endpoint configured")

// Option configures a Service.
type Option func(*Service)

// WithTemperature sets the sampling temperature passed to the model.
func WithTemperature(t float64) Option {
	return func(s *Service) { s.temperature = t }
}

// WithMaxTokens caps the model response length.
func WithMaxTokens(n int) Option {
	return func(s *Service) { s.maxTokens = n }
}

// Service generates text and image prompts with a language model and
// images through an ImageClient.
type Service struct {
	model       llms.Model
	images      *ImageClient
	temperature float64
	maxTokens   int
}

var _ api.ContentGenerationService = (*Service)(nil)

// New creates a Service. images may be nil, in which case every image
// request fails and the caller falls back.
func New(model llms.Model, images *ImageClient, opts ...Option) *Service {
	s := &Service{model: model, images: images, temperature: 0.7, maxTokens: 512}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) callOptions() []llms.CallOption {
	return []llms.CallOption{
		llms.WithTemperature(s.temperature),
		llms.WithMaxTokens(s.maxTokens),
		llms.WithJSONMode(),
	}
}

// complete sends prompt as a single human message and returns the first
// choice.
func (s *Service) complete(ctx context.Context, prompt string) (string, error) {
	messages := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}
	resp, err := s.model.GenerateContent(ctx, messages, s.callOptions()...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// GenerateText asks the model for a short marketing message with a call to
// action.
func (s *Service) GenerateText(ctx context.Context, p api.TextParams) (api.GeneratedText, error) {
	raw, err := s.complete(ctx, textPrompt(p))
	if err != nil {
		return api.GeneratedText{}, fmt.Errorf("generate text: %w", err)
	}
	var out api.GeneratedText
	if err := decodeJSON(raw, &out); err != nil {
		return api.GeneratedText{}, fmt.Errorf("generate text: %w", err)
	}
	return out, nil
}

// GeneratePrompt asks the model for an image-generation prompt.
func (s *Service) GeneratePrompt(ctx context.Context, p api.ImageParams) (api.GeneratedPrompt, error) {
	raw, err := s.complete(ctx, imagePrompt(p))
	if err != nil {
		return api.GeneratedPrompt{}, fmt.Errorf("generate prompt: %w", err)
	}
	var out api.GeneratedPrompt
	if err := decodeJSON(raw, &out); err != nil {
		return api.GeneratedPrompt{}, fmt.Errorf("generate prompt: %w", err)
	}
	return out, nil
}

// GenerateImage renders prompt through the image endpoint.
func (s *Service) GenerateImage(ctx context.Context, prompt string) (api.GeneratedImage, error) {
	if s.images == nil {
		return api.GeneratedImage{}, ErrNoImageClient
	}
	return s.images.Generate(ctx, prompt)
}

func textPrompt(p api.TextParams) string {
	var b strings.Builder
	b.WriteString("You write short WhatsApp marketing messages for restaurants.\n")
	fmt.Fprintf(&b, "Campaign type: %s\n", p.Type)
	fmt.Fprintf(&b, "Language: %s\n", p.Language)
	fmt.Fprintf(&b, "Objective: %s\n", p.Objective)
	b.WriteString("Keep the message under 400 characters. ")
	b.WriteString(`Answer with JSON only: {"text": string, "ctaText": string, "ctaType": "reply"|"url"|"phone"}`)
	return b.String()
}

func imagePrompt(p api.ImageParams) string {
	var b strings.Builder
	b.WriteString("Describe a single promotional photo for a restaurant campaign, for an image model.\n")
	fmt.Fprintf(&b, "Campaign: %s (%s, language %s)\n", p.Name, p.Type, p.Language)
	fmt.Fprintf(&b, "Message: %s\n", p.Text)
	b.WriteString(`No text in the image. Answer with JSON only: {"prompt": string}`)
	return b.String()
}

// decodeJSON parses a model answer, tolerating a fenced code block.
func decodeJSON(raw string, v any) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), v); err != nil {
		return fmt.Errorf("decode model answer: %w", err)
	}
	return nil
}
