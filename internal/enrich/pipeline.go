// Package enrich implements the enrichment pipeline: ordered fallback chains
// for generated message text and images.
//
// Each stage runs under its own timeout. A stage that fails, times out,
// panics or returns empty content advances the chain to the deterministic
// fallback; no error ever reaches the caller.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/petrijr/stepwise/internal/clock"
	"github.com/petrijr/stepwise/pkg/api"
)

// DefaultStageTimeout bounds each network stage.
const DefaultStageTimeout = 15 * time.Second

// Stage names reported in EnrichmentFailure.
const (
	StageText   = "generate_text"
	StagePrompt = "generate_prompt"
	StageImage  = "generate_image"
)

var errEmptyResult = errors.New("empty result")

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStageTimeout sets the per-stage timeout. Non-positive values are ignored.
func WithStageTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.stageTimeout = d
		}
	}
}

// WithObserver sets the observer notified once per chain run.
func WithObserver(obs api.Observer) Option {
	return func(p *Pipeline) {
		if obs != nil {
			p.observer = obs
		}
	}
}

// WithClock replaces the clock used for duration measurement.
func WithClock(clk clock.Clock) Option {
	return func(p *Pipeline) { p.clock = clk }
}

// Pipeline runs the text and image chains against a ContentGenerationService.
type Pipeline struct {
	svc          api.ContentGenerationService
	stageTimeout time.Duration
	observer     api.Observer
	clock        clock.Clock
}

// Ensure Pipeline implements api.Enricher.
var _ api.Enricher = (*Pipeline)(nil)

// New creates a Pipeline. A nil svc makes every run use the fallback.
func New(svc api.ContentGenerationService, opts ...Option) *Pipeline {
	p := &Pipeline{
		svc:          svc,
		stageTimeout: DefaultStageTimeout,
		observer:     api.NoopObserver{},
		clock:        clock.Real(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GenerateText returns generated text, or the fallback for params.
func (p *Pipeline) GenerateText(ctx context.Context, params api.TextParams) api.TextContent {
	start := p.clock.Now()

	gen, err := stage(ctx, p, StageText, api.EnrichText, func(ctx context.Context) (api.GeneratedText, error) {
		out, err := p.svc.GenerateText(ctx, params)
		if err == nil && strings.TrimSpace(out.Text) == "" {
			err = errEmptyResult
		}
		return out, err
	})

	if err != nil {
		res := FallbackText(params)
		p.observer.OnEnrichment(ctx, api.EnrichText, res.ProducedBy, err, p.clock.Now().Sub(start))
		return res
	}

	// Fill a missing call-to-action from the table; the text stays generated.
	fb := FallbackText(params)
	res := api.TextContent{
		Text:       strings.TrimSpace(gen.Text),
		CTAText:    strings.TrimSpace(gen.CTAText),
		CTAType:    strings.TrimSpace(gen.CTAType),
		ProducedBy: api.ProducedByGenerated,
	}
	if res.CTAText == "" {
		res.CTAText = fb.CTAText
	}
	if res.CTAType == "" {
		res.CTAType = fb.CTAType
	}
	p.observer.OnEnrichment(ctx, api.EnrichText, res.ProducedBy, nil, p.clock.Now().Sub(start))
	return res
}

// GenerateImage runs prompt generation then image generation, falling back
// to the static asset for params.Type if either stage fails.
func (p *Pipeline) GenerateImage(ctx context.Context, params api.ImageParams) api.MediaResult {
	start := p.clock.Now()

	prompt, err := stage(ctx, p, StagePrompt, api.EnrichImage, func(ctx context.Context) (api.GeneratedPrompt, error) {
		out, err := p.svc.GeneratePrompt(ctx, params)
		if err == nil && strings.TrimSpace(out.Prompt) == "" {
			err = errEmptyResult
		}
		return out, err
	})

	var img api.GeneratedImage
	if err == nil {
		img, err = stage(ctx, p, StageImage, api.EnrichImage, func(ctx context.Context) (api.GeneratedImage, error) {
			out, err := p.svc.GenerateImage(ctx, prompt.Prompt)
			if err == nil && strings.TrimSpace(out.ImageURL) == "" {
				err = errEmptyResult
			}
			return out, err
		})
	}

	if err != nil {
		res := FallbackImage(params.Type)
		p.observer.OnEnrichment(ctx, api.EnrichImage, res.ProducedBy, err, p.clock.Now().Sub(start))
		return res
	}

	res := api.MediaResult{MediaRef: strings.TrimSpace(img.ImageURL), ProducedBy: api.ProducedByGenerated}
	p.observer.OnEnrichment(ctx, api.EnrichImage, res.ProducedBy, nil, p.clock.Now().Sub(start))
	return res
}

type stageResult[T any] struct {
	val T
	err error
}

// stage runs fn under the pipeline's stage timeout. It returns as soon as
// the timeout fires even if fn ignores its context.
func stage[T any](ctx context.Context, p *Pipeline, name string, kind api.EnrichmentKind, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if p.svc == nil {
		return zero, &api.EnrichmentFailure{Kind: kind, Stage: name, Err: errors.New("no content service configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	ch := make(chan stageResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- stageResult[T]{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		ch <- stageResult[T]{val: v, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return zero, &api.EnrichmentFailure{Kind: kind, Stage: name, Err: r.err}
		}
		return r.val, nil
	case <-ctx.Done():
		return zero, &api.EnrichmentFailure{Kind: kind, Stage: name, Err: ctx.Err()}
	}
}
