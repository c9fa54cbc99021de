package wizard

import (
	"context"
	"sync"

	"github.com/petrijr/stepwise/pkg/api"
)

// recordingEnricher remembers which chains fell back during one run.
type recordingEnricher struct {
	inner api.Enricher

	mu        sync.Mutex
	fallbacks []api.EnrichmentKind
}

func (r *recordingEnricher) GenerateText(ctx context.Context, p api.TextParams) api.TextContent {
	out := r.inner.GenerateText(ctx, p)
	if out.ProducedBy == api.ProducedByFallback {
		r.record(api.EnrichText)
	}
	return out
}

func (r *recordingEnricher) GenerateImage(ctx context.Context, p api.ImageParams) api.MediaResult {
	out := r.inner.GenerateImage(ctx, p)
	if out.ProducedBy == api.ProducedByFallback {
		r.record(api.EnrichImage)
	}
	return out
}

func (r *recordingEnricher) Fallbacks() []api.EnrichmentKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]api.EnrichmentKind(nil), r.fallbacks...)
}

func (r *recordingEnricher) record(k api.EnrichmentKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = append(r.fallbacks, k)
}

// startEnrichmentLocked runs step.Enrich in the background. The result is
// applied only if the run is still current when it returns, and never to a
// field the user edited while it ran. The step is gated again on completion
// since edits are accepted while awaiting.
func (c *Controller) startEnrichmentLocked(step api.StepDefinition) {
	c.cancelEnrichmentLocked()

	c.enrichGen++
	gen := c.enrichGen
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.enrichCancel = cancel
	c.enrichDone = done

	values := c.values.Clone()
	startSeq := c.editSeq
	rec := &recordingEnricher{inner: c.enricher}

	go func() {
		updates := step.Enrich(ctx, rec, values)

		var ts []api.Transition
		c.mu.Lock()
		if !c.closed && gen == c.enrichGen && c.phase == api.PhaseAwaitingEnrichment {
			for k, v := range updates {
				if c.edited[k] > startSeq {
					continue
				}
				c.values[k] = v
			}
			for _, kind := range rec.Fallbacks() {
				c.notice(api.Notice{
					Kind:    api.NoticeEnrichmentFallback,
					Message: string(kind) + " for step " + step.ID,
				})
			}
			if err := c.stepReadyLocked(step); err != nil {
				c.notice(api.Notice{
					Kind:    api.NoticeStepReopened,
					Message: step.ID,
					Err:     err,
				})
				ts = append(ts, c.transitionLocked(api.PhaseEditing, step.ID))
				if t, moved := c.normalizeLocked(); moved {
					ts = append(ts, t)
				}
			} else {
				ts = append(ts, c.transitionLocked(api.PhaseEditing, c.nextAfterLocked(step)))
			}
			c.finishEnrichmentLocked()
		}
		c.mu.Unlock()
		c.emit(ts)
	}()
}

// nextAfterLocked returns the first effective step declared after step.
func (c *Controller) nextAfterLocked(step api.StepDefinition) string {
	eff := c.flow.EffectiveSteps(c.values)
	for _, s := range eff {
		if s.Index > step.Index {
			return s.ID
		}
	}
	return eff[len(eff)-1].ID
}

func (c *Controller) finishEnrichmentLocked() {
	if c.enrichCancel != nil {
		c.enrichCancel()
		c.enrichCancel = nil
	}
	if c.enrichDone != nil {
		close(c.enrichDone)
		c.enrichDone = nil
	}
}

// cancelEnrichmentLocked abandons the pending run, if any.
func (c *Controller) cancelEnrichmentLocked() {
	if c.enrichDone == nil {
		return
	}
	c.enrichGen++
	c.finishEnrichmentLocked()
}
