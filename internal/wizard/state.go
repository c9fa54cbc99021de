package wizard

import (
	"context"
	"fmt"

	"github.com/petrijr/stepwise/pkg/api"
)

// navigableLocked rejects forward navigation outside EDITING.
func (c *Controller) navigableLocked() error {
	switch {
	case c.closed:
		return api.ErrSessionClosed
	case c.phase.Frozen():
		return api.ErrSessionFrozen
	case c.phase == api.PhaseAwaitingEnrichment:
		return api.ErrAwaitingEnrichment
	}
	return nil
}

// currentLocked returns the current step, its effective index and the
// effective step list.
func (c *Controller) currentLocked() (api.StepDefinition, int, []api.StepDefinition) {
	eff := c.flow.EffectiveSteps(c.values)
	for i, s := range eff {
		if s.ID == c.step {
			return s, i, eff
		}
	}
	// normalizeLocked keeps c.step effective; fall back to the first step.
	return eff[0], 0, eff
}

// stepReadyLocked checks the validator, then every unique field of step.
func (c *Controller) stepReadyLocked(step api.StepDefinition) error {
	if verr := c.validator.FirstError(step.ID, c.values); verr != nil {
		return verr
	}
	for field := range step.Unique {
		if err := c.uniqueReadyLocked(field); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) uniqueReadyLocked(field string) error {
	value := c.values.String(field)
	st := c.checker.Status(field)
	if st.Value != value {
		return fmt.Errorf("%w: %s", api.ErrUniquenessPending, field)
	}
	switch st.Status {
	case api.CheckAvailable:
		return nil
	case api.CheckUnavailable, api.CheckError:
		return &api.UniquenessConflict{Field: field, Value: value, Status: st.Status}
	default:
		return fmt.Errorf("%w: %s", api.ErrUniquenessPending, field)
	}
}

func (c *Controller) isUnique(field string) bool {
	if c.checker == nil {
		return false
	}
	for _, s := range c.flow.Steps {
		if _, ok := s.Unique[field]; ok {
			return true
		}
	}
	return false
}

// normalizeLocked moves off a step that became skipped, to the closest
// preceding effective step.
func (c *Controller) normalizeLocked() (api.Transition, bool) {
	eff := c.flow.EffectiveSteps(c.values)
	for _, s := range eff {
		if s.ID == c.step {
			return api.Transition{}, false
		}
	}

	declared, _ := c.flow.Step(c.step)
	target := eff[0].ID
	for _, s := range eff {
		if s.Index < declared.Index {
			target = s.ID
		}
	}
	return c.transitionLocked(c.phase, target), true
}

func (c *Controller) transitionLocked(phase api.Phase, step string) api.Transition {
	t := api.Transition{
		SessionID: c.id,
		Flow:      c.flow.Name,
		FromPhase: c.phase,
		ToPhase:   phase,
		FromStep:  c.step,
		ToStep:    step,
	}
	c.phase = phase
	c.step = step
	return t
}

// emit runs outside c.mu so observers may call back into the controller.
// It also flushes notices recorded since the last emit.
func (c *Controller) emit(ts []api.Transition) {
	ctx := context.Background()
	for _, t := range ts {
		c.observer.OnTransition(ctx, t)
	}

	c.noticeMu.Lock()
	pending := c.pending
	c.pending = nil
	c.noticeMu.Unlock()
	for _, n := range pending {
		c.observer.OnNotice(ctx, n)
	}
}

// addNotice records a notice produced elsewhere; it is not re-reported.
func (c *Controller) addNotice(n api.Notice) {
	c.noticeMu.Lock()
	c.notices = append(c.notices, n)
	c.noticeMu.Unlock()
}

// notice records n and queues it for the observer.
func (c *Controller) notice(n api.Notice) {
	if n.SessionID == "" {
		n.SessionID = c.id
	}
	if n.At.IsZero() {
		n.At = c.clock.Now()
	}
	c.noticeMu.Lock()
	c.notices = append(c.notices, n)
	c.pending = append(c.pending, n)
	c.noticeMu.Unlock()
}

func (c *Controller) stopWatchLocked() {
	if c.unwatch != nil {
		c.unwatch()
		c.unwatch = nil
	}
}

// confirmLocked revalidates the flow and runs Phase 1. On success the
// session is COMPLETED; a validation failure leaves it untouched and is
// returned before anything is submitted.
func (c *Controller) confirmLocked(ctx context.Context) ([]api.Transition, error) {
	for _, s := range c.flow.EffectiveSteps(c.values) {
		if err := c.stepReadyLocked(s); err != nil {
			return nil, err
		}
	}

	payload, err := c.flow.BuildPayload(c.values.Clone())
	if err != nil {
		return nil, fmt.Errorf("build payload: %w", err)
	}

	ts := []api.Transition{c.transitionLocked(api.PhaseSubmitting, c.step)}

	// Watch before submitting so the queued notice lands on this session.
	sessionID := c.id
	c.unwatch = c.submitter.Watch(sessionID, c.addNotice)

	job, _, err := c.submitter.Submit(ctx, sessionID, c.flow.Name, c.flow.PlannedCalls(), payload)
	if job != nil {
		c.jobID = job.ID
	}
	if err != nil {
		// Completion is optimistic: a local store failure is only a notice.
		c.notice(api.Notice{
			Kind:    api.NoticePersistenceFailure,
			Message: "submission could not be recorded",
			Err:     err,
		})
	}

	ts = append(ts, c.transitionLocked(api.PhaseCompleted, c.step))
	c.unlockAchievementLocked(ctx)
	return ts, nil
}

func (c *Controller) unlockAchievementLocked(ctx context.Context) {
	id := c.flow.Achievement
	if id == "" || c.achievements == nil {
		return
	}
	owner := c.owner
	if owner == "" {
		owner = c.id
	}

	seen, err := c.achievements.Seen(ctx, owner, id)
	if err != nil || seen {
		return
	}
	if err := c.achievements.MarkSeen(ctx, owner, id); err != nil {
		return
	}
	c.unlocked = append(c.unlocked, id)
	c.notice(api.Notice{Kind: api.NoticeAchievement, Message: id})
}

func (c *Controller) snapshotLocked() api.SessionSnapshot {
	_, idx, eff := c.currentLocked()
	ids := make([]string, len(eff))
	for i, s := range eff {
		ids[i] = s.ID
	}

	snap := api.SessionSnapshot{
		ID:             c.id,
		Flow:           c.flow.Name,
		Phase:          c.phase,
		CurrentStep:    eff[idx].ID,
		Index:          idx,
		EffectiveSteps: ids,
		Values:         c.values.Clone(),
		Validation:     c.validator.FieldStatuses(c.values),
		Progress:       float64(idx+1) / float64(len(eff)),
		JobID:          c.jobID,
		Unlocked:       append([]string(nil), c.unlocked...),
		CreatedAt:      c.createdAt,
	}
	if c.checker != nil {
		snap.Uniqueness = c.checker.States()
	}

	c.noticeMu.Lock()
	snap.Notices = append([]api.Notice(nil), c.notices...)
	c.noticeMu.Unlock()
	return snap
}
