package stepwise

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/petrijr/stepwise/internal/achievements"
	"github.com/petrijr/stepwise/internal/clock"
	"github.com/petrijr/stepwise/internal/enrich"
	"github.com/petrijr/stepwise/internal/persistence"
	"github.com/petrijr/stepwise/internal/poller"
	"github.com/petrijr/stepwise/internal/submission"
	"github.com/petrijr/stepwise/internal/taskqueue"
	"github.com/petrijr/stepwise/internal/uniqueness"
	"github.com/petrijr/stepwise/internal/wizard"
	"github.com/petrijr/stepwise/pkg/api"
	"github.com/petrijr/stepwise/pkg/worker"
)

// Services are the remote collaborators of a Runtime. Content may be nil,
// in which case every enrichment uses the fallback tables. Jobs may be nil
// if Poll is never used.
type Services struct {
	Registry    api.UniquenessRegistryService
	Content     api.ContentGenerationService
	Persistence api.EntityPersistenceService
	Jobs        api.AnalysisJobService
}

// Config tunes a Runtime. The zero value uses the package defaults.
type Config struct {
	Debounce         time.Duration
	StageTimeout     time.Duration
	ApprovalCategory string
	QueueCapacity    int
	PollPolicy       PollPolicy
	Worker           worker.Config
	Observer         Observer
	Clock            clock.Clock
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = uniqueness.DefaultDelay
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = enrich.DefaultStageTimeout
	}
	if c.ApprovalCategory == "" {
		c.ApprovalCategory = submission.DefaultCategory
	}
	c.PollPolicy = c.PollPolicy.Normalize()
	if c.Observer == nil {
		c.Observer = api.NoopObserver{}
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	return c
}

// Runtime wires stores, the task queue, the submission coordinator, the
// poller and a Runner together, and creates sessions sharing them.
type Runtime struct {
	Persistence  persistence.Persistence
	Coordinator  *submission.Coordinator
	Achievements *achievements.Tracker
	Poller       *poller.Poller
	Runner       *Runner
	Enricher     api.Enricher

	services Services
	cfg      Config
}

// NewInMemoryRuntime returns a Runtime whose jobs, achievements and queued
// tasks live in memory.
func NewInMemoryRuntime(svcs Services, cfg Config) (*Runtime, error) {
	cfg = cfg.withDefaults()
	return NewRuntime(persistence.NewInMemory(), taskqueue.NewInMemoryQueue(cfg.QueueCapacity), svcs, cfg)
}

// NewSQLiteRuntime returns a Runtime persisting jobs, achievements and
// queued tasks in db. Tasks queued by a previous process are delivered once
// workers start.
//
//	db, _ := sql.Open("sqlite", "file:stepwise.db?_pragma=busy_timeout(5000)")
//	rt, err := stepwise.NewSQLiteRuntime(db, services, stepwise.Config{})
func NewSQLiteRuntime(db *sql.DB, svcs Services, cfg Config) (*Runtime, error) {
	cfg = cfg.withDefaults()
	p, err := persistence.NewSQLite(db)
	if err != nil {
		return nil, err
	}
	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}
	return NewRuntime(p, q, svcs, cfg)
}

// NewRuntime returns a Runtime over caller-provided stores and queue. The
// redis, postgres and mongo modules use it to plug in their backends.
func NewRuntime(p persistence.Persistence, q taskqueue.Queue, svcs Services, cfg Config) (*Runtime, error) {
	cfg = cfg.withDefaults()
	if svcs.Persistence == nil {
		return nil, errors.New("stepwise: an entity persistence service is required")
	}

	tracker := achievements.New(p.KV)
	if err := tracker.Init(context.Background()); err != nil {
		return nil, err
	}

	coord := submission.New(svcs.Persistence, p.Jobs, q,
		submission.WithCategory(cfg.ApprovalCategory),
		submission.WithObserver(cfg.Observer),
		submission.WithClock(cfg.Clock),
	)

	runner := NewRunner(q, cfg.Worker)
	runner.Handle(taskqueue.TaskTypeRunSubmission, coord.HandleTask)

	rt := &Runtime{
		Persistence:  p,
		Coordinator:  coord,
		Achievements: tracker,
		Runner:       runner,
		Enricher: enrich.New(svcs.Content,
			enrich.WithStageTimeout(cfg.StageTimeout),
			enrich.WithObserver(cfg.Observer),
			enrich.WithClock(cfg.Clock),
		),
		services: svcs,
		cfg:      cfg,
	}
	if svcs.Jobs != nil {
		rt.Poller = poller.New(svcs.Jobs, poller.WithClock(cfg.Clock), poller.WithObserver(cfg.Observer))
	}
	return rt, nil
}

// NewSession starts a wizard session for flow. owner keys achievement
// tracking; empty uses the session id.
func (rt *Runtime) NewSession(flow FlowDefinition, owner string) (*Session, error) {
	var checker *uniqueness.Checker
	for _, s := range flow.Steps {
		if len(s.Unique) > 0 {
			if rt.services.Registry == nil {
				return nil, fmt.Errorf("stepwise: flow %q checks uniqueness but no registry is configured", flow.Name)
			}
			checker = uniqueness.New(rt.services.Registry,
				uniqueness.WithDelay(rt.cfg.Debounce),
				uniqueness.WithClock(rt.cfg.Clock),
				uniqueness.WithObserver(rt.cfg.Observer),
			)
			break
		}
	}

	deps := wizard.Deps{
		Enricher:     rt.Enricher,
		Submitter:    rt.Coordinator,
		Achievements: rt.Achievements,
	}
	// A nil *Checker must not become a non-nil interface.
	if checker != nil {
		deps.Checker = checker
	}

	opts := []wizard.Option{
		wizard.WithObserver(rt.cfg.Observer),
		wizard.WithClock(rt.cfg.Clock),
	}
	if owner != "" {
		opts = append(opts, wizard.WithOwner(owner))
	}
	return wizard.New(flow, deps, opts...)
}

// Job returns a submission job by id.
func (rt *Runtime) Job(ctx context.Context, id string) (*SubmissionJob, error) {
	return rt.Coordinator.Job(ctx, id)
}

// Jobs lists submission jobs, optionally for one session.
func (rt *Runtime) Jobs(ctx context.Context, sessionID string) ([]*SubmissionJob, error) {
	return rt.Coordinator.Jobs(ctx, persistence.JobFilter{SessionID: sessionID})
}

// Poll polls an analysis job until it reaches a terminal status, using the
// configured policy when policy is zero.
func (rt *Runtime) Poll(ctx context.Context, jobID string, policy PollPolicy) (PollableResource, error) {
	if rt.Poller == nil {
		return PollableResource{}, errors.New("stepwise: no analysis job service configured")
	}
	if policy == (PollPolicy{}) {
		policy = rt.cfg.PollPolicy
	}
	return rt.Poller.Poll(ctx, jobID, policy)
}

// Close stops workers and pollers.
func (rt *Runtime) Close() {
	rt.Runner.Stop()
	if rt.Poller != nil {
		rt.Poller.Close()
	}
}
