package commands

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms/openai"
	_ "modernc.org/sqlite"

	"github.com/petrijr/stepwise"
	"github.com/petrijr/stepwise/internal/config"
	"github.com/petrijr/stepwise/internal/contentgen"
	"github.com/petrijr/stepwise/internal/sim"
	"github.com/petrijr/stepwise/pkg/api"
	"github.com/petrijr/stepwise/pkg/worker"
)

// app is a runtime built from the loaded configuration.
type app struct {
	rt       *stepwise.Runtime
	entities *sim.Persistence
	metrics  *api.BasicMetrics
	db       *sql.DB
}

func (a *app) Close() {
	a.rt.Close()
	if a.db != nil {
		_ = a.db.Close()
	}
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	content, err := contentService(cfg.Generation)
	if err != nil {
		return nil, err
	}

	a := &app{
		entities: sim.NewPersistence(api.CallName(cfg.Sim.FailCall)),
		metrics:  &api.BasicMetrics{},
	}
	svcs := stepwise.Services{
		Registry:    sim.NewRegistry(cfg.Sim.TakenPhrases...),
		Persistence: a.entities,
		Jobs:        sim.NewJobs(cfg.Sim.JobProcessingPolls),
	}
	if content != nil {
		svcs.Content = content
	}

	rcfg := stepwise.Config{
		Debounce:         cfg.Uniqueness.Debounce(),
		StageTimeout:     cfg.Enrichment.StageTimeout(),
		ApprovalCategory: cfg.Submission.ApprovalCategory,
		QueueCapacity:    cfg.Submission.QueueCapacity,
		PollPolicy: stepwise.Polling(cfg.Poller.MaxAttempts).
			Every(cfg.Poller.Interval()).
			Policy(),
		Worker: worker.Config{
			MaxAttempts: 3,
			Backoff:     100 * time.Millisecond,
			Logger:      logger,
		},
		Observer: stepwise.NewCompositeObserver(stepwise.NewLoggingObserver(logger), a.metrics),
	}

	if cfg.Storage.Path == "" {
		a.rt, err = stepwise.NewInMemoryRuntime(svcs, rcfg)
		if err != nil {
			return nil, err
		}
		return a, nil
	}

	db, err := sql.Open("sqlite", "file:"+cfg.Storage.Path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Storage.Path, err)
	}
	a.rt, err = stepwise.NewSQLiteRuntime(db, svcs, rcfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a.db = db
	logger.Debug("storage_opened", slog.String("path", cfg.Storage.Path))
	return a, nil
}

// contentService returns nil when generation is disabled. The return type
// is concrete so a nil result never becomes a non-nil interface.
func contentService(cfg config.GenerationConfig) (*contentgen.Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("content generation: %w", err)
	}

	var images *contentgen.ImageClient
	if cfg.ImageURL != "" {
		images = contentgen.NewImageClient(cfg.ImageURL, cfg.APIKey, nil)
	}
	return contentgen.New(llm, images), nil
}
