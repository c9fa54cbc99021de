package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.Empty(t, cfg.Validate())
	require.Equal(t, 500, cfg.Uniqueness.DebounceMs)
	require.Equal(t, 12, cfg.Poller.MaxAttempts)
	require.Equal(t, "MARKETING", cfg.Submission.ApprovalCategory)
}

func TestLoad_DefaultsOnly(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, 5000, int(cfg.Poller.Interval().Milliseconds()))
	require.Equal(t, 15000, int(cfg.Enrichment.StageTimeout().Milliseconds()))
}

func TestNew_ReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stepwise.yaml")
	yaml := []byte(`
poller:
  interval_ms: 250
  max_attempts: 4
storage:
  path: /tmp/stepwise.db
sim:
  taken_phrases: ["Hello Luigi"]
  fail_call: schedule_entity
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o644))
	t.Setenv("STEPWISE_SUBMISSION_APPROVAL_CATEGORY", "UTILITY")

	v, err := New(path)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	require.Equal(t, 250, cfg.Poller.IntervalMs)
	require.Equal(t, 4, cfg.Poller.MaxAttempts)
	require.Equal(t, "/tmp/stepwise.db", cfg.Storage.Path)
	require.Equal(t, []string{"Hello Luigi"}, cfg.Sim.TakenPhrases)
	require.Equal(t, "schedule_entity", cfg.Sim.FailCall)
	require.Equal(t, "UTILITY", cfg.Submission.ApprovalCategory)
	require.Equal(t, 500, cfg.Uniqueness.DebounceMs, "unset keys keep defaults")
}

func TestNew_MissingExplicitFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_ReportsEveryInvalidSetting(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("poller.max_attempts", 0)
	v.Set("logging.level", "loud")
	v.Set("generation.enabled", true)

	_, err := Load(v)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs), "got %v", err)

	fields := make([]string, len(verrs))
	for i, e := range verrs {
		fields[i] = e.Field
	}
	require.ElementsMatch(t, []string{"poller.max_attempts", "logging.level", "generation.api_key"}, fields)
	require.Contains(t, err.Error(), "3 validation errors")
}
