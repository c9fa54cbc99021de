package commands

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testConfig = "testdata/stepwise.yaml"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", testConfig}, args...))
	err := root.Execute()
	return out.String(), err
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestFlows_ListsBuiltInFlows(t *testing.T) {
	out, err := execute(t, "flows")
	require.NoError(t, err)

	require.Contains(t, out, "campaign\n")
	require.Contains(t, out, "onboarding\n")
	require.Contains(t, out, "2 trigger: triggerPhrase [unique triggerPhrase]")
	require.Contains(t, out, "schedule_time: scheduledAt [skippable]")
	require.Contains(t, out, "calls: create_entity\n")
}

func TestRun_OnboardingScript(t *testing.T) {
	out, err := execute(t, "run", "--script", "testdata/onboarding.yaml")
	require.NoError(t, err, out)

	require.True(t, strings.HasPrefix(out, "session "), out)
	require.Contains(t, out, "step trigger (EDITING) 50%")
	require.Contains(t, out, "blocked: ")
	require.Contains(t, out, "notice enrichment.fallback")
	require.Contains(t, out, "notice achievement.unlocked")
	require.Contains(t, out, "create_entity: succeeded")
}

func TestRun_FailingCallIsReported(t *testing.T) {
	t.Setenv("STEPWISE_SIM_FAIL_CALL", "create_entity")

	out, err := execute(t, "run", "--script", "testdata/onboarding.yaml")
	require.NoError(t, err, out)
	require.Contains(t, out, "create_entity: failed")
}

func TestRun_FlowArgumentOverridesScript(t *testing.T) {
	script := writeScript(t, `
flow: onboarding
actions:
  - expect: {step: details}
`)
	out, err := execute(t, "run", "campaign", "--script", script)
	require.NoError(t, err, out)
	require.Contains(t, out, "flow campaign")
	require.Contains(t, out, "phase EDITING")
}

func TestRun_ExpectationFailure(t *testing.T) {
	script := writeScript(t, `
flow: onboarding
actions:
  - expect: {phase: COMPLETED}
`)
	_, err := execute(t, "run", "--script", script)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrExpectation), "got %v", err)
}

func TestRun_Errors(t *testing.T) {
	_, err := execute(t, "run", "nope", "--script", "testdata/onboarding.yaml")
	require.ErrorContains(t, err, `unknown flow "nope"`)

	_, err = execute(t, "run", "onboarding")
	require.Error(t, err, "--script is required")

	_, err = execute(t, "run", "--script", writeScript(t, "actions: [jump]\n"))
	require.ErrorContains(t, err, `unknown action "jump"`)
}

func TestRun_DurableJobsAreListed(t *testing.T) {
	db := filepath.Join(t.TempDir(), "stepwise.db")

	out, err := execute(t, "--db", db, "run", "--script", "testdata/onboarding.yaml")
	require.NoError(t, err, out)

	out, err = execute(t, "--db", db, "jobs")
	require.NoError(t, err)
	require.Contains(t, out, "flow onboarding")
	require.Contains(t, out, "create_entity: succeeded")

	out, err = execute(t, "--db", db, "jobs", "--session", "unknown")
	require.NoError(t, err)
	require.Equal(t, "no jobs\n", out)
}

func TestJobs_InMemoryIsEmpty(t *testing.T) {
	out, err := execute(t, "jobs", "--drain")
	require.NoError(t, err)
	require.Equal(t, "no jobs\n", out)
}

func TestPoll(t *testing.T) {
	out, err := execute(t, "poll", "job-1")
	require.NoError(t, err)
	require.Contains(t, out, "job-1 completed after 2/5 attempts")
	require.Contains(t, out, `"score": 0.92`)

	out, err = execute(t, "poll", "stuck-1", "--max-attempts", "2")
	require.ErrorIs(t, err, errNotCompleted)
	require.Contains(t, out, "stuck-1 not_available after 2/2 attempts")

	_, err = execute(t, "poll", "fail-1")
	require.ErrorIs(t, err, errNotCompleted)
}

func TestConfig_InvalidFlagIsRejected(t *testing.T) {
	_, err := execute(t, "--log-level", "loud", "flows")
	require.ErrorContains(t, err, "logging.level")
}

func TestParseScript(t *testing.T) {
	s, err := ParseScript(strings.NewReader(`
owner: ana
actions:
  - edit: {b: 2, a: one}
  - back
  - expect: {phase: EDITING, step: details}
`))
	require.NoError(t, err)
	require.Equal(t, "ana", s.Owner)
	require.Len(t, s.Actions, 3)
	require.Equal(t, []FieldEdit{{Field: "b", Value: 2}, {Field: "a", Value: "one"}}, s.Actions[0].Edits)
	require.Equal(t, opBack, s.Actions[1].Op)
	require.Equal(t, Expectation{Phase: "EDITING", Step: "details"}, s.Actions[2].Expect)

	_, err = ParseScript(strings.NewReader(""))
	require.ErrorContains(t, err, "empty script")

	_, err = ParseScript(strings.NewReader("actions:\n  - {next: 1, back: 2}\n"))
	require.ErrorContains(t, err, "exactly one key")

	_, err = ParseScript(strings.NewReader("acts: []\n"))
	require.Error(t, err, "unknown keys are rejected")
}
