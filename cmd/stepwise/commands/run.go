package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/petrijr/stepwise"
)

func runCmd(st *state) *cobra.Command {
	var (
		scriptPath   string
		owner        string
		waitTimeout  time.Duration
		drainTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run [flow]",
		Short: "Run a scripted wizard session",
		Long: `Run drives one session of a built-in flow through the actions of a YAML
script, then waits for the background submission and prints its calls.
The flow argument overrides the script's flow key.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := LoadScript(scriptPath)
			if err != nil {
				return err
			}
			name := script.Flow
			if len(args) == 1 {
				name = args[0]
			}
			flow, ok := stepwise.Flow(name)
			if !ok {
				return fmt.Errorf("unknown flow %q", name)
			}
			if owner == "" {
				owner = script.Owner
			}

			a, err := newApp(st.cfg, st.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if err := a.rt.Runner.StartWorkers(ctx, st.cfg.Submission.Workers); err != nil {
				return err
			}

			s, err := a.rt.NewSession(flow, owner)
			if err != nil {
				return err
			}
			defer s.Close()

			out := st.out(cmd)
			fmt.Fprintf(out, "session %s flow %s\n", s.ID(), flow.Name)

			p := &player{session: s, out: out, waitTimeout: waitTimeout}
			if err := p.play(ctx, script.Actions); err != nil {
				return err
			}

			snap := s.Snapshot()
			for _, n := range snap.Notices {
				fmt.Fprintf(out, "notice %s: %s\n", n.Kind, n.Message)
			}
			if snap.JobID == "" {
				fmt.Fprintf(out, "phase %s\n", snap.Phase)
				return nil
			}

			dctx, cancel := context.WithTimeout(ctx, drainTimeout)
			defer cancel()
			if err := a.rt.Runner.Drain(dctx); err != nil {
				return fmt.Errorf("wait for submission: %w", err)
			}
			job, err := a.rt.Job(ctx, snap.JobID)
			if err != nil {
				return err
			}
			printJob(out, job)

			m := a.metrics.Snapshot()
			st.logger.Info("run_finished",
				slog.String("session", snap.ID),
				slog.Int64("transitions", m.Transitions),
				slog.Int64("calls_succeeded", m.CallsSucceeded),
				slog.Int64("calls_failed", m.CallsFailed),
				slog.Int64("enrichment_fallback", m.EnrichmentFallback),
			)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&scriptPath, "script", "s", "", "YAML script of session actions")
	f.StringVar(&owner, "owner", "", "achievement owner (default: the script's owner)")
	f.DurationVar(&waitTimeout, "wait-timeout", 30*time.Second, "limit for each wait action")
	f.DurationVar(&drainTimeout, "drain-timeout", 30*time.Second, "limit for the background submission")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

func printJob(out io.Writer, job *stepwise.SubmissionJob) {
	fmt.Fprintf(out, "job %s session %s flow %s\n", job.ID, job.SessionID, job.Flow)
	for _, c := range job.Calls {
		switch {
		case c.Error != "":
			fmt.Fprintf(out, "  %s: %s (%s)\n", c.Name, c.State, c.Error)
		case c.Detail != "":
			fmt.Fprintf(out, "  %s: %s %s\n", c.Name, c.State, c.Detail)
		default:
			fmt.Fprintf(out, "  %s: %s\n", c.Name, c.State)
		}
	}
}
