package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func jobsCmd(st *state) *cobra.Command {
	var (
		session      string
		drain        bool
		drainTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List submission jobs",
		Long: `Jobs lists the submission jobs kept in the configured storage. With
--drain it first delivers submissions queued by an earlier process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(st.cfg, st.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if drain {
				if err := a.rt.Runner.StartWorkers(ctx, st.cfg.Submission.Workers); err != nil {
					return err
				}
				dctx, cancel := context.WithTimeout(ctx, drainTimeout)
				defer cancel()
				if err := a.rt.Runner.Drain(dctx); err != nil {
					return fmt.Errorf("drain: %w", err)
				}
			}

			jobs, err := a.rt.Jobs(ctx, session)
			if err != nil {
				return err
			}
			out := st.out(cmd)
			if len(jobs) == 0 {
				fmt.Fprintln(out, "no jobs")
				return nil
			}
			for _, j := range jobs {
				printJob(out, j)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&session, "session", "", "only jobs of this session")
	f.BoolVar(&drain, "drain", false, "deliver queued submissions before listing")
	f.DurationVar(&drainTimeout, "drain-timeout", 30*time.Second, "limit for --drain")
	return cmd
}
