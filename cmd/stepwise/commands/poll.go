package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/petrijr/stepwise"
	"github.com/petrijr/stepwise/pkg/api"
)

var errNotCompleted = errors.New("job did not complete")

func pollCmd(st *state) *cobra.Command {
	var (
		interval    time.Duration
		maxAttempts int
	)

	cmd := &cobra.Command{
		Use:   "poll <job-id>",
		Short: "Poll an analysis job until it finishes",
		Long: `Poll fetches the status of an analysis job at a fixed interval until it
completes, fails or the attempt budget runs out. Flags override the
poller section of the configuration.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(st.cfg, st.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("interval") {
				interval = st.cfg.Poller.Interval()
			}
			if !cmd.Flags().Changed("max-attempts") {
				maxAttempts = st.cfg.Poller.MaxAttempts
			}
			policy := stepwise.Polling(maxAttempts).Every(interval).Policy()

			res, err := a.rt.Poll(cmd.Context(), args[0], policy)
			if err != nil {
				return err
			}
			out := st.out(cmd)
			fmt.Fprintf(out, "%s %s after %d/%d attempts\n", res.ID, res.Status, res.Attempts, res.MaxAttempts)
			if res.Payload != nil {
				b, jerr := json.MarshalIndent(res.Payload, "", "  ")
				if jerr != nil {
					return jerr
				}
				fmt.Fprintln(out, string(b))
			}
			if res.Status != api.PollCompleted {
				return fmt.Errorf("job %s: %w", res.ID, errNotCompleted)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "time between fetches")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "fetch budget")
	return cmd
}
