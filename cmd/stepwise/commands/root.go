package commands

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/petrijr/stepwise/internal/config"
	"github.com/petrijr/stepwise/internal/logging"
)

// state is shared by the subcommands of one invocation.
type state struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
	logger  *slog.Logger
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	st := &state{}

	root := &cobra.Command{
		Use:   "stepwise",
		Short: "Step-gated guided flows",
		Long: `stepwise runs the built-in guided flows (campaign, onboarding) from
YAML scripts. Uniqueness, persistence and analysis jobs are simulated;
content generation uses an OpenAI-compatible model when enabled and the
fallback tables otherwise.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return st.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&st.cfgFile, "config", "c", "", "config file (default ./stepwise.yaml)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: json, text")
	pf.String("db", "", "SQLite database file; empty keeps state in memory")

	root.AddCommand(
		flowsCmd(st),
		runCmd(st),
		pollCmd(st),
		jobsCmd(st),
	)
	return root
}

func (st *state) init(cmd *cobra.Command) error {
	v, err := config.New(st.cfgFile)
	if err != nil {
		return err
	}

	pf := cmd.Root().PersistentFlags()
	for key, flag := range map[string]string{
		"logging.level":  "log-level",
		"logging.format": "log-format",
		"storage.path":   "db",
	} {
		// Only explicitly set flags override file and environment values.
		if f := pf.Lookup(flag); f != nil && f.Changed {
			v.Set(key, f.Value.String())
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	st.v = v
	st.cfg = cfg
	st.logger = logging.New(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	return nil
}

func (st *state) out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
