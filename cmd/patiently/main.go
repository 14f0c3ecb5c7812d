package main

import (
	"fmt"
	"os"

	"github.com/loykin/patiently/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	c := newCommand(os.Stdout)
	root := buildRoot(c)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "patiently:", err)
		os.Exit(1)
	}
	os.Exit(c.exitCode)
}

// buildRoot creates the single patiently command. With a command line it
// queues and runs it; without one it monitors the queue.
func buildRoot(c *command) *cobra.Command {
	flags := &RootFlags{}
	root := &cobra.Command{
		Use:   "patiently [flags] [--] [command [args...]]",
		Short: "Run commands one after another across independent shells",
		Long: `Patiently queues a command behind the ones submitted before it and runs it
once fewer than --jobs of them are still outstanding. Coordination happens
through a shared directory, so any number of terminals or scripts can submit.

Without a command, patiently shows how many jobs are in each state until
none is waiting or running.

Examples:
  patiently make build &
  patiently -j 2 ./deploy.sh staging
  patiently 'sleep 2; true'
  patiently                       # monitor
  QUEUE_DIR=/tmp/q patiently --once`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.ConfigPath, cmd.Flags())
			if err != nil {
				return err
			}
			c.setupLogger(cfg)
			if len(args) == 0 {
				return c.Monitor(cmd.Context(), cfg, *flags)
			}
			return c.Submit(cmd.Context(), cfg, *flags, args)
		},
	}
	// everything after the first positional argument belongs to the command
	root.Flags().SetInterspersed(false)

	f := root.Flags()
	f.StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	f.IntVarP(&flags.Jobs, "jobs", "j", config.DefaultJobs, "run once fewer than this many earlier jobs are outstanding")
	f.StringVar(&flags.LogLevel, "log-level", "", "diagnostic verbosity: debug, info, warn, error (env LOG_LEVEL)")
	f.StringVar(&flags.QueueDir, "queue-dir", config.DefaultQueueDir, "shared queue directory (env QUEUE_DIR)")
	f.StringVar(&flags.Shell, "shell", config.DefaultShell, "shell for single-string commands")
	f.DurationVar(&flags.Interval, "interval", config.DefaultInterval, "monitor refresh interval")
	f.StringVar(&flags.MetricsFile, "metrics-file", "", "monitor: write Prometheus textfile here on every refresh")
	f.StringVar(&flags.Listen, "listen", "", "monitor: serve /status, /jobs and /metrics on this address")
	f.StringVar(&flags.LogDir, "log-dir", "", "capture command stdout/stderr into rotating files in this directory")
	f.StringArrayVarP(&flags.Env, "env", "e", nil, "extra K=V for the command, repeatable; ${VAR} is expanded")
	f.BoolVar(&flags.Once, "once", false, "monitor: print one tally and exit")
	f.BoolVar(&flags.Plain, "plain", false, "monitor: append tallies instead of redrawing in place")
	return root
}
