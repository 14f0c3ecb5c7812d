package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/loykin/patiently/internal/config"
	"github.com/loykin/patiently/internal/env"
	"github.com/loykin/patiently/internal/job"
	"github.com/loykin/patiently/internal/metrics"
	"github.com/loykin/patiently/internal/monitor"
	"github.com/loykin/patiently/internal/process"
	"github.com/loykin/patiently/internal/queue"
	"github.com/loykin/patiently/internal/server"
	"github.com/loykin/patiently/internal/waiter"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
)

type command struct {
	out      io.Writer
	exitCode int
}

func newCommand(out io.Writer) *command {
	return &command{out: out}
}

func (c *command) setupLogger(cfg *config.Config) {
	lc := cfg.Logger()
	lc.Slog.Output = os.Stderr
	if !lc.Slog.Color {
		lc.Slog.Color = isatty.IsTerminal(os.Stderr.Fd())
	}
	slog.SetDefault(lc.Slog.NewSlogger())
}

// interruptible cancels on SIGINT or SIGTERM.
func interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

// Submit queues args as a job, waits for admission and runs it. The exit
// code of the command is kept in c.exitCode.
func (c *command) Submit(ctx context.Context, cfg *config.Config, f RootFlags, args []string) error {
	ctx, stop := interruptible(ctx)
	defer stop()

	store, err := queue.NewStore(cfg.QueueDir)
	if err != nil {
		return err
	}
	spec := process.Spec{Args: args, Shell: cfg.Shell, Log: cfg.Logger()}
	j, err := job.Claim(store, spec.Display(), slog.Default())
	if err != nil {
		return err
	}
	dir, err := filepath.Abs(cfg.QueueDir)
	if err != nil {
		dir = cfg.QueueDir
	}
	spec.Env = env.New().
		WithSet(env.JobID, strconv.Itoa(j.ID)).
		WithSet(env.QueueDir, dir).
		Merge(append(append([]string{}, cfg.Env...), f.Env...))
	w := waiter.New(store, waiter.Options{
		Limit:            cfg.Jobs,
		LivenessInterval: cfg.LivenessInterval,
		RetryMaxElapsed:  cfg.WatchRetryMaxElapsed,
	}, slog.Default().With("id", j.ID))

	code, err := j.Run(ctx, w, spec)
	c.exitCode = code
	if err != nil {
		return fmt.Errorf("job %d: %w", j.ID, err)
	}
	return nil
}

// Monitor renders the queue tally until it drains.
func (c *command) Monitor(ctx context.Context, cfg *config.Config, f RootFlags) error {
	ctx, stop := interruptible(ctx)
	defer stop()

	store, err := queue.NewStore(cfg.QueueDir)
	if err != nil {
		return err
	}
	if cfg.MetricsFile != "" || cfg.Listen != "" {
		if err := metrics.Register(prometheus.NewRegistry()); err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
	}

	plain := f.Plain
	if file, ok := c.out.(*os.File); ok && !isatty.IsTerminal(file.Fd()) {
		plain = true
	}
	m := monitor.New(store, c.out, monitor.Options{
		Interval:    cfg.Interval,
		MetricsFile: cfg.MetricsFile,
		Once:        f.Once,
		Plain:       plain,
	})

	if cfg.Listen != "" {
		srv, err := server.NewServer(cfg.Listen, server.NewRouter(store, m, ""))
		if err != nil {
			return err
		}
		defer func() { _ = srv.Close() }()
		slog.Info("Serving queue status", "addr", cfg.Listen)
	}

	if err := m.Run(ctx); err != nil {
		return fmt.Errorf("monitoring %s: %w", cfg.QueueDir, err)
	}
	c.exitCode = 0
	return nil
}
