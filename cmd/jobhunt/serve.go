package main

import (
	"context"
	"errors"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/jobhunt/internal/api"
	"github.com/TheMichaelB/jobhunt/internal/events"
	"github.com/TheMichaelB/jobhunt/internal/scheduler"
	"github.com/TheMichaelB/jobhunt/internal/services/strategy"
)

const scheduledTask = "analyze_publish"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduled analyze/publish job",
	Long: `Serve exposes the job and strategy operations over HTTP and, unless
--no-schedule is set, analyzes pending listings and publishes a strategy
summary on server.schedule. Runs that find the database locked are
skipped until the next tick.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveAddr   string
	noSchedule  bool
	stopTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from server.addr)")
	serveCmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "Serve the API only")
	serveCmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 30*time.Second, "Wait this long for a running task on shutdown")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	sched := scheduler.New(logger)
	if !noSchedule && cfg.Server.Schedule != "" {
		task := scheduler.Task{
			Name: scheduledTask,
			Run: scheduler.Steps(
				func(ctx context.Context) error {
					_, err := apiClient.Jobs.AnalyzePending(ctx, 0)
					return err
				},
				func(ctx context.Context) error {
					_, err := apiClient.Strategy.Publish(ctx, 0)
					if errors.Is(err, strategy.ErrNotifyFailed) {
						events.FromContext(ctx).WithError(err).Warn("Strategy stored but not announced")
						return nil
					}
					return err
				},
			),
		}
		if err := sched.Add(cfg.Server.Schedule, task); err != nil {
			return fail("Schedule", err)
		}
		sched.Start()
		if next, ok := sched.Next(scheduledTask); ok {
			logger.WithField("next", next).Info("Scheduler started")
		}
	}
	defer sched.Stop(stopTimeout)

	srv := api.New(api.Options{
		Jobs:     apiClient.Jobs,
		Strategy: apiClient.Strategy,
		Lock:     apiClient.Lock,
		Gatherer: apiClient.Registry,
		Logger:   logger,
	})

	notifySystemd()
	stopWatchdog := startWatchdog()

	err := srv.Run(ctx, addr)

	if stopWatchdog != nil {
		stopWatchdog()
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if err != nil {
		return fail("Serve", err)
	}
	logger.Info("Shutdown complete")
	return nil
}

// notifySystemd sends READY=1 when running under systemd.
func notifySystemd() {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.WithError(err).Warn("Failed to notify systemd")
	} else if sent {
		logger.Debug("Notified systemd ready")
	}
}

// startWatchdog pings the systemd watchdog at half its interval.
// Returns nil when no watchdog is configured.
func startWatchdog() func() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return nil
	}

	logger.WithField("interval", interval).Info("Starting systemd watchdog")

	ticker := time.NewTicker(interval / 2)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				ticker.Stop()
				return
			case <-ticker.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()

	return func() { close(done) }
}
