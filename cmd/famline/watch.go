package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/famline/famline/internal/config"
	"github.com/famline/famline/internal/metrics"
	"github.com/famline/famline/internal/runner"
	"github.com/famline/famline/internal/systemd"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the portal on an interval and export usage as Prometheus metrics",
	Long: `Run as a long-lived service: poll the self-care portal on the configured
interval, publish per-line usage gauges on the metrics endpoint and notify
systemd readiness/watchdog. Failed polls are retried with exponential backoff
without tearing the service down.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	logger.Info().
		Str("version", version).
		Str("interval", cfg.Watch.Interval).
		Msg("Starting famline watch")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := runner.New(cfg, runner.Options{CacheTTL: cfg.WatchCacheTTL()}, logger)
	if err != nil {
		return err
	}

	metricsAddr := fmt.Sprintf("%s:%d", cfg.Watch.BindAddress, cfg.Watch.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	defer func() {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}()

	systemd.NotifyReady(logger)
	defer systemd.NotifyStopping()

	interval := cfg.WatchInterval()
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 30 * time.Second
	retry.MaxInterval = interval
	retry.MaxElapsedTime = 0 // keep retrying until cancelled

	for {
		start := time.Now()
		res, err := r.Run(ctx)
		metrics.PollDuration.Observe(time.Since(start).Seconds())

		var wait time.Duration
		if err != nil {
			if ctx.Err() != nil {
				logger.Info().Msg("Shutdown signal received, stopping watch")
				return nil
			}
			metrics.PollsTotal.WithLabelValues("error").Inc()
			wait = retry.NextBackOff()
			logger.Warn().Err(err).Dur("retry_in", wait).Msg("Poll failed")
		} else {
			metrics.PollsTotal.WithLabelValues("success").Inc()
			metrics.Publish(res.Report)
			systemd.NotifyWatchdog()
			retry.Reset()
			wait = interval
			logger.Info().
				Int("lines", res.Report.Totals.Lines).
				Int("unavailable", res.Report.Totals.Unavailable).
				Msg("Poll complete")
		}

		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutdown signal received, stopping watch")
			return nil
		case <-time.After(wait):
		}
	}
}
