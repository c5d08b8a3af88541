package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/onyx-report/onyx-cli/internal/analytics"
	"github.com/onyx-report/onyx-cli/internal/api"
	"github.com/onyx-report/onyx-cli/internal/config"
	"github.com/onyx-report/onyx-cli/internal/monitoring"
	"github.com/onyx-report/onyx-cli/internal/report"
	"github.com/onyx-report/onyx-cli/internal/scheduler"
	"github.com/onyx-report/onyx-cli/internal/store"
)

const shutdownTimeout = 15 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API and background jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reports := report.NewService(st, newAggregator(), cfg.Reports.Concurrency)
		srv := api.NewServer(st, reports, analytics.NewService(st, newAggregator()), cfg.Server)

		sched, err := buildScheduler(st, reports, cfg)
		if err != nil {
			return err
		}
		sched.Start()

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				stopScheduler(sched)
				return eris.Wrap(err, "server listen")
			}
		case <-ctx.Done():
		}

		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
		stopScheduler(sched)
		return nil
	},
}

// buildScheduler registers the alert check and draft refresh jobs. Jobs
// with an empty cron spec stay disabled.
func buildScheduler(st store.Store, reports *report.Service, c *config.Config) (*scheduler.Scheduler, error) {
	sched := scheduler.New()

	if c.Monitoring.Enabled {
		checker := monitoring.NewChecker(
			monitoring.NewCollector(st),
			monitoring.NewAlerter(c.Monitoring),
			c.Monitoring,
		)
		if err := sched.Add("alerts", c.Monitoring.Cron, checker.Run); err != nil {
			return nil, err
		}
	}

	err := sched.Add("refresh_drafts", c.Reports.RefreshCron, func(ctx context.Context) {
		if _, err := reports.RefreshDrafts(ctx, ""); err != nil {
			zap.L().Error("scheduled draft refresh failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}

func stopScheduler(sched *scheduler.Scheduler) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.Stop(ctx); err != nil {
		zap.L().Warn("scheduler stop", zap.Error(err))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
