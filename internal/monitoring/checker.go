package monitoring

import (
	"context"

	"go.uber.org/zap"

	"github.com/onyx-report/onyx-cli/internal/config"
)

// Checker runs one collect, evaluate and send cycle. The scheduler invokes
// it on the monitoring cron.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker creates an alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// CheckResult reports what a single check found and delivered.
type CheckResult struct {
	Snapshot *Snapshot `json:"snapshot"`
	Alerts   []Alert   `json:"alerts"`
	Sent     int       `json:"sent"`
}

// Check collects a snapshot and evaluates it. Alerts are delivered unless
// dryRun is set.
func (c *Checker) Check(ctx context.Context, dryRun bool) (*CheckResult, error) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.collector.Collect(ctx, c.cfg.StaleDraftDays)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return nil, err
	}

	res := &CheckResult{Snapshot: snap, Alerts: c.alerter.Evaluate(snap)}
	if len(res.Alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return res, nil
	}
	if !dryRun {
		res.Sent = c.alerter.SendAlerts(ctx, res.Alerts)
	}

	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(res.Alerts)),
		zap.Int("alerts_sent", res.Sent),
		zap.Bool("dry_run", dryRun),
	)
	return res, nil
}

// Run performs a check and logs any error. It matches the scheduler's job
// signature.
func (c *Checker) Run(ctx context.Context) {
	_, _ = c.Check(ctx, false)
}
