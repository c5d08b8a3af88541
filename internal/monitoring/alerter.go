package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/onyx-report/onyx-cli/internal/config"
	"github.com/onyx-report/onyx-cli/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertCriticalFCI          AlertType = "critical_fci"
	AlertImmediateCostOverrun AlertType = "immediate_cost_overrun"
	AlertStaleDrafts          AlertType = "stale_drafts"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("webhook", "send_alert")
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  retry,
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if n := len(snap.CriticalBuildings); n > a.cfg.CriticalBuildingsMax {
		ids := make([]string, 0, n)
		for _, b := range snap.CriticalBuildings {
			ids = append(ids, b.BuildingID)
		}
		alerts = append(alerts, Alert{
			Type:     AlertCriticalFCI,
			Severity: "high",
			Message: fmt.Sprintf("%d building(s) in Critical condition (allowed %d)",
				n, a.cfg.CriticalBuildingsMax),
			Details: map[string]any{
				"critical_count": n,
				"threshold":      a.cfg.CriticalBuildingsMax,
				"building_ids":   ids,
			},
			Timestamp: now,
		})
	}

	if a.cfg.ImmediateCostThreshold > 0 && snap.ImmediateRepairTotal > a.cfg.ImmediateCostThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertImmediateCostOverrun,
			Severity: "medium",
			Message: fmt.Sprintf("Immediate repair backlog $%.2f exceeds threshold $%.2f across %d building(s)",
				snap.ImmediateRepairTotal, a.cfg.ImmediateCostThreshold, snap.BuildingsReported),
			Details: map[string]any{
				"immediate_total": snap.ImmediateRepairTotal,
				"threshold":       a.cfg.ImmediateCostThreshold,
			},
			Timestamp: now,
		})
	}

	if snap.StaleDraftDays > 0 && snap.StaleDrafts > a.cfg.StaleDraftsMax {
		alerts = append(alerts, Alert{
			Type:     AlertStaleDrafts,
			Severity: "low",
			Message: fmt.Sprintf("%d draft report(s) older than %d days",
				snap.StaleDrafts, snap.StaleDraftDays),
			Details: map[string]any{
				"stale_drafts": snap.StaleDrafts,
				"drafts":       snap.DraftReports,
				"threshold":    a.cfg.StaleDraftsMax,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		err := resilience.Do(ctx, a.retry, func(ctx context.Context) error {
			return a.sendWebhook(ctx, alert)
		})
		if err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL. Retryable status
// codes come back as resilience.TransientError.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
