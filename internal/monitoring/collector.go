package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/onyx-report/onyx-cli/internal/model"
	"github.com/onyx-report/onyx-cli/internal/store"
)

// CriticalBuilding is a building whose latest report is in the Critical band.
type CriticalBuilding struct {
	OrganizationID string  `json:"organization_id"`
	BuildingID     string  `json:"building_id"`
	ReportID       string  `json:"report_id"`
	FCIScore       float64 `json:"fci_score"`
}

// Snapshot holds a point-in-time view of portfolio condition across every
// organization.
type Snapshot struct {
	BuildingsReported    int                `json:"buildings_reported"`
	CriticalBuildings    []CriticalBuilding `json:"critical_buildings"`
	ImmediateRepairTotal float64            `json:"immediate_repair_total"`
	DraftReports         int                `json:"draft_reports"`
	StaleDrafts          int                `json:"stale_drafts"`
	StaleDraftDays       int                `json:"stale_draft_days"`
	CollectedAt          time.Time          `json:"collected_at"`
}

// ReportSource is the subset of store.Store the collector reads.
type ReportSource interface {
	LatestReports(ctx context.Context, orgID string, perBuilding int) ([]model.Report, error)
	ListReports(ctx context.Context, filter store.ReportFilter) ([]model.Report, error)
}

// Collector gathers portfolio metrics from stored reports.
type Collector struct {
	reports ReportSource
	now     func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(src ReportSource) *Collector {
	return &Collector{reports: src, now: func() time.Time { return time.Now().UTC() }}
}

// Collect builds a snapshot. Draft reports generated more than
// staleDraftDays ago count as stale; a non-positive value disables the
// staleness count.
func (c *Collector) Collect(ctx context.Context, staleDraftDays int) (*Snapshot, error) {
	now := c.now()
	snap := &Snapshot{StaleDraftDays: staleDraftDays, CollectedAt: now}

	latest, err := c.reports.LatestReports(ctx, "", 1)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: latest reports")
	}
	snap.BuildingsReported = len(latest)
	for _, r := range latest {
		snap.ImmediateRepairTotal += r.ImmediateRepairCost
		if r.Band == model.BandCritical {
			snap.CriticalBuildings = append(snap.CriticalBuildings, CriticalBuilding{
				OrganizationID: r.OrganizationID,
				BuildingID:     r.BuildingID,
				ReportID:       r.ID,
				FCIScore:       r.FCIScore,
			})
		}
	}

	cutoff := now.Add(-time.Duration(staleDraftDays) * 24 * time.Hour)
	for offset := 0; ; offset += store.MaxListLimit {
		drafts, err := c.reports.ListReports(ctx, store.ReportFilter{
			Status: model.ReportStatusDraft,
			Limit:  store.MaxListLimit,
			Offset: offset,
		})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list drafts")
		}
		snap.DraftReports += len(drafts)
		if staleDraftDays > 0 {
			for _, r := range drafts {
				if r.GeneratedAt.Before(cutoff) {
					snap.StaleDrafts++
				}
			}
		}
		if len(drafts) < store.MaxListLimit {
			break
		}
	}
	return snap, nil
}
