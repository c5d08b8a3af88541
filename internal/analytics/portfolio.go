// Package analytics summarizes FCI results across an organization's
// building portfolio.
package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/onyx-report/onyx-cli/internal/fci"
	"github.com/onyx-report/onyx-cli/internal/model"
	"github.com/onyx-report/onyx-cli/internal/store"
)

// Trend describes the direction of a building's FCI between its two most
// recent reports.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
	TrendNoData    Trend = "no_data"
)

// trendTolerance is the FCI change below which a building is stable.
const trendTolerance = 0.01

// BuildingRow is one building in the portfolio view.
type BuildingRow struct {
	BuildingID       string     `json:"building_id"`
	Name             string     `json:"name"`
	Type             string     `json:"type,omitempty"`
	YearBuilt        int        `json:"year_built,omitempty"`
	Assessed         bool       `json:"assessed"`
	FCIScore         float64    `json:"fci_score"`
	Band             model.Band `json:"band"`
	Estimated        bool       `json:"estimated,omitempty"`
	ReplacementValue float64    `json:"replacement_value"`
	TotalRepairCost  float64    `json:"total_repair_cost"`
	ImmediateRepair  float64    `json:"immediate_repair_cost"`
	Trend            Trend      `json:"trend"`
	LastReportAt     *time.Time `json:"last_report_at,omitempty"`
}

// Portfolio is the organization-wide rollup. Averages and totals cover
// assessed buildings only; estimates appear on their rows.
type Portfolio struct {
	OrganizationID       string             `json:"organization_id"`
	Buildings            int                `json:"buildings"`
	Assessed             int                `json:"assessed"`
	AverageFCI           float64            `json:"average_fci"`
	TotalRepairCost      float64            `json:"total_repair_cost"`
	ImmediateRepairCost  float64            `json:"immediate_repair_cost"`
	TotalReplacementCost float64            `json:"total_replacement_value"`
	Bands                map[model.Band]int `json:"bands"`
	Rows                 []BuildingRow      `json:"rows"`
}

// Service builds portfolio views from stored reports.
type Service struct {
	store store.Store
	agg   *fci.Aggregator
	now   func() time.Time
}

// NewService creates an analytics Service.
func NewService(st store.Store, agg *fci.Aggregator) *Service {
	if agg == nil {
		agg = fci.NewAggregator(nil, fci.DefaultBands())
	}
	return &Service{store: st, agg: agg, now: time.Now}
}

// Portfolio returns the rollup for one organization.
func (s *Service) Portfolio(ctx context.Context, orgID string) (*Portfolio, error) {
	buildings, err := s.allBuildings(ctx, orgID)
	if err != nil {
		return nil, err
	}
	latest, err := s.store.LatestReports(ctx, orgID, 2)
	if err != nil {
		return nil, eris.Wrap(err, "analytics: latest reports")
	}

	// LatestReports is ordered newest first within a building.
	byBuilding := make(map[string][]model.Report)
	for _, r := range latest {
		byBuilding[r.BuildingID] = append(byBuilding[r.BuildingID], r)
	}

	p := &Portfolio{
		OrganizationID: orgID,
		Buildings:      len(buildings),
		Bands: map[model.Band]int{
			model.BandGood: 0, model.BandFair: 0, model.BandPoor: 0, model.BandCritical: 0,
		},
		Rows: make([]BuildingRow, 0, len(buildings)),
	}
	year := s.now().Year()
	var fciSum float64

	for _, b := range buildings {
		row := BuildingRow{
			BuildingID: b.ID,
			Name:       b.Name,
			Type:       b.Type,
			YearBuilt:  b.YearBuilt,
			Trend:      TrendNoData,
		}
		reports := byBuilding[b.ID]
		if len(reports) == 0 {
			est := s.agg.Estimate(b, year)
			row.FCIScore = est.FCIScore
			row.Band = est.Band
			row.Estimated = true
			row.ReplacementValue = est.ReplacementValue
			row.TotalRepairCost = est.TotalRepairCost
			row.ImmediateRepair = est.ImmediateRepairCost
			p.Rows = append(p.Rows, row)
			continue
		}

		cur := reports[0]
		row.Assessed = true
		row.FCIScore = cur.FCIScore
		row.Band = cur.Band
		row.ReplacementValue = cur.ReplacementValue
		row.TotalRepairCost = cur.TotalRepairCost
		row.ImmediateRepair = cur.ImmediateRepairCost
		generated := cur.GeneratedAt
		row.LastReportAt = &generated
		if len(reports) > 1 {
			row.Trend = TrendOf(cur.FCIScore, reports[1].FCIScore)
		}

		p.Assessed++
		p.Bands[cur.Band]++
		fciSum += cur.FCIScore
		p.TotalRepairCost += cur.TotalRepairCost
		p.ImmediateRepairCost += cur.ImmediateRepairCost
		p.TotalReplacementCost += cur.ReplacementValue
		p.Rows = append(p.Rows, row)
	}
	if p.Assessed > 0 {
		p.AverageFCI = fciSum / float64(p.Assessed)
	}

	// Worst condition first.
	sort.SliceStable(p.Rows, func(i, j int) bool {
		if p.Rows[i].FCIScore != p.Rows[j].FCIScore {
			return p.Rows[i].FCIScore > p.Rows[j].FCIScore
		}
		return p.Rows[i].Name < p.Rows[j].Name
	})
	return p, nil
}

// TrendOf compares the current FCI against the previous one. A lower FCI
// is an improvement.
func TrendOf(current, previous float64) Trend {
	switch d := current - previous; {
	case d <= -trendTolerance:
		return TrendImproving
	case d >= trendTolerance:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func (s *Service) allBuildings(ctx context.Context, orgID string) ([]model.Building, error) {
	var out []model.Building
	for offset := 0; ; offset += store.MaxListLimit {
		page, err := s.store.ListBuildings(ctx, store.BuildingFilter{
			OrganizationID: orgID,
			Limit:          store.MaxListLimit,
			Offset:         offset,
		})
		if err != nil {
			return nil, eris.Wrap(err, "analytics: list buildings")
		}
		out = append(out, page...)
		if len(page) < store.MaxListLimit {
			return out, nil
		}
	}
}
