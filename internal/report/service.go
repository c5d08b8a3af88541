// Package report turns completed assessments into stored FCI reports.
package report

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/onyx-report/onyx-cli/internal/cost"
	"github.com/onyx-report/onyx-cli/internal/fci"
	"github.com/onyx-report/onyx-cli/internal/model"
	"github.com/onyx-report/onyx-cli/internal/resilience"
	"github.com/onyx-report/onyx-cli/internal/store"
)

var (
	// ErrAlreadyCompleted is returned when completing an assessment twice.
	ErrAlreadyCompleted = eris.New("report: assessment already completed")
	// ErrNotCompleted is returned when finalizing the report of an
	// assessment that is still open.
	ErrNotCompleted = eris.New("report: assessment is not completed")
)

const defaultConcurrency = 4

// Service computes FCI results and persists reports.
type Service struct {
	store       store.Store
	agg         *fci.Aggregator
	concurrency int
	retry       resilience.RetryConfig
	now         func() time.Time
}

// NewService creates a report Service. concurrency bounds RefreshDrafts.
func NewService(st store.Store, agg *fci.Aggregator, concurrency int) *Service {
	if agg == nil {
		agg = fci.NewAggregator(nil, fci.DefaultBands())
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Service{
		store:       st,
		agg:         agg,
		concurrency: concurrency,
		retry:       resilience.StoreRetryConfig(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Calculation is an unsaved FCI computation for one assessment.
type Calculation struct {
	Assessment *model.Assessment `json:"assessment"`
	Building   *model.Building   `json:"building"`
	Result     fci.Result        `json:"result"`
}

// Calculate computes the FCI of an assessment without persisting anything.
func (s *Service) Calculate(ctx context.Context, orgID, assessmentID string) (*Calculation, error) {
	a, err := s.store.GetAssessment(ctx, orgID, assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "report: load assessment")
	}
	b, err := s.store.GetBuilding(ctx, a.OrganizationID, a.BuildingID)
	if err != nil {
		return nil, eris.Wrap(err, "report: load building")
	}
	elems, err := s.store.ListAssessmentElements(ctx, a.ID, "")
	if err != nil {
		return nil, eris.Wrap(err, "report: load elements")
	}

	in := fci.Input{
		ReplacementValue: cost.ReplacementValue(*b),
		Elements:         make([]fci.ElementInput, 0, len(elems)),
	}
	for _, e := range elems {
		ei := fci.ElementInput{
			ElementID:       e.ElementID,
			MajorGroup:      e.MajorGroup,
			ConditionRating: e.ConditionRating,
			RepairCost:      e.RepairCost,
		}
		for _, d := range e.Deficiencies {
			ei.Deficiencies = append(ei.Deficiencies, fci.DeficiencyInput{Category: d.Category, Cost: d.Cost})
		}
		in.Elements = append(in.Elements, ei)
	}

	res := s.agg.Compute(in)
	for _, w := range res.Warnings {
		zap.L().Warn("report: fci warning",
			zap.String("assessment_id", a.ID),
			zap.String("building_id", b.ID),
			zap.String("warning", w),
		)
	}
	return &Calculation{Assessment: a, Building: b, Result: res}, nil
}

// Generate computes the FCI of an assessment and stores it as the draft
// report. A finalized report yields store.ErrReportFinal.
func (s *Service) Generate(ctx context.Context, orgID, assessmentID string) (*model.Report, error) {
	calc, err := s.Calculate(ctx, orgID, assessmentID)
	if err != nil {
		return nil, err
	}
	r := s.buildReport(calc, s.now())
	if err := s.store.UpsertReport(ctx, r); err != nil {
		return nil, eris.Wrap(err, "report: save")
	}

	zap.L().Info("report generated",
		zap.String("component", "report"),
		zap.String("report_id", r.ID),
		zap.String("assessment_id", r.AssessmentID),
		zap.Float64("fci", r.FCIScore),
		zap.String("band", string(r.Band)),
	)
	return r, nil
}

func (s *Service) buildReport(calc *Calculation, now time.Time) *model.Report {
	res := calc.Result
	return &model.Report{
		AssessmentID:          calc.Assessment.ID,
		BuildingID:            calc.Building.ID,
		OrganizationID:        calc.Assessment.OrganizationID,
		Title:                 fmt.Sprintf("%s Facility Condition Assessment", calc.Building.Name),
		Status:                model.ReportStatusDraft,
		ReplacementValue:      res.ReplacementValue,
		TotalRepairCost:       res.TotalRepairCost,
		ImmediateRepairCost:   res.ImmediateRepairCost,
		ShortTermRepairCost:   res.ShortTermRepairCost,
		LongTermRepairCost:    res.LongTermRepairCost,
		UnallocatedRepairCost: res.UnallocatedRepairCost,
		FCIScore:              res.FCIScore,
		Band:                  res.Band,
		ElementCount:          len(res.Elements),
		Categories:            res.Categories,
		Notes:                 s.agg.Notes(res, now),
		GeneratedAt:           now,
	}
}

// Complete generates the report for an assessment and marks the assessment
// completed, storing the rendered notes on it.
func (s *Service) Complete(ctx context.Context, orgID, assessmentID string) (*model.Assessment, *model.Report, error) {
	a, err := s.store.GetAssessment(ctx, orgID, assessmentID)
	if err != nil {
		return nil, nil, eris.Wrap(err, "report: load assessment")
	}
	if a.Status == model.AssessmentStatusCompleted {
		return nil, nil, eris.Wrapf(ErrAlreadyCompleted, "report: assessment %s", a.ID)
	}

	r, err := s.Generate(ctx, orgID, assessmentID)
	if err != nil {
		return nil, nil, err
	}
	done, err := s.store.CompleteAssessment(ctx, orgID, assessmentID, r.Notes)
	if err != nil {
		return nil, nil, eris.Wrap(err, "report: complete assessment")
	}
	return done, r, nil
}

// Finalize locks a draft report against further regeneration. Only reports
// of completed assessments can be finalized, so completion can always
// regenerate the draft.
func (s *Service) Finalize(ctx context.Context, orgID, reportID string) (*model.Report, error) {
	cur, err := s.store.GetReport(ctx, orgID, reportID)
	if err != nil {
		return nil, eris.Wrap(err, "report: finalize")
	}
	if cur.Status == model.ReportStatusFinal {
		return nil, eris.Wrapf(store.ErrReportFinal, "report: finalize %s", reportID)
	}
	a, err := s.store.GetAssessment(ctx, orgID, cur.AssessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "report: finalize: load assessment")
	}
	if a.Status != model.AssessmentStatusCompleted {
		return nil, eris.Wrapf(ErrNotCompleted, "report: finalize %s: assessment %s is %s", reportID, a.ID, a.Status)
	}

	r, err := s.store.FinalizeReport(ctx, orgID, reportID)
	if err != nil {
		return nil, eris.Wrap(err, "report: finalize")
	}
	return r, nil
}

// RefreshStats summarizes a RefreshDrafts run.
type RefreshStats struct {
	Refreshed int `json:"refreshed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// RefreshDrafts regenerates every draft report whose assessment is
// completed. Transient store errors are retried; remaining failures are
// logged and counted, not returned.
func (s *Service) RefreshDrafts(ctx context.Context, orgID string) (RefreshStats, error) {
	log := zap.L().With(zap.String("component", "report.refresh"), zap.String("organization_id", orgID))

	drafts, err := s.listDrafts(ctx, orgID)
	if err != nil {
		return RefreshStats{}, err
	}

	var refreshed, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, d := range drafts {
		g.Go(func() error {
			a, err := s.store.GetAssessment(gctx, d.OrganizationID, d.AssessmentID)
			if err != nil {
				log.Warn("load assessment failed", zap.String("report_id", d.ID), zap.Error(err))
				failed.Add(1)
				return nil
			}
			if a.Status != model.AssessmentStatusCompleted {
				skipped.Add(1)
				return nil
			}
			err = resilience.Do(gctx, s.retry, func(ctx context.Context) error {
				_, err := s.Generate(ctx, d.OrganizationID, d.AssessmentID)
				return err
			})
			if err != nil {
				if errors.Is(err, store.ErrReportFinal) {
					skipped.Add(1)
					return nil
				}
				log.Warn("regenerate failed", zap.String("report_id", d.ID), zap.Error(err))
				failed.Add(1)
				return nil
			}
			refreshed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RefreshStats{}, eris.Wrap(err, "report: refresh drafts")
	}

	stats := RefreshStats{
		Refreshed: int(refreshed.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
	}
	log.Info("draft refresh complete",
		zap.Int("drafts", len(drafts)),
		zap.Int("refreshed", stats.Refreshed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (s *Service) listDrafts(ctx context.Context, orgID string) ([]model.Report, error) {
	var out []model.Report
	for offset := 0; ; offset += store.MaxListLimit {
		page, err := s.store.ListReports(ctx, store.ReportFilter{
			OrganizationID: orgID,
			Status:         model.ReportStatusDraft,
			Limit:          store.MaxListLimit,
			Offset:         offset,
		})
		if err != nil {
			return nil, eris.Wrap(err, "report: list drafts")
		}
		out = append(out, page...)
		if len(page) < store.MaxListLimit {
			return out, nil
		}
	}
}
