package report

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyx-report/onyx-cli/internal/fci"
	"github.com/onyx-report/onyx-cli/internal/model"
	"github.com/onyx-report/onyx-cli/internal/store"
)

type env struct {
	store    store.Store
	svc      *Service
	org      *model.Organization
	building *model.Building
	elements map[string]string // code -> element id
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "report.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(ctx))

	_, err = s.SeedElements(ctx, []model.Element{
		{Code: "B3010", MajorGroup: "Shell", GroupElement: "Roofing", IndividualElement: "Roof Coverings"},
		{Code: "D5010", MajorGroup: "Services", GroupElement: "Electrical", IndividualElement: "Electrical Service & Distribution"},
	})
	require.NoError(t, err)
	elems, err := s.ListElements(ctx, store.ElementFilter{})
	require.NoError(t, err)
	ids := make(map[string]string)
	for _, e := range elems {
		ids[e.Code] = e.ID
	}

	org, err := s.CreateOrganization(ctx, "Springfield Schools")
	require.NoError(t, err)
	b := &model.Building{OrganizationID: org.ID, Name: "Lincoln Elementary", ReplacementValue: 2_000_000}
	require.NoError(t, s.CreateBuilding(ctx, b))

	svc := NewService(s, fci.NewAggregator(nil, fci.DefaultBands()), 2)
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	return &env{store: s, svc: svc, org: org, building: b, elements: ids}
}

// assessment creates an assessment with one element rated 5 and a
// life-safety deficiency of 16,000.
func (e *env) assessment(t *testing.T) *model.Assessment {
	t.Helper()
	ctx := context.Background()

	a := &model.Assessment{OrganizationID: e.org.ID, BuildingID: e.building.ID}
	require.NoError(t, e.store.CreateAssessment(ctx, a))

	rating := 5
	require.NoError(t, e.store.UpsertAssessmentElement(ctx, &model.AssessmentElement{
		AssessmentID:    a.ID,
		ElementID:       e.elements["B3010"],
		ConditionRating: &rating,
		Deficiencies:    []model.Deficiency{{Description: "Blocked egress", Cost: 16_000, Category: "Life Safety"}},
	}))
	return a
}

func TestCalculate(t *testing.T) {
	e := newEnv(t)
	a := e.assessment(t)

	calc, err := e.svc.Calculate(context.Background(), e.org.ID, a.ID)
	require.NoError(t, err)
	res := calc.Result
	assert.Equal(t, 2_000_000.0, res.ReplacementValue)
	assert.InDelta(t, 16_000, res.TotalRepairCost, 1e-9)
	assert.InDelta(t, 11_200, res.ImmediateRepairCost, 1e-9)
	assert.InDelta(t, 3_200, res.ShortTermRepairCost, 1e-9)
	assert.InDelta(t, 1_600, res.LongTermRepairCost, 1e-9)
	assert.InDelta(t, 0.008, res.FCIScore, 1e-12)
	assert.Equal(t, model.BandGood, res.Band)
	assert.Equal(t, "Lincoln Elementary", calc.Building.Name)

	// Nothing was persisted.
	_, err = e.store.GetReportByAssessment(context.Background(), e.org.ID, a.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestCalculate_OtherOrganization(t *testing.T) {
	e := newEnv(t)
	a := e.assessment(t)

	_, err := e.svc.Calculate(context.Background(), "other-org", a.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestCalculate_UnratedElementCountsTowardTotal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.assessment(t)

	require.NoError(t, e.store.UpsertAssessmentElement(ctx, &model.AssessmentElement{
		AssessmentID: a.ID,
		ElementID:    e.elements["D5010"],
	}))

	calc, err := e.svc.Calculate(ctx, e.org.ID, a.ID)
	require.NoError(t, err)
	res := calc.Result
	assert.InDelta(t, 24_000, res.TotalRepairCost, 1e-9)
	assert.InDelta(t, 8_000, res.UnallocatedRepairCost, 1e-9)
	assert.InDelta(t, res.TotalRepairCost,
		res.ImmediateRepairCost+res.ShortTermRepairCost+res.LongTermRepairCost+res.UnallocatedRepairCost, 1e-9)
}

func TestGenerate_Idempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.assessment(t)

	first, err := e.svc.Generate(ctx, e.org.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusDraft, first.Status)
	assert.Equal(t, "Lincoln Elementary Facility Condition Assessment", first.Title)
	assert.Equal(t, 1, first.ElementCount)
	assert.Contains(t, first.Notes, "FCI Score: 0.0080")

	second, err := e.svc.Generate(ctx, e.org.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.TotalRepairCost, second.TotalRepairCost)
	assert.Equal(t, first.FCIScore, second.FCIScore)
	assert.Equal(t, first.Categories, second.Categories)

	stored, err := e.store.GetReport(ctx, e.org.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.FCIScore, stored.FCIScore)
	require.Len(t, stored.Categories, 1)
	assert.Equal(t, fci.CategoryLifeSafety, stored.Categories[0].Category)
}

func TestGenerate_FinalReportIsKept(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.assessment(t)

	_, r, err := e.svc.Complete(ctx, e.org.ID, a.ID)
	require.NoError(t, err)
	_, err = e.svc.Finalize(ctx, e.org.ID, r.ID)
	require.NoError(t, err)

	_, err = e.svc.Generate(ctx, e.org.ID, a.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrReportFinal))

	_, err = e.svc.Finalize(ctx, e.org.ID, r.ID)
	assert.True(t, errors.Is(err, store.ErrReportFinal))
}

func TestFinalize_RequiresCompletedAssessment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.assessment(t)

	r, err := e.svc.Generate(ctx, e.org.ID, a.ID)
	require.NoError(t, err)

	_, err = e.svc.Finalize(ctx, e.org.ID, r.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotCompleted))

	got, err := e.store.GetReport(ctx, e.org.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusDraft, got.Status)

	// The draft stays open, so completion can still regenerate it.
	done, cr, err := e.svc.Complete(ctx, e.org.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AssessmentStatusCompleted, done.Status)
	assert.Equal(t, r.ID, cr.ID)

	final, err := e.svc.Finalize(ctx, e.org.ID, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusFinal, final.Status)
}

func TestFinalize_NotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Finalize(context.Background(), e.org.ID, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestGenerate_NoReplacementValue(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	b := &model.Building{OrganizationID: e.org.ID, Name: "Annex"}
	require.NoError(t, e.store.CreateBuilding(ctx, b))
	a := &model.Assessment{OrganizationID: e.org.ID, BuildingID: b.ID}
	require.NoError(t, e.store.CreateAssessment(ctx, a))

	r, err := e.svc.Generate(ctx, e.org.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.FCIScore)
	assert.Equal(t, model.BandGood, r.Band)
	assert.Contains(t, r.Notes, fci.WarnNoReplacementValue)
}

func TestComplete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.assessment(t)

	done, r, err := e.svc.Complete(ctx, e.org.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AssessmentStatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, r.Notes, done.Notes)
	assert.Contains(t, done.Notes, "Generated on: 2025-03-01T12:00:00Z")

	_, _, err = e.svc.Complete(ctx, e.org.ID, a.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyCompleted))
}

func TestRefreshDrafts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	completed := e.assessment(t)
	_, _, err := e.svc.Complete(ctx, e.org.ID, completed.ID)
	require.NoError(t, err)

	pending := e.assessment(t)
	_, err = e.svc.Generate(ctx, e.org.ID, pending.ID)
	require.NoError(t, err)

	finalized := e.assessment(t)
	_, fr, err := e.svc.Complete(ctx, e.org.ID, finalized.ID)
	require.NoError(t, err)
	_, err = e.svc.Finalize(ctx, e.org.ID, fr.ID)
	require.NoError(t, err)

	// Change the completed assessment so the refresh has something to pick up.
	rating := 3
	require.NoError(t, e.store.UpsertAssessmentElement(ctx, &model.AssessmentElement{
		AssessmentID:    completed.ID,
		ElementID:       e.elements["D5010"],
		ConditionRating: &rating,
	}))

	stats, err := e.svc.RefreshDrafts(ctx, e.org.ID)
	require.NoError(t, err)
	assert.Equal(t, RefreshStats{Refreshed: 1, Skipped: 1, Failed: 0}, stats)

	r, err := e.store.GetReportByAssessment(ctx, e.org.ID, completed.ID)
	require.NoError(t, err)
	assert.InDelta(t, 26_000, r.TotalRepairCost, 1e-9)
	assert.Equal(t, 2, r.ElementCount)
}

func TestRefreshDrafts_Empty(t *testing.T) {
	e := newEnv(t)

	stats, err := e.svc.RefreshDrafts(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, RefreshStats{}, stats)
}
