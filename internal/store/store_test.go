package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyx-report/onyx-cli/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

var testElements = []model.Element{
	{Code: "A1010", MajorGroup: "Substructure", GroupElement: "Foundations", IndividualElement: "Standard Foundations", Units: "SF", UsefulLife: 100},
	{Code: "B3010", MajorGroup: "Shell", GroupElement: "Roofing", IndividualElement: "Roof Coverings", Units: "SF", UsefulLife: 20},
	{Code: "D5010", MajorGroup: "Services", GroupElement: "Electrical", IndividualElement: "Electrical Service & Distribution", Units: "EA", UsefulLife: 40},
}

// fixture holds one organization with a building, an assessment and the
// seeded element catalog.
type fixture struct {
	org        *model.Organization
	building   *model.Building
	assessment *model.Assessment
	elements   map[string]model.Element
}

func newFixture(t *testing.T, s Store) fixture {
	t.Helper()
	ctx := context.Background()

	org, err := s.CreateOrganization(ctx, "Springfield Schools")
	require.NoError(t, err)

	b := &model.Building{
		OrganizationID: org.ID,
		Name:           "Lincoln Elementary",
		Type:           "school-elementary",
		YearBuilt:      1975,
		SquareFootage:  48000,
		City:           "Springfield",
	}
	require.NoError(t, s.CreateBuilding(ctx, b))

	a := &model.Assessment{OrganizationID: org.ID, BuildingID: b.ID, Description: "Annual walkthrough"}
	require.NoError(t, s.CreateAssessment(ctx, a))

	_, err = s.SeedElements(ctx, testElements)
	require.NoError(t, err)
	elems, err := s.ListElements(ctx, ElementFilter{})
	require.NoError(t, err)

	byCode := make(map[string]model.Element)
	for _, e := range elems {
		byCode[e.Code] = e
	}
	return fixture{org: org, building: b, assessment: a, elements: byCode}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("OrganizationCRUD", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		o, err := s.CreateOrganization(ctx, "Acme Facilities")
		require.NoError(t, err)
		assert.NotEmpty(t, o.ID)

		got, err := s.GetOrganization(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, "Acme Facilities", got.Name)
		assert.WithinDuration(t, o.CreatedAt, got.CreatedAt, time.Second)

		_, err = s.CreateOrganization(ctx, "Beta County")
		require.NoError(t, err)
		all, err := s.ListOrganizations(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "Acme Facilities", all[0].Name)

		_, err = s.GetOrganization(ctx, "nope")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("BuildingCRUD", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		f := newFixture(t, s)

		got, err := s.GetBuilding(ctx, f.org.ID, f.building.ID)
		require.NoError(t, err)
		assert.Equal(t, "Lincoln Elementary", got.Name)
		assert.Equal(t, model.BuildingStatusActive, got.Status)
		assert.Equal(t, 48000.0, got.SquareFootage)

		got.ReplacementValue = 9_600_000
		got.Status = model.BuildingStatusInactive
		require.NoError(t, s.UpdateBuilding(ctx, got))

		again, err := s.GetBuilding(ctx, f.org.ID, f.building.ID)
		require.NoError(t, err)
		assert.Equal(t, 9_600_000.0, again.ReplacementValue)
		assert.Equal(t, model.BuildingStatusInactive, again.Status)

		require.NoError(t, s.DeleteBuilding(ctx, f.org.ID, f.building.ID))
		_, err = s.GetBuilding(ctx, f.org.ID, f.building.ID)
		assert.True(t, errors.Is(err, ErrNotFound))

		// Cascades to assessments.
		_, err = s.GetAssessment(ctx, f.org.ID, f.assessment.ID)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("ListBuildingsFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		f := newFixture(t, s)

		require.NoError(t, s.CreateBuilding(ctx, &model.Building{
			OrganizationID: f.org.ID, Name: "District Office", Type: "office-single", City: "Shelbyville",
		}))

		all, err := s.ListBuildings(ctx, BuildingFilter{OrganizationID: f.org.ID})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		schools, err := s.ListBuildings(ctx, BuildingFilter{OrganizationID: f.org.ID, Type: "school-elementary"})
		require.NoError(t, err)
		require.Len(t, schools, 1)
		assert.Equal(t, f.building.ID, schools[0].ID)

		search, err := s.ListBuildings(ctx, BuildingFilter{OrganizationID: f.org.ID, Search: "shelby"})
		require.NoError(t, err)
		require.Len(t, search, 1)
		assert.Equal(t, "District Office", search[0].Name)

		page, err := s.ListBuildings(ctx, BuildingFilter{OrganizationID: f.org.ID, Limit: 1})
		require.NoError(t, err)
		assert.Len(t, page, 1)
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		f := newFixture(t, s)

		other, err := s.CreateOrganization(ctx, "Other Org")
		require.NoError(t, err)

		_, err = s.GetBuilding(ctx, other.ID, f.building.ID)
		assert.True(t, errors.Is(err, ErrNotFound))

		_, err = s.GetAssessment(ctx, other.ID, f.assessment.ID)
		assert.True(t, errors.Is(err, ErrNotFound))

		err = s.DeleteBuilding(ctx, other.ID, f.building.ID)
		assert.True(t, errors.Is(err, ErrNotFound))

		stolen := *f.building
		stolen.OrganizationID = other.ID
		stolen.Name = "Renamed"
		err = s.UpdateBuilding(ctx, &stolen)
		assert.True(t, errors.Is(err, ErrNotFound))

		list, err := s.ListBuildings(ctx, BuildingFilter{OrganizationID: other.ID})
		require.NoError(t, err)
		assert.Empty(t, list)

		// Unscoped access sees everything.
		b, err := s.GetBuilding(ctx, "", f.building.ID)
		require.NoError(t, err)
		assert.Equal(t, "Lincoln Elementary", b.Name)
	})

	t.Run("SeedElementsOnce", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		n, err := s.SeedElements(ctx, testElements)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = s.SeedElements(ctx, testElements)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		count, err := s.CountElements(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		shell, err := s.ListElements(ctx, ElementFilter{MajorGroup: "Shell"})
		require.NoError(t, err)
		require.Len(t, shell, 1)
		assert.Equal(t, "B3010", shell[0].Code)

		roof, err := s.ListElements(ctx, ElementFilter{Search: "roof"})
		require.NoError(t, err)
		require.Len(t, roof, 1)

		got, err := s.GetElement(ctx, roof[0].ID)
		require.NoError(t, err)
		assert.Equal(t, 20, got.UsefulLife)
	})

	t.Run("AssessmentLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		f := newFixture(t, s)

		assert.Equal(t, model.AssessmentStatusPending, f.assessment.Status)
		assert.Equal(t, model.AssessmentTypeField, f.assessment.Type)

		inProgress := model.AssessmentStatusInProgress
		assignee := "jdoe"
		started := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
		a, err := s.UpdateAssessment(ctx, f.org.ID, f.assessment.ID, model.AssessmentPatch{
			Status:     &inProgress,
			AssignedTo: &assignee,
			StartedAt:  &started,
		})
		require.NoError(t, err)
		assert.Equal(t, model.AssessmentStatusInProgress, a.Status)
		assert.Equal(t, "jdoe", a.AssignedTo)
		require.NotNil(t, a.StartedAt)
		assert.True(t, started.Equal(*a.StartedAt))
		assert.Equal(t, "Annual walkthrough", a.Description)

		same, err := s.UpdateAssessment(ctx, f.org.ID, f.assessment.ID, model.AssessmentPatch{})
		require.NoError(t, err)
		assert.Equal(t, a.Status, same.Status)

		done, err := s.CompleteAssessment(ctx, f.org.ID, f.assessment.ID, "All systems reviewed")
		require.NoError(t, err)
		assert.Equal(t, model.AssessmentStatusCompleted, done.Status)
		assert.Equal(t, "All systems reviewed", done.Notes)
		require.NotNil(t, done.CompletedAt)
		assert.True(t, started.Equal(*done.StartedAt), "started_at is preserved")

		list, err := s.ListAssessments(ctx, AssessmentFilter{OrganizationID: f.org.ID, Status: model.AssessmentStatusCompleted})
		require.NoError(t, err)
		assert.Len(t, list, 1)

		_, err = s.UpdateAssessment(ctx, f.org.ID, "missing", model.AssessmentPatch{AssignedTo: &assignee})
		assert.True(t, errors.Is(err, ErrNotFound))

		require.NoError(t, s.DeleteAssessment(ctx, f.org.ID, f.assessment.ID))
		assert.True(t, errors.Is(s.DeleteAssessment(ctx, f.org.ID, f.assessment.ID), ErrNotFound))
	})

	t.Run("AssessmentElements", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		f := newFixture(t, s)

		rating := 4
		cost := 3500.0
		roof := &model.AssessmentElement{
			AssessmentID:    f.assessment.ID,
			ElementID:       f.elements["B3010"].ID,
			ConditionRating: &rating,
			Notes:           "Membrane blistering",
			PhotoURLs:       []string{"https://example.com/roof.jpg"},
			Deficiencies: []model.Deficiency{
				{Description: "Ponding water", Cost: 2000, Category: "Critical Systems"},
				{Description: "Missing flashing", Cost: 1500, Category: "Life Safety"},
			},
		}
		require.NoError(t, s.UpsertAssessmentElement(ctx, roof))
		firstID := roof.ID

		foundation := &model.AssessmentElement{
			AssessmentID: f.assessment.ID,
			ElementID:    f.elements["A1010"].ID,
			RepairCost:   &cost,
		}
		require.NoError(t, s.UpsertAssessmentElement(ctx, foundation))

		got, err := s.ListAssessmentElements(ctx, f.assessment.ID, "")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "A1010", got[0].Code)
		assert.Nil(t, got[0].ConditionRating)
		require.NotNil(t, got[0].RepairCost)
		assert.Equal(t, 3500.0, *got[0].RepairCost)
		assert.Empty(t, got[0].Deficiencies)

		assert.Equal(t, "B3010", got[1].Code)
		assert.Equal(t, "Shell", got[1].MajorGroup)
		assert.Equal(t, "Roof Coverings", got[1].Name)
		require.NotNil(t, got[1].ConditionRating)
		assert.Equal(t, 4, *got[1].ConditionRating)
		assert.Equal(t, []string{"https://example.com/roof.jpg"}, got[1].PhotoURLs)
		require.Len(t, got[1].Deficiencies, 2)
		assert.Equal(t, "Ponding water", got[1].Deficiencies[0].Description)

		// Re-rating replaces the deficiency set and keeps the row identity.
		rating = 2
		again := &model.AssessmentElement{
			AssessmentID:    f.assessment.ID,
			ElementID:       f.elements["B3010"].ID,
			ConditionRating: &rating,
			Deficiencies:    []model.Deficiency{{Description: "Minor wear", Cost: 300}},
		}
		require.NoError(t, s.UpsertAssessmentElement(ctx, again))
		assert.Equal(t, firstID, again.ID)

		shell, err := s.ListAssessmentElements(ctx, f.assessment.ID, "Shell")
		require.NoError(t, err)
		require.Len(t, shell, 1)
		assert.Equal(t, 2, *shell[0].ConditionRating)
		require.Len(t, shell[0].Deficiencies, 1)
		assert.Equal(t, 300.0, shell[0].Deficiencies[0].Cost)
	})

	t.Run("ReportDraftAndFinal", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		f := newFixture(t, s)

		r := &model.Report{
			AssessmentID:        f.assessment.ID,
			BuildingID:          f.building.ID,
			OrganizationID:      f.org.ID,
			Title:               "Lincoln Elementary FCI",
			ReplacementValue:    2_000_000,
			TotalRepairCost:     16_000,
			ImmediateRepairCost: 11_200,
			FCIScore:            0.008,
			Band:                model.BandGood,
			ElementCount:        1,
			Categories:          []model.CategoryTotal{{Category: "Life Safety & Code Compliance", Count: 1, Total: 16_000}},
		}
		require.NoError(t, s.UpsertReport(ctx, r))
		firstID := r.ID

		r2 := *r
		r2.ID = ""
		r2.FCIScore = 0.02
		r2.Band = model.BandGood
		require.NoError(t, s.UpsertReport(ctx, &r2))
		assert.Equal(t, firstID, r2.ID, "draft is overwritten in place")

		got, err := s.GetReportByAssessment(ctx, f.org.ID, f.assessment.ID)
		require.NoError(t, err)
		assert.Equal(t, 0.02, got.FCIScore)
		assert.Equal(t, model.ReportStatusDraft, got.Status)
		require.Len(t, got.Categories, 1)
		assert.Equal(t, 16_000.0, got.Categories[0].Total)
		assert.Nil(t, got.FinalizedAt)

		final, err := s.FinalizeReport(ctx, f.org.ID, firstID)
		require.NoError(t, err)
		assert.Equal(t, model.ReportStatusFinal, final.Status)
		require.NotNil(t, final.FinalizedAt)

		_, err = s.FinalizeReport(ctx, f.org.ID, firstID)
		assert.True(t, errors.Is(err, ErrReportFinal))

		r3 := *r
		r3.FCIScore = 0.5
		err = s.UpsertReport(ctx, &r3)
		assert.True(t, errors.Is(err, ErrReportFinal))

		kept, err := s.GetReport(ctx, f.org.ID, firstID)
		require.NoError(t, err)
		assert.Equal(t, 0.02, kept.FCIScore, "final report is immutable")

		_, err = s.FinalizeReport(ctx, f.org.ID, "missing")
		assert.True(t, errors.Is(err, ErrNotFound))

		require.NoError(t, s.DeleteReport(ctx, f.org.ID, firstID))
		_, err = s.GetReport(ctx, f.org.ID, firstID)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("ListAndLatestReports", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		f := newFixture(t, s)

		second := &model.Assessment{OrganizationID: f.org.ID, BuildingID: f.building.ID}
		require.NoError(t, s.CreateAssessment(ctx, second))

		older := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		newer := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.UpsertReport(ctx, &model.Report{
			AssessmentID: f.assessment.ID, BuildingID: f.building.ID, OrganizationID: f.org.ID,
			FCIScore: 0.2, Band: model.BandPoor, GeneratedAt: older,
		}))
		require.NoError(t, s.UpsertReport(ctx, &model.Report{
			AssessmentID: second.ID, BuildingID: f.building.ID, OrganizationID: f.org.ID,
			FCIScore: 0.04, Band: model.BandGood, GeneratedAt: newer,
		}))

		all, err := s.ListReports(ctx, ReportFilter{OrganizationID: f.org.ID})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, second.ID, all[0].AssessmentID, "newest first")

		latest, err := s.LatestReports(ctx, f.org.ID, 1)
		require.NoError(t, err)
		require.Len(t, latest, 1)
		assert.Equal(t, 0.04, latest[0].FCIScore)
		assert.True(t, newer.Equal(latest[0].GeneratedAt))

		two, err := s.LatestReports(ctx, "", 2)
		require.NoError(t, err)
		assert.Len(t, two, 2)

		none, err := s.LatestReports(ctx, "other-org", 1)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("LatestReportsFollowAssessmentNotRefresh", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		f := newFixture(t, s)

		_, err := s.CompleteAssessment(ctx, f.org.ID, f.assessment.ID, "")
		require.NoError(t, err)
		newer := &model.Assessment{OrganizationID: f.org.ID, BuildingID: f.building.ID}
		require.NoError(t, s.CreateAssessment(ctx, newer))
		_, err = s.CompleteAssessment(ctx, f.org.ID, newer.ID, "")
		require.NoError(t, err)

		require.NoError(t, s.UpsertReport(ctx, &model.Report{
			AssessmentID: newer.ID, BuildingID: f.building.ID, OrganizationID: f.org.ID,
			FCIScore: 0.1, Band: model.BandFair, GeneratedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		}))
		// Regenerating the older assessment's draft moves its generated_at
		// past the newer report.
		require.NoError(t, s.UpsertReport(ctx, &model.Report{
			AssessmentID: f.assessment.ID, BuildingID: f.building.ID, OrganizationID: f.org.ID,
			FCIScore: 0.008, Band: model.BandGood, GeneratedAt: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		}))

		latest, err := s.LatestReports(ctx, f.org.ID, 2)
		require.NoError(t, err)
		require.Len(t, latest, 2)
		assert.Equal(t, newer.ID, latest[0].AssessmentID)
		assert.Equal(t, 0.1, latest[0].FCIScore)
		assert.Equal(t, f.assessment.ID, latest[1].AssessmentID)
	})
}
