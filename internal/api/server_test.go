package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/onyx-report/onyx-cli/internal/analytics"
	"github.com/onyx-report/onyx-cli/internal/config"
	"github.com/onyx-report/onyx-cli/internal/fci"
	"github.com/onyx-report/onyx-cli/internal/model"
	"github.com/onyx-report/onyx-cli/internal/report"
	"github.com/onyx-report/onyx-cli/internal/store"
)

type response[T any] struct {
	Success bool         `json:"success"`
	Data    T            `json:"data"`
	Error   string       `json:"error"`
	Errors  []FieldError `json:"errors"`
}

type testAPI struct {
	t        *testing.T
	srv      *Server
	handler  http.Handler
	store    store.Store
	org      *model.Organization
	elements map[string]string // code -> element id
}

func newTestAPI(t *testing.T, mutate func(*config.ServerConfig)) *testAPI {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(ctx))

	_, err = st.SeedElements(ctx, []model.Element{
		{Code: "B3010", MajorGroup: "Shell", GroupElement: "Roofing", IndividualElement: "Roof Coverings"},
		{Code: "D5010", MajorGroup: "Services", GroupElement: "Electrical", IndividualElement: "Electrical Service & Distribution"},
	})
	require.NoError(t, err)
	elems, err := st.ListElements(ctx, store.ElementFilter{})
	require.NoError(t, err)
	ids := make(map[string]string)
	for _, e := range elems {
		ids[e.Code] = e.ID
	}

	org, err := st.CreateOrganization(ctx, "Springfield Schools")
	require.NoError(t, err)

	cfg := config.ServerConfig{CORSOrigins: []string{"http://localhost:3000"}, RequestTimeoutSecs: 5}
	if mutate != nil {
		mutate(&cfg)
	}
	agg := fci.NewAggregator(nil, fci.DefaultBands())
	srv := NewServer(st, report.NewService(st, agg, 2), analytics.NewService(st, agg), cfg)

	return &testAPI{t: t, srv: srv, handler: srv.Handler(), store: st, org: org, elements: ids}
}

func (a *testAPI) request(method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

// do sends a request scoped to the test organization.
func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	return a.request(method, path, body, http.Header{OrganizationHeader: {a.org.ID}})
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) response[T] {
	t.Helper()
	var out response[T]
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func (a *testAPI) createBuilding(body map[string]any) model.Building {
	a.t.Helper()
	rr := a.do(http.MethodPost, "/api/buildings", body)
	require.Equal(a.t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[model.Building](a.t, rr).Data
}

// ratedAssessment creates a building worth 2,000,000 and an assessment
// with one element rated 5 carrying a 16,000 life-safety deficiency.
func (a *testAPI) ratedAssessment() model.Assessment {
	a.t.Helper()
	b := a.createBuilding(map[string]any{
		"name": "Lincoln Elementary", "type": "school", "replacement_value": 2_000_000,
	})
	rr := a.do(http.MethodPost, "/api/assessments", map[string]any{"building_id": b.ID})
	require.Equal(a.t, http.StatusCreated, rr.Code, rr.Body.String())
	as := decode[model.Assessment](a.t, rr).Data

	rr = a.do(http.MethodPut, "/api/assessments/"+as.ID+"/elements/"+a.elements["B3010"], map[string]any{
		"condition_rating": 5,
		"deficiencies": []map[string]any{
			{"description": "Blocked egress", "cost": 16_000, "category": "life-safety", "severity": "critical"},
		},
	})
	require.Equal(a.t, http.StatusOK, rr.Code, rr.Body.String())
	return as
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t, nil)

	rr := a.request(http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	body := decode[map[string]string](t, rr)
	assert.True(t, body.Success)
	assert.Equal(t, "ok", body.Data["status"])
}

func TestOrganizationHeader(t *testing.T) {
	a := newTestAPI(t, nil)

	rr := a.request(http.MethodGet, "/api/buildings", nil, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.False(t, decode[any](t, rr).Success)

	rr = a.request(http.MethodGet, "/api/buildings", nil, http.Header{OrganizationHeader: {"no-such-org"}})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = a.do(http.MethodGet, "/api/buildings", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, rr.Body.String())
}

func TestAPITokens(t *testing.T) {
	a := newTestAPI(t, func(c *config.ServerConfig) { c.APITokens = []string{"s3cret"} })

	tests := []struct {
		name   string
		auth   string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{OrganizationHeader: {a.org.ID}}
			if tt.auth != "" {
				h.Set("Authorization", tt.auth)
			}
			rr := a.request(http.MethodGet, "/api/buildings", nil, h)
			assert.Equal(t, tt.status, rr.Code)
		})
	}

	// Health stays open.
	rr := a.request(http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestOrganizations(t *testing.T) {
	a := newTestAPI(t, nil)

	rr := a.request(http.MethodPost, "/api/organizations", map[string]any{"name": "Shelbyville District"}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	org := decode[model.Organization](t, rr).Data
	assert.NotEmpty(t, org.ID)

	rr = a.request(http.MethodGet, "/api/organizations/"+org.ID, nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = a.request(http.MethodGet, "/api/organizations", nil, nil)
	assert.Len(t, decode[[]model.Organization](t, rr).Data, 2)

	rr = a.request(http.MethodPost, "/api/organizations", map[string]any{"name": ""}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBuildingCRUD(t *testing.T) {
	a := newTestAPI(t, nil)

	b := a.createBuilding(map[string]any{
		"name": "Jones Tower", "type": "office", "year_built": 1985,
		"square_footage": 12_000, "zip_code": "62704",
	})
	assert.Equal(t, model.BuildingStatusActive, b.Status)
	assert.Equal(t, a.org.ID, b.OrganizationID)

	rr := a.do(http.MethodGet, "/api/buildings/"+b.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Jones Tower", decode[model.Building](t, rr).Data.Name)

	rr = a.do(http.MethodPut, "/api/buildings/"+b.ID, map[string]any{
		"name": "Jones Tower North", "type": "office", "status": "inactive",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[model.Building](t, rr).Data
	assert.Equal(t, "Jones Tower North", updated.Name)
	assert.Equal(t, model.BuildingStatusInactive, updated.Status)

	rr = a.do(http.MethodGet, "/api/buildings?status=inactive&search=north", nil)
	assert.Len(t, decode[[]model.Building](t, rr).Data, 1)

	rr = a.do(http.MethodDelete, "/api/buildings/"+b.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = a.do(http.MethodGet, "/api/buildings/"+b.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not found", decode[any](t, rr).Error)
}

func TestCreateBuilding_Validation(t *testing.T) {
	a := newTestAPI(t, nil)

	rr := a.do(http.MethodPost, "/api/buildings", map[string]any{
		"name": "X", "year_built": 1700, "zip_code": "ABCDE", "status": "demolished", "cost_per_sqft": -1,
		"replacement_value": 1e15,
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decode[any](t, rr)
	assert.False(t, body.Success)
	assert.Equal(t, "validation failed", body.Error)

	fields := make(map[string]string)
	for _, fe := range body.Errors {
		fields[fe.Field] = fe.Message
	}
	assert.Equal(t, "must be at least 2 characters", fields["name"])
	assert.Equal(t, "is required", fields["type"])
	assert.Equal(t, "must be a valid year", fields["year_built"])
	assert.Equal(t, "must be in format 12345 or 12345-6789", fields["zip_code"])
	assert.Equal(t, "must be one of: active, inactive, archived", fields["status"])
	assert.Equal(t, "must be at least 0", fields["cost_per_sqft"])
	assert.Equal(t, "must be at most 99999999999999.99", fields["replacement_value"])
}

func TestInvalidBodyAndQuery(t *testing.T) {
	a := newTestAPI(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/buildings", bytes.NewBufferString("{not json"))
	req.Header.Set(OrganizationHeader, a.org.ID)
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid request body", decode[any](t, rr).Error)

	rr = a.do(http.MethodGet, "/api/buildings?limit=0&offset=-1", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Len(t, decode[any](t, rr).Errors, 2)

	rr = a.do(http.MethodGet, "/api/assessments?status=done", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTenantIsolation(t *testing.T) {
	a := newTestAPI(t, nil)
	b := a.createBuilding(map[string]any{"name": "Lincoln Elementary", "type": "school"})

	other, err := a.store.CreateOrganization(context.Background(), "Shelbyville District")
	require.NoError(t, err)
	h := http.Header{OrganizationHeader: {other.ID}}

	rr := a.request(http.MethodGet, "/api/buildings/"+b.ID, nil, h)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = a.request(http.MethodPost, "/api/assessments", map[string]any{"building_id": b.ID}, h)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = a.request(http.MethodGet, "/api/buildings", nil, h)
	assert.Empty(t, decode[[]model.Building](t, rr).Data)
}

func TestAssessmentWorkflow(t *testing.T) {
	a := newTestAPI(t, nil)
	as := a.ratedAssessment()

	rr := a.do(http.MethodGet, "/api/assessments/"+as.ID+"/elements", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	elems := decode[[]model.AssessmentElement](t, rr).Data
	require.Len(t, elems, 1)
	assert.Equal(t, "B3010", elems[0].Code)
	require.Len(t, elems[0].Deficiencies, 1)
	assert.Equal(t, fci.CategoryLifeSafety, elems[0].Deficiencies[0].Category)

	rr = a.do(http.MethodGet, "/api/assessments/"+as.ID+"/fci", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	calc := decode[report.Calculation](t, rr).Data
	assert.InDelta(t, 0.008, calc.Result.FCIScore, 1e-12)
	assert.InDelta(t, 11_200, calc.Result.ImmediateRepairCost, 1e-9)

	rr = a.do(http.MethodPost, "/api/assessments/"+as.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	done := decode[struct {
		Assessment model.Assessment `json:"assessment"`
		Report     model.Report     `json:"report"`
	}](t, rr).Data
	assert.Equal(t, model.AssessmentStatusCompleted, done.Assessment.Status)
	assert.NotNil(t, done.Assessment.CompletedAt)
	assert.Equal(t, model.ReportStatusDraft, done.Report.Status)
	assert.InDelta(t, 16_000, done.Report.TotalRepairCost, 1e-9)
	assert.Equal(t, model.BandGood, done.Report.Band)

	rr = a.do(http.MethodPost, "/api/assessments/"+as.ID+"/complete", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = a.do(http.MethodPost, "/api/reports/"+done.Report.ID+"/finalize", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, model.ReportStatusFinal, decode[model.Report](t, rr).Data.Status)

	rr = a.do(http.MethodPost, "/api/reports/generate/"+as.ID, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "report is final", decode[any](t, rr).Error)

	rr = a.do(http.MethodGet, "/api/reports?status=final", nil)
	assert.Len(t, decode[[]model.Report](t, rr).Data, 1)
}

func TestGenerateReport_Idempotent(t *testing.T) {
	a := newTestAPI(t, nil)
	as := a.ratedAssessment()

	rr := a.do(http.MethodPost, "/api/reports/generate/"+as.ID, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	first := decode[model.Report](t, rr).Data

	rr = a.do(http.MethodPost, "/api/reports/generate/"+as.ID, nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	second := decode[model.Report](t, rr).Data

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.TotalRepairCost, second.TotalRepairCost)
	assert.Equal(t, first.FCIScore, second.FCIScore)

	rr = a.do(http.MethodDelete, "/api/reports/"+first.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = a.do(http.MethodGet, "/api/reports/"+first.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestFinalizeReport_OpenAssessment(t *testing.T) {
	a := newTestAPI(t, nil)
	as := a.ratedAssessment()

	rr := a.do(http.MethodPost, "/api/reports/generate/"+as.ID, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	draft := decode[model.Report](t, rr).Data

	rr = a.do(http.MethodPost, "/api/reports/"+draft.ID+"/finalize", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "assessment is not completed", decode[any](t, rr).Error)

	rr = a.do(http.MethodPost, "/api/assessments/"+as.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = a.do(http.MethodPost, "/api/reports/"+draft.ID+"/finalize", nil)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestUpsertAssessmentElement_Validation(t *testing.T) {
	a := newTestAPI(t, nil)
	as := a.ratedAssessment()
	path := "/api/assessments/" + as.ID + "/elements/" + a.elements["D5010"]

	rr := a.do(http.MethodPut, path, map[string]any{
		"condition_rating": 6,
		"repair_cost":      -5,
		"photo_urls":       []string{"not a url"},
		"deficiencies":     []map[string]any{{"cost": 100}},
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	fields := make(map[string]string)
	for _, fe := range decode[any](t, rr).Errors {
		fields[fe.Field] = fe.Message
	}
	assert.Equal(t, "must be at most 5", fields["condition_rating"])
	assert.Equal(t, "must be at least 0", fields["repair_cost"])
	assert.Equal(t, "must be a valid URL", fields["photo_urls[0]"])
	assert.Equal(t, "is required", fields["deficiencies[0].description"])

	// Amounts beyond the column precision are rejected before reaching the store.
	rr = a.do(http.MethodPut, path, map[string]any{
		"repair_cost":  1e13,
		"deficiencies": []map[string]any{{"description": "Roof failure", "cost": 1e13}},
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	fields = make(map[string]string)
	for _, fe := range decode[any](t, rr).Errors {
		fields[fe.Field] = fe.Message
	}
	assert.Equal(t, "must be at most 999999999999.99", fields["repair_cost"])
	assert.Equal(t, "must be at most 999999999999.99", fields["deficiencies[0].cost"])

	rr = a.do(http.MethodPut, "/api/assessments/"+as.ID+"/elements/no-such-element", map[string]any{})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateAssessment(t *testing.T) {
	a := newTestAPI(t, nil)
	as := a.ratedAssessment()

	rr := a.do(http.MethodPut, "/api/assessments/"+as.ID, map[string]any{"status": "in_progress", "assigned_to": "jdoe"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[model.Assessment](t, rr).Data
	assert.Equal(t, model.AssessmentStatusInProgress, updated.Status)
	assert.Equal(t, "jdoe", updated.AssignedTo)
	assert.NotNil(t, updated.StartedAt)

	rr = a.do(http.MethodPut, "/api/assessments/"+as.ID, map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = a.do(http.MethodDelete, "/api/assessments/"+as.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = a.do(http.MethodGet, "/api/assessments/"+as.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRefreshAndPortfolio(t *testing.T) {
	a := newTestAPI(t, nil)
	as := a.ratedAssessment()

	rr := a.do(http.MethodPost, "/api/assessments/"+as.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = a.do(http.MethodPost, "/api/reports/refresh", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, report.RefreshStats{Refreshed: 1}, decode[report.RefreshStats](t, rr).Data)

	a.createBuilding(map[string]any{"name": "Annex", "type": "storage", "year_built": 1970, "square_footage": 5_000})

	rr = a.do(http.MethodGet, "/api/analytics/portfolio", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	p := decode[analytics.Portfolio](t, rr).Data
	assert.Equal(t, 2, p.Buildings)
	assert.Equal(t, 1, p.Assessed)
	assert.InDelta(t, 0.008, p.AverageFCI, 1e-12)
	assert.Len(t, p.Rows, 2)
}

func TestExportReports(t *testing.T) {
	a := newTestAPI(t, nil)
	as := a.ratedAssessment()
	rr := a.do(http.MethodPost, "/api/reports/generate/"+as.ID, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = a.do(http.MethodGet, "/api/reports/export", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, xlsxContentType, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "onyx-reports-")

	wb, err := xlsx.OpenBinary(rr.Body.Bytes())
	require.NoError(t, err)
	sheet, ok := wb.Sheet["Reports"]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, "Lincoln Elementary", sheet.Rows[1].Cells[0].String())
}

func TestRateLimit(t *testing.T) {
	a := newTestAPI(t, func(c *config.ServerConfig) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})

	rr := a.request(http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = a.request(http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestPanicRecovery(t *testing.T) {
	a := newTestAPI(t, nil)
	a.srv.analytics = nil
	h := a.srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/portfolio", nil)
	req.Header.Set(OrganizationHeader, a.org.ID)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal server error", decode[any](t, rr).Error)
}

func TestUnknownRoute(t *testing.T) {
	a := newTestAPI(t, nil)

	rr := a.request(http.MethodGet, "/api/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "route not found", decode[any](t, rr).Error)
}

func TestCORSPreflight(t *testing.T) {
	a := newTestAPI(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/buildings", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", OrganizationHeader)
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
}
