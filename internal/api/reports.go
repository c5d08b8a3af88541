package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/onyx-report/onyx-cli/internal/model"
	"github.com/onyx-report/onyx-cli/internal/report"
	"github.com/onyx-report/onyx-cli/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func reportFilter(w http.ResponseWriter, r *http.Request) (store.ReportFilter, bool) {
	p, ok := parsePage(w, r)
	if !ok {
		return store.ReportFilter{}, false
	}
	q := r.URL.Query()
	f := store.ReportFilter{
		OrganizationID: orgFrom(r.Context()),
		BuildingID:     q.Get("building_id"),
		Status:         model.ReportStatus(q.Get("status")),
		Limit:          p.limit,
		Offset:         p.offset,
	}
	if f.Status != "" && f.Status != model.ReportStatusDraft && f.Status != model.ReportStatusFinal {
		respondValidation(w, []FieldError{{Field: "status", Message: "must be one of: draft, final"}})
		return store.ReportFilter{}, false
	}
	return f, true
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	f, ok := reportFilter(w, r)
	if !ok {
		return
	}
	reports, err := s.store.ListReports(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, list(reports))
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.store.GetReport(r.Context(), orgFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, rep)
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteReport(r.Context(), orgFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"message": "report deleted"})
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reports.Generate(r.Context(), orgFrom(r.Context()), chi.URLParam(r, "assessmentID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, rep)
}

func (s *Server) handleFinalizeReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reports.Finalize(r.Context(), orgFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, rep)
}

func (s *Server) handleRefreshReports(w http.ResponseWriter, r *http.Request) {
	stats, err := s.reports.RefreshDrafts(r.Context(), orgFrom(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, stats)
}

// handleExportReports downloads the organization's reports as an xlsx
// workbook. Without a limit every matching report is exported.
func (s *Server) handleExportReports(w http.ResponseWriter, r *http.Request) {
	f, ok := reportFilter(w, r)
	if !ok {
		return
	}
	reports, buildings, err := report.LoadExport(r.Context(), s.store, f)
	if err != nil {
		fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := report.ExportXLSX(&buf, reports, buildings); err != nil {
		fail(w, r, err)
		return
	}

	name := fmt.Sprintf("onyx-reports-%s.xlsx", s.now().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.log.Debug("export write aborted", zap.Error(err))
	}
}
