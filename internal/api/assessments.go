package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/onyx-report/onyx-cli/internal/fci"
	"github.com/onyx-report/onyx-cli/internal/model"
	"github.com/onyx-report/onyx-cli/internal/report"
	"github.com/onyx-report/onyx-cli/internal/store"
)

type createAssessmentRequest struct {
	BuildingID    string               `json:"building_id" validate:"required"`
	Type          model.AssessmentType `json:"type" validate:"omitempty,oneof=pre_assessment field_assessment"`
	AssignedTo    string               `json:"assigned_to" validate:"max=200"`
	Description   string               `json:"description" validate:"max=2000"`
	ScheduledDate *time.Time           `json:"scheduled_date"`
}

// Completion goes through POST /assessments/{id}/complete so that the
// report is generated with it.
type updateAssessmentRequest struct {
	Description   *string                 `json:"description" validate:"omitempty,max=2000"`
	Status        *model.AssessmentStatus `json:"status" validate:"omitempty,oneof=pending in_progress"`
	AssignedTo    *string                 `json:"assigned_to" validate:"omitempty,max=200"`
	Notes         *string                 `json:"notes"`
	ScheduledDate *time.Time              `json:"scheduled_date"`
}

type deficiencyRequest struct {
	Description string   `json:"description" validate:"required,max=2000"`
	Cost        float64  `json:"cost" validate:"gte=0,lte=999999999999.99"`
	Category    string   `json:"category" validate:"max=100"`
	Severity    string   `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Photos      []string `json:"photos" validate:"omitempty,dive,url"`
}

type assessmentElementRequest struct {
	ConditionRating *int                `json:"condition_rating" validate:"omitempty,min=1,max=5"`
	Notes           string              `json:"notes"`
	PhotoURLs       []string            `json:"photo_urls" validate:"omitempty,dive,url"`
	RepairCost      *float64            `json:"repair_cost" validate:"omitempty,gte=0,lte=999999999999.99"`
	Deficiencies    []deficiencyRequest `json:"deficiencies" validate:"omitempty,dive"`
}

func (s *Server) handleListAssessments(w http.ResponseWriter, r *http.Request) {
	p, ok := parsePage(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := store.AssessmentFilter{
		OrganizationID: orgFrom(r.Context()),
		BuildingID:     q.Get("building_id"),
		Status:         model.AssessmentStatus(q.Get("status")),
		Type:           model.AssessmentType(q.Get("type")),
		Limit:          p.limit,
		Offset:         p.offset,
	}
	var errs []FieldError
	if filter.Status != "" && !filter.Status.Valid() {
		errs = append(errs, FieldError{Field: "status", Message: "must be one of: pending, in_progress, completed"})
	}
	if filter.Type != "" && !filter.Type.Valid() {
		errs = append(errs, FieldError{Field: "type", Message: "must be one of: pre_assessment, field_assessment"})
	}
	if len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	as, err := s.store.ListAssessments(r.Context(), filter)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, list(as))
}

func (s *Server) handleCreateAssessment(w http.ResponseWriter, r *http.Request) {
	var req createAssessmentRequest
	if !s.decode(w, r, &req) {
		return
	}
	orgID := orgFrom(r.Context())
	if _, err := s.store.GetBuilding(r.Context(), orgID, req.BuildingID); err != nil {
		fail(w, r, err)
		return
	}

	a := &model.Assessment{
		OrganizationID: orgID,
		BuildingID:     req.BuildingID,
		Type:           req.Type,
		AssignedTo:     req.AssignedTo,
		Description:    req.Description,
		ScheduledDate:  req.ScheduledDate,
	}
	if err := s.store.CreateAssessment(r.Context(), a); err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, a)
}

func (s *Server) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetAssessment(r.Context(), orgFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAssessment(w http.ResponseWriter, r *http.Request) {
	orgID, id := orgFrom(r.Context()), chi.URLParam(r, "id")
	current, err := s.store.GetAssessment(r.Context(), orgID, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req updateAssessmentRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Status != nil && current.Status == model.AssessmentStatusCompleted {
		fail(w, r, eris.Wrapf(report.ErrAlreadyCompleted, "api: reopen assessment %s", id))
		return
	}

	patch := model.AssessmentPatch{
		Description:   req.Description,
		Status:        req.Status,
		AssignedTo:    req.AssignedTo,
		Notes:         req.Notes,
		ScheduledDate: req.ScheduledDate,
	}
	if req.Status != nil && *req.Status == model.AssessmentStatusInProgress && current.StartedAt == nil {
		now := s.now()
		patch.StartedAt = &now
	}

	a, err := s.store.UpdateAssessment(r.Context(), orgID, id, patch)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAssessment(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAssessment(r.Context(), orgFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"message": "assessment deleted"})
}

func (s *Server) handleListAssessmentElements(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetAssessment(r.Context(), orgFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	elems, err := s.store.ListAssessmentElements(r.Context(), a.ID, r.URL.Query().Get("major_group"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, list(elems))
}

func (s *Server) handleUpsertAssessmentElement(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetAssessment(r.Context(), orgFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	elem, err := s.store.GetElement(r.Context(), chi.URLParam(r, "elementID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	var req assessmentElementRequest
	if !s.decode(w, r, &req) {
		return
	}

	ae := &model.AssessmentElement{
		AssessmentID:    a.ID,
		ElementID:       elem.ID,
		ConditionRating: req.ConditionRating,
		Notes:           req.Notes,
		PhotoURLs:       req.PhotoURLs,
		RepairCost:      req.RepairCost,
		Deficiencies:    make([]model.Deficiency, 0, len(req.Deficiencies)),
		Code:            elem.Code,
		MajorGroup:      elem.MajorGroup,
		Name:            elem.IndividualElement,
	}
	for _, d := range req.Deficiencies {
		def := model.Deficiency{
			Description: d.Description,
			Cost:        d.Cost,
			Severity:    d.Severity,
			Photos:      d.Photos,
		}
		if d.Category != "" {
			def.Category = fci.NormalizeCategory(d.Category)
		}
		ae.Deficiencies = append(ae.Deficiencies, def)
	}

	if err := s.store.UpsertAssessmentElement(r.Context(), ae); err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, ae)
}

func (s *Server) handleCalculateFCI(w http.ResponseWriter, r *http.Request) {
	calc, err := s.reports.Calculate(r.Context(), orgFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, calc)
}

func (s *Server) handleCompleteAssessment(w http.ResponseWriter, r *http.Request) {
	a, rep, err := s.reports.Complete(r.Context(), orgFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"assessment": a,
		"report":     rep,
	})
}
