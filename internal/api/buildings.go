package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onyx-report/onyx-cli/internal/model"
	"github.com/onyx-report/onyx-cli/internal/store"
)

type buildingRequest struct {
	Name             string               `json:"name" validate:"required,min=2,max=200"`
	Type             string               `json:"type" validate:"required,max=100"`
	ConstructionType string               `json:"construction_type" validate:"max=100"`
	YearBuilt        int                  `json:"year_built" validate:"omitempty,buildyear"`
	SquareFootage    float64              `json:"square_footage" validate:"omitempty,gt=0,lte=999999999999.99"`
	ReplacementValue float64              `json:"replacement_value" validate:"gte=0,lte=99999999999999.99"`
	CostPerSqft      float64              `json:"cost_per_sqft" validate:"gte=0,lte=99999999.99"`
	Street           string               `json:"street_address" validate:"max=255"`
	City             string               `json:"city" validate:"max=100"`
	State            string               `json:"state" validate:"max=50"`
	ZipCode          string               `json:"zip_code" validate:"omitempty,zipcode"`
	Status           model.BuildingStatus `json:"status" validate:"omitempty,oneof=active inactive archived"`
}

func (req buildingRequest) apply(b *model.Building) {
	b.Name = req.Name
	b.Type = req.Type
	b.ConstructionType = req.ConstructionType
	b.YearBuilt = req.YearBuilt
	b.SquareFootage = req.SquareFootage
	b.ReplacementValue = req.ReplacementValue
	b.CostPerSqft = req.CostPerSqft
	b.Street = req.Street
	b.City = req.City
	b.State = req.State
	b.ZipCode = req.ZipCode
	if req.Status != "" {
		b.Status = req.Status
	}
}

func (s *Server) handleListBuildings(w http.ResponseWriter, r *http.Request) {
	p, ok := parsePage(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	status := model.BuildingStatus(q.Get("status"))
	if status != "" && !status.Valid() {
		respondValidation(w, []FieldError{{Field: "status", Message: "must be one of: active, inactive, archived"}})
		return
	}

	buildings, err := s.store.ListBuildings(r.Context(), store.BuildingFilter{
		OrganizationID: orgFrom(r.Context()),
		Type:           q.Get("type"),
		Status:         status,
		Search:         q.Get("search"),
		Limit:          p.limit,
		Offset:         p.offset,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, list(buildings))
}

func (s *Server) handleCreateBuilding(w http.ResponseWriter, r *http.Request) {
	var req buildingRequest
	if !s.decode(w, r, &req) {
		return
	}
	b := &model.Building{OrganizationID: orgFrom(r.Context())}
	req.apply(b)

	if err := s.store.CreateBuilding(r.Context(), b); err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, b)
}

func (s *Server) handleGetBuilding(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.GetBuilding(r.Context(), orgFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, b)
}

func (s *Server) handleUpdateBuilding(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.GetBuilding(r.Context(), orgFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	var req buildingRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.apply(b)

	if err := s.store.UpdateBuilding(r.Context(), b); err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, b)
}

func (s *Server) handleDeleteBuilding(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteBuilding(r.Context(), orgFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"message": "building deleted"})
}
