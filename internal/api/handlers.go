package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/onyx-report/onyx-cli/internal/store"
)

type page struct {
	limit  int
	offset int
}

// parsePage reads limit and offset query parameters. It writes a 400 and
// returns false when either is malformed.
func parsePage(w http.ResponseWriter, r *http.Request) (page, bool) {
	var p page
	var errs []FieldError
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > store.MaxListLimit {
			errs = append(errs, FieldError{Field: "limit", Message: "must be between 1 and " + strconv.Itoa(store.MaxListLimit)})
		}
		p.limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, FieldError{Field: "offset", Message: "must be at least 0"})
		}
		p.offset = n
	}
	if len(errs) > 0 {
		respondValidation(w, errs)
		return page{}, false
	}
	return p, true
}

// --- organizations ---

type organizationRequest struct {
	Name string `json:"name" validate:"required,min=2,max=200"`
}

func (s *Server) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.store.ListOrganizations(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, list(orgs))
}

func (s *Server) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req organizationRequest
	if !s.decode(w, r, &req) {
		return
	}
	org, err := s.store.CreateOrganization(r.Context(), req.Name)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, org)
}

func (s *Server) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := s.store.GetOrganization(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, org)
}

// --- element catalog ---

func (s *Server) handleListElements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	elems, err := s.store.ListElements(r.Context(), store.ElementFilter{
		MajorGroup: q.Get("major_group"),
		Search:     q.Get("search"),
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, list(elems))
}

func (s *Server) handleGetElement(w http.ResponseWriter, r *http.Request) {
	e, err := s.store.GetElement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, e)
}

// --- analytics ---

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := s.analytics.Portfolio(r.Context(), orgFrom(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, p)
}
