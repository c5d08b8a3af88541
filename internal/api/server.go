// Package api serves the Onyx REST API over HTTP/JSON.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/onyx-report/onyx-cli/internal/analytics"
	"github.com/onyx-report/onyx-cli/internal/config"
	"github.com/onyx-report/onyx-cli/internal/report"
	"github.com/onyx-report/onyx-cli/internal/store"
)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	store     store.Store
	reports   *report.Service
	analytics *analytics.Service
	cfg       config.ServerConfig
	validate  *validator.Validate
	limiter   *rate.Limiter
	log       *zap.Logger
	now       func() time.Time
}

// NewServer creates a Server.
func NewServer(st store.Store, reports *report.Service, an *analytics.Service, cfg config.ServerConfig) *Server {
	return &Server{
		store:     st,
		reports:   reports,
		analytics: an,
		cfg:       cfg,
		validate:  newValidator(),
		limiter:   newLimiter(cfg.RateLimit, cfg.RateBurst),
		log:       zap.L().With(zap.String("component", "api")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", OrganizationHeader},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if s.cfg.RequestTimeoutSecs > 0 {
		r.Use(middleware.Timeout(time.Duration(s.cfg.RequestTimeoutSecs) * time.Second))
	}
	r.Use(s.rateLimit)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			// Organizations select the tenant, so they are not scoped by one.
			r.Route("/organizations", func(r chi.Router) {
				r.Get("/", s.handleListOrganizations)
				r.Post("/", s.handleCreateOrganization)
				r.Get("/{id}", s.handleGetOrganization)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.requireOrganization)

				r.Route("/buildings", func(r chi.Router) {
					r.Get("/", s.handleListBuildings)
					r.Post("/", s.handleCreateBuilding)
					r.Get("/{id}", s.handleGetBuilding)
					r.Put("/{id}", s.handleUpdateBuilding)
					r.Delete("/{id}", s.handleDeleteBuilding)
				})

				r.Route("/elements", func(r chi.Router) {
					r.Get("/", s.handleListElements)
					r.Get("/{id}", s.handleGetElement)
				})

				r.Route("/assessments", func(r chi.Router) {
					r.Get("/", s.handleListAssessments)
					r.Post("/", s.handleCreateAssessment)
					r.Get("/{id}", s.handleGetAssessment)
					r.Put("/{id}", s.handleUpdateAssessment)
					r.Delete("/{id}", s.handleDeleteAssessment)
					r.Get("/{id}/elements", s.handleListAssessmentElements)
					r.Put("/{id}/elements/{elementID}", s.handleUpsertAssessmentElement)
					r.Get("/{id}/fci", s.handleCalculateFCI)
					r.Post("/{id}/complete", s.handleCompleteAssessment)
				})

				r.Route("/reports", func(r chi.Router) {
					r.Get("/", s.handleListReports)
					r.Get("/export", s.handleExportReports)
					r.Post("/refresh", s.handleRefreshReports)
					r.Post("/generate/{assessmentID}", s.handleGenerateReport)
					r.Get("/{id}", s.handleGetReport)
					r.Delete("/{id}", s.handleDeleteReport)
					r.Post("/{id}/finalize", s.handleFinalizeReport)
				})

				r.Get("/analytics/portfolio", s.handlePortfolio)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, envelope{
			Error: "database unavailable",
			Data:  map[string]string{"status": "degraded"},
		})
		return
	}
	respond(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
	})
}
