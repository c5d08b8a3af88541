// Package store persists organizations, buildings, assessments and reports.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/onyx-report/onyx-cli/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist or belongs to
	// another organization.
	ErrNotFound = eris.New("store: not found")
	// ErrReportFinal is returned when a finalized report would be modified.
	ErrReportFinal = eris.New("store: report is final")
)

// DefaultListLimit caps list queries that do not set a limit.
const DefaultListLimit = 100

// BuildingFilter specifies criteria for listing buildings.
type BuildingFilter struct {
	OrganizationID string               `json:"organization_id,omitempty"`
	Type           string               `json:"type,omitempty"`
	Status         model.BuildingStatus `json:"status,omitempty"`
	Search         string               `json:"search,omitempty"` // name, street or city
	Limit          int                  `json:"limit,omitempty"`
	Offset         int                  `json:"offset,omitempty"`
}

// ElementFilter specifies criteria for listing catalog elements.
type ElementFilter struct {
	MajorGroup string `json:"major_group,omitempty"`
	Search     string `json:"search,omitempty"` // group or individual element
}

// AssessmentFilter specifies criteria for listing assessments.
type AssessmentFilter struct {
	OrganizationID string                 `json:"organization_id,omitempty"`
	BuildingID     string                 `json:"building_id,omitempty"`
	Status         model.AssessmentStatus `json:"status,omitempty"`
	Type           model.AssessmentType   `json:"type,omitempty"`
	Limit          int                    `json:"limit,omitempty"`
	Offset         int                    `json:"offset,omitempty"`
}

// ReportFilter specifies criteria for listing reports.
type ReportFilter struct {
	OrganizationID string             `json:"organization_id,omitempty"`
	BuildingID     string             `json:"building_id,omitempty"`
	Status         model.ReportStatus `json:"status,omitempty"`
	Limit          int                `json:"limit,omitempty"`
	Offset         int                `json:"offset,omitempty"`
}

// Store defines the persistence interface. Methods taking an orgID only see
// rows owned by that organization; an empty orgID matches every
// organization and is reserved for CLI and background jobs.
type Store interface {
	// Organizations
	CreateOrganization(ctx context.Context, name string) (*model.Organization, error)
	GetOrganization(ctx context.Context, id string) (*model.Organization, error)
	ListOrganizations(ctx context.Context) ([]model.Organization, error)

	// Buildings
	CreateBuilding(ctx context.Context, b *model.Building) error
	GetBuilding(ctx context.Context, orgID, id string) (*model.Building, error)
	ListBuildings(ctx context.Context, filter BuildingFilter) ([]model.Building, error)
	UpdateBuilding(ctx context.Context, b *model.Building) error
	DeleteBuilding(ctx context.Context, orgID, id string) error

	// Element catalog
	ListElements(ctx context.Context, filter ElementFilter) ([]model.Element, error)
	GetElement(ctx context.Context, id string) (*model.Element, error)
	SeedElements(ctx context.Context, elems []model.Element) (int, error)
	CountElements(ctx context.Context) (int, error)

	// Assessments
	CreateAssessment(ctx context.Context, a *model.Assessment) error
	GetAssessment(ctx context.Context, orgID, id string) (*model.Assessment, error)
	ListAssessments(ctx context.Context, filter AssessmentFilter) ([]model.Assessment, error)
	UpdateAssessment(ctx context.Context, orgID, id string, patch model.AssessmentPatch) (*model.Assessment, error)
	DeleteAssessment(ctx context.Context, orgID, id string) error
	CompleteAssessment(ctx context.Context, orgID, id, notes string) (*model.Assessment, error)

	// Assessment elements
	ListAssessmentElements(ctx context.Context, assessmentID, majorGroup string) ([]model.AssessmentElement, error)
	UpsertAssessmentElement(ctx context.Context, ae *model.AssessmentElement) error

	// Reports
	UpsertReport(ctx context.Context, r *model.Report) error
	GetReport(ctx context.Context, orgID, id string) (*model.Report, error)
	GetReportByAssessment(ctx context.Context, orgID, assessmentID string) (*model.Report, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error)
	FinalizeReport(ctx context.Context, orgID, id string) (*model.Report, error)
	DeleteReport(ctx context.Context, orgID, id string) error

	// Portfolio returns up to perBuilding most recent reports for every
	// building, grouped by building and newest first.
	LatestReports(ctx context.Context, orgID string, perBuilding int) ([]model.Report, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// MaxListLimit is the largest page a list query returns.
const MaxListLimit = 1000

func listLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultListLimit
	case n > MaxListLimit:
		return MaxListLimit
	}
	return n
}
