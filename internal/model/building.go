package model

import "time"

// Organization owns buildings and assessments.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// BuildingStatus represents the lifecycle state of a building record.
type BuildingStatus string

const (
	BuildingStatusActive   BuildingStatus = "active"
	BuildingStatusInactive BuildingStatus = "inactive"
	BuildingStatusArchived BuildingStatus = "archived"
)

// Valid reports whether s is a known building status.
func (s BuildingStatus) Valid() bool {
	switch s {
	case BuildingStatusActive, BuildingStatusInactive, BuildingStatusArchived:
		return true
	}
	return false
}

// Building is a facility catalogued by an organization.
type Building struct {
	ID               string         `json:"id"`
	OrganizationID   string         `json:"organization_id"`
	Name             string         `json:"name"`
	Type             string         `json:"type"`
	ConstructionType string         `json:"construction_type,omitempty"`
	YearBuilt        int            `json:"year_built,omitempty"`
	SquareFootage    float64        `json:"square_footage,omitempty"`
	ReplacementValue float64        `json:"replacement_value,omitempty"` // stored value; 0 = derive from area
	CostPerSqft      float64        `json:"cost_per_sqft,omitempty"`
	Street           string         `json:"street_address,omitempty"`
	City             string         `json:"city,omitempty"`
	State            string         `json:"state,omitempty"`
	ZipCode          string         `json:"zip_code,omitempty"`
	Status           BuildingStatus `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Age returns the building age in years relative to year, or 0 when the
// construction year is unknown.
func (b Building) Age(year int) int {
	if b.YearBuilt <= 0 || b.YearBuilt > year {
		return 0
	}
	return year - b.YearBuilt
}
