package model

import "time"

// AssessmentStatus represents the current state of an inspection.
type AssessmentStatus string

const (
	AssessmentStatusPending    AssessmentStatus = "pending"
	AssessmentStatusInProgress AssessmentStatus = "in_progress"
	AssessmentStatusCompleted  AssessmentStatus = "completed"
)

// Valid reports whether s is a known assessment status.
func (s AssessmentStatus) Valid() bool {
	switch s {
	case AssessmentStatusPending, AssessmentStatusInProgress, AssessmentStatusCompleted:
		return true
	}
	return false
}

// AssessmentType distinguishes desk reviews from on-site inspections.
type AssessmentType string

const (
	AssessmentTypePre   AssessmentType = "pre_assessment"
	AssessmentTypeField AssessmentType = "field_assessment"
)

// Valid reports whether t is a known assessment type.
func (t AssessmentType) Valid() bool {
	return t == AssessmentTypePre || t == AssessmentTypeField
}

// Condition ratings run from 1 (best) to 5 (worst).
const (
	RatingExcellent = 1
	RatingGood      = 2
	RatingFair      = 3
	RatingPoor      = 4
	RatingCritical  = 5
)

// ValidRating reports whether r is on the 1-5 condition scale.
func ValidRating(r int) bool {
	return r >= RatingExcellent && r <= RatingCritical
}

// Assessment is an inspection of one building.
type Assessment struct {
	ID             string           `json:"id"`
	OrganizationID string           `json:"organization_id"`
	BuildingID     string           `json:"building_id"`
	Type           AssessmentType   `json:"type"`
	Status         AssessmentStatus `json:"status"`
	AssignedTo     string           `json:"assigned_to,omitempty"`
	Description    string           `json:"description,omitempty"`
	Notes          string           `json:"notes,omitempty"`
	ScheduledDate  *time.Time       `json:"scheduled_date,omitempty"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// AssessmentPatch holds the mutable fields of an assessment. Nil fields are
// left unchanged.
type AssessmentPatch struct {
	Description   *string           `json:"description,omitempty"`
	Status        *AssessmentStatus `json:"status,omitempty"`
	AssignedTo    *string           `json:"assigned_to,omitempty"`
	Notes         *string           `json:"notes,omitempty"`
	ScheduledDate *time.Time        `json:"scheduled_date,omitempty"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p AssessmentPatch) Empty() bool {
	return p.Description == nil && p.Status == nil && p.AssignedTo == nil &&
		p.Notes == nil && p.ScheduledDate == nil && p.StartedAt == nil
}

// AssessmentElement joins an assessment to a catalog element and carries
// the inspector's findings.
type AssessmentElement struct {
	ID              string       `json:"id"`
	AssessmentID    string       `json:"assessment_id"`
	ElementID       string       `json:"element_id"`
	ConditionRating *int         `json:"condition_rating,omitempty"`
	Notes           string       `json:"notes,omitempty"`
	PhotoURLs       []string     `json:"photo_urls,omitempty"`
	RepairCost      *float64     `json:"repair_cost,omitempty"`
	Deficiencies    []Deficiency `json:"deficiencies"`
	UpdatedAt       time.Time    `json:"updated_at"`

	// Joined from the element catalog on reads.
	Code       string `json:"code,omitempty"`
	MajorGroup string `json:"major_group,omitempty"`
	Name       string `json:"name,omitempty"`
}

// Deficiency is a recorded defect on an assessment element.
type Deficiency struct {
	ID                  string   `json:"id"`
	AssessmentElementID string   `json:"assessment_element_id,omitempty"`
	Description         string   `json:"description"`
	Cost                float64  `json:"cost"`
	Category            string   `json:"category,omitempty"`
	Severity            string   `json:"severity,omitempty"`
	Photos              []string `json:"photos,omitempty"`
}
