package model

import "time"

// ReportStatus represents whether a report can still be regenerated.
type ReportStatus string

const (
	ReportStatusDraft ReportStatus = "draft"
	ReportStatusFinal ReportStatus = "final"
)

// Band is the condition label derived from an FCI score.
type Band string

const (
	BandGood     Band = "Good"
	BandFair     Band = "Fair"
	BandPoor     Band = "Poor"
	BandCritical Band = "Critical"
)

// CategoryTotal aggregates deficiency costs under one category.
type CategoryTotal struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Total    float64 `json:"total"`
}

// Report is a snapshot of an assessment's repair costs and FCI. A draft
// report is replaced when regenerated; a final report never changes.
type Report struct {
	ID                    string          `json:"id"`
	AssessmentID          string          `json:"assessment_id"`
	BuildingID            string          `json:"building_id"`
	OrganizationID        string          `json:"organization_id"`
	Title                 string          `json:"title"`
	Status                ReportStatus    `json:"status"`
	ReplacementValue      float64         `json:"replacement_value"`
	TotalRepairCost       float64         `json:"total_repair_cost"`
	ImmediateRepairCost   float64         `json:"immediate_repair_cost"`
	ShortTermRepairCost   float64         `json:"short_term_repair_cost"`
	LongTermRepairCost    float64         `json:"long_term_repair_cost"`
	UnallocatedRepairCost float64         `json:"unallocated_repair_cost"`
	FCIScore              float64         `json:"fci_score"`
	Band                  Band            `json:"band"`
	ElementCount          int             `json:"element_count"`
	Categories            []CategoryTotal `json:"categories,omitempty"`
	Notes                 string          `json:"notes,omitempty"`
	GeneratedAt           time.Time       `json:"generated_at"`
	FinalizedAt           *time.Time      `json:"finalized_at,omitempty"`
}
