package model

// Element is a Uniformat II catalog entry. Elements are reference data and
// are never mutated by an assessment.
type Element struct {
	ID                string `json:"id"`
	Code              string `json:"code"`
	MajorGroup        string `json:"major_group"`
	GroupElement      string `json:"group_element"`
	IndividualElement string `json:"individual_element"`
	Units             string `json:"units,omitempty"`
	UsefulLife        int    `json:"useful_life,omitempty"`
}
